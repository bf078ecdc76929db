package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// DefaultPortion is suggested when the model gives no palm estimate.
const DefaultPortion = "1 serving"

var ErrEmptyDescription = errors.New("model returned no food description")

const mealPrompt = `You are an AI assistant helping users log their food intake.

You will receive a photo of a meal. Your tasks are:
1. Generate a concise description of the food item(s) in the image.
2. Estimate the portion size in terms of "palm-sized units". One palm-sized portion is roughly the size of an average adult's palm (excluding fingers). For example, a medium apple might be 1 palm-sized portion, a large chicken breast might be 1.5-2 palm-sized portions. Provide this as a number.

Respond with the description and the estimated number of palm-sized portions.`

// MealAnalysis is what the model saw in a meal photo.
type MealAnalysis struct {
	Description  string   `json:"description"`
	PortionPalms *float64 `json:"portionSize,omitempty"`
}

// PortionSize renders the palm estimate the way the AI entry form stores it.
func (a MealAnalysis) PortionSize() string {
	if a.PortionPalms == nil || *a.PortionPalms <= 0 {
		return DefaultPortion
	}
	return strconv.FormatFloat(*a.PortionPalms, 'f', -1, 64)
}

// Analyzer turns a meal photo into form values.
type Analyzer interface {
	AnalyzeMeal(ctx context.Context, image []byte, mimeType string) (MealAnalysis, error)
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiAnalyzer implements Analyzer with the Gemini API.
type GeminiAnalyzer struct {
	model    string
	generate generateFunc
}

func NewGeminiAnalyzer(ctx context.Context, apiKey, model string) (*GeminiAnalyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiAnalyzer{model: model, generate: client.Models.GenerateContent}, nil
}

func mealSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"description": {
				Type:        genai.TypeString,
				Description: "A description of the food item in the image.",
			},
			"portionSize": {
				Type:        genai.TypeNumber,
				Description: "The estimated number of palm-sized portions of the food item. One palm-sized portion is roughly the size of the user's palm.",
			},
		},
		Required: []string{"description"},
	}
}

func (a *GeminiAnalyzer) AnalyzeMeal(ctx context.Context, image []byte, mimeType string) (MealAnalysis, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(mealPrompt),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}

	resp, err := a.generate(ctx, a.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   mealSchema(),
	})
	if err != nil {
		return MealAnalysis{}, fmt.Errorf("GenAI generate failed: %w", err)
	}
	if resp == nil {
		return MealAnalysis{}, ErrEmptyDescription
	}

	return parseAnalysis(resp.Text())
}

// parseAnalysis decodes the model's JSON answer, tolerating markdown fences.
func parseAnalysis(text string) (MealAnalysis, error) {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	var analysis MealAnalysis
	if err := json.Unmarshal([]byte(clean), &analysis); err != nil {
		return MealAnalysis{}, fmt.Errorf("invalid JSON response from model: %w", err)
	}
	analysis.Description = strings.TrimSpace(analysis.Description)
	if analysis.Description == "" {
		return MealAnalysis{}, ErrEmptyDescription
	}
	return analysis, nil
}
