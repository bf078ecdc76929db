package openfoodfacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tidwall/gjson"

	"github.com/illegalcall/nutrition-navigator/internal/config"
	"github.com/illegalcall/nutrition-navigator/internal/models"
)

const (
	UnknownProduct   = "Unknown Product"
	NotFoundName     = "Unknown Product (Not Found)"
	ErrorName        = "Error Fetching Product"
	DefaultPortion   = "1 serving (adjust as needed)"
	FallbackPortion  = "1 serving"
	maxResponseBytes = 4 << 20
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidBarcode  = errors.New("barcode is required")
)

// NotFoundError carries OpenFoodFacts' explanation for a missing product.
type NotFoundError struct {
	StatusVerbose string
}

func (e *NotFoundError) Error() string {
	if e.StatusVerbose == "" {
		return ErrProductNotFound.Error()
	}
	return fmt.Sprintf("%s: %s", ErrProductNotFound, e.StatusVerbose)
}

func (e *NotFoundError) Unwrap() error {
	return ErrProductNotFound
}

// Product holds the fields used to pre-fill a barcode entry.
type Product struct {
	Barcode   string
	Name      string
	Brands    string
	Quantity  string
	ImageURL  string
	Nutrition models.Nutrition
	// Raw is the product object as OpenFoodFacts returned it.
	Raw    []byte
	Cached bool
}

// SuggestedPortion is the product quantity, or a generic serving when unknown.
func (p Product) SuggestedPortion() string {
	if p.Quantity != "" {
		return p.Quantity
	}
	return DefaultPortion
}

// Client looks products up by barcode, caching found products in Redis.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	cache     *redis.Client
	cacheTTL  time.Duration
	logger    *slog.Logger
}

func NewClient(cfg config.OpenFoodFactsConfig, cache *redis.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
		cache:     cache,
		cacheTTL:  cfg.CacheTTL,
		logger:    logger,
	}
}

func cacheKey(barcode string) string {
	return "product:" + barcode
}

// Lookup returns the product for barcode. A product OpenFoodFacts does not know
// yields an error matching ErrProductNotFound.
func (c *Client) Lookup(ctx context.Context, barcode string) (Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return Product{}, ErrInvalidBarcode
	}

	if c.cache != nil {
		raw, err := c.cache.Get(ctx, cacheKey(barcode)).Bytes()
		switch {
		case err == nil && gjson.ValidBytes(raw):
			p := productFromJSON(barcode, raw)
			p.Cached = true
			return p, nil
		case err != nil && !errors.Is(err, redis.Nil):
			c.logger.Warn("Product cache read failed", "barcode", barcode, "error", err)
		}
	}

	body, err := c.fetch(ctx, barcode)
	if err != nil {
		return Product{}, err
	}
	product, err := parseResponse(barcode, body)
	if err != nil {
		return Product{}, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey(barcode), product.Raw, c.cacheTTL).Err(); err != nil {
			c.logger.Warn("Product cache write failed", "barcode", barcode, "error", err)
		}
	}
	return product, nil
}

func (c *Client) fetch(ctx context.Context, barcode string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/api/v0/product/%s.json", c.baseURL, url.PathEscape(barcode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read product response: %w", err)
	}
	// OpenFoodFacts answers unknown barcodes with 404 and a status 0 body.
	if resp.StatusCode == http.StatusNotFound && gjson.ValidBytes(body) {
		return body, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("product API returned status %d", resp.StatusCode)
	}
	return body, nil
}

func parseResponse(barcode string, body []byte) (Product, error) {
	if !gjson.ValidBytes(body) {
		return Product{}, fmt.Errorf("invalid JSON from product API")
	}
	data := gjson.ParseBytes(body)

	product := data.Get("product")
	if data.Get("status").Int() != 1 || !product.IsObject() {
		return Product{}, &NotFoundError{StatusVerbose: data.Get("status_verbose").String()}
	}
	return productFromJSON(barcode, []byte(product.Raw)), nil
}

func productFromJSON(barcode string, raw []byte) Product {
	p := gjson.ParseBytes(raw)

	name := UnknownProduct
	for _, field := range []string{"product_name_en", "product_name", "generic_name_en", "generic_name"} {
		if v := strings.TrimSpace(p.Get(field).String()); v != "" {
			name = v
			break
		}
	}

	imageURL := p.Get("image_url").String()
	if imageURL == "" {
		imageURL = p.Get("image_small_url").String()
	}

	return Product{
		Barcode:  barcode,
		Name:     name,
		Brands:   p.Get("brands").String(),
		Quantity: strings.TrimSpace(p.Get("quantity").String()),
		ImageURL: imageURL,
		Nutrition: models.Nutrition{
			Calories: number(p.Get("nutriments.energy-kcal_100g")),
			Protein:  number(p.Get("nutriments.proteins_100g")),
			Carbs:    number(p.Get("nutriments.carbohydrates_100g")),
			Fat:      number(p.Get("nutriments.fat_100g")),
		},
		Raw: raw,
	}
}

// number returns nil for missing, non-numeric and negative values.
func number(r gjson.Result) *float64 {
	if r.Type != gjson.Number && r.Type != gjson.String {
		return nil
	}
	if r.Type == gjson.String && !gjson.Valid(r.Str) {
		return nil
	}
	v := r.Float()
	if v < 0 {
		return nil
	}
	return &v
}
