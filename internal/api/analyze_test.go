package api

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/illegalcall/nutrition-navigator/internal/models"
	"github.com/illegalcall/nutrition-navigator/internal/vision"
)

func multipartPhoto(t *testing.T, data []byte) *http.Request {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("image", "meal")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/api/ai/analyze-image", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func storedFiles(t *testing.T, env *testEnv) []os.DirEntry {
	entries, err := os.ReadDir(env.server.storage.Dir())
	require.NoError(t, err)
	return entries
}

func TestAnalyzeImageDataURI(t *testing.T) {
	env := setupTestServer(t)

	palms := 1.5
	env.analyzer.On("AnalyzeMeal", mock.Anything, []byte("fake-png"), "image/png").
		Return(vision.MealAnalysis{Description: "Grilled chicken with rice", PortionPalms: &palms}, nil)

	resp := env.do(t, jsonRequest("POST", "/api/ai/analyze-image", map[string]string{
		"photo_data_uri": "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("fake-png")),
	}), "user-1", models.RoleClient)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode(t, resp)
	assert.Equal(t, "Grilled chicken with rice", result["description"])
	assert.Equal(t, "1.5", result["portion_size"])
	assert.Equal(t, 1.5, result["portion_palms"])

	imageURL := result["image_url"].(string)
	assert.True(t, strings.HasPrefix(imageURL, "/uploads/meal-"))
	assert.True(t, strings.HasSuffix(imageURL, ".png"))

	// The stored photo is served back.
	resp = env.do(t, httptest.NewRequest("GET", imageURL, nil), "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "fake-png", string(body))

	env.analyzer.AssertExpectations(t)
}

func TestAnalyzeImageMultipartSniffsType(t *testing.T) {
	env := setupTestServer(t)

	jpeg := append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte{0}, 60)...)
	env.analyzer.On("AnalyzeMeal", mock.Anything, jpeg, "image/jpeg").
		Return(vision.MealAnalysis{Description: "Toast"}, nil)

	resp := env.do(t, multipartPhoto(t, jpeg), "user-1", models.RoleClient)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode(t, resp)
	assert.Equal(t, vision.DefaultPortion, result["portion_size"])
	assert.NotContains(t, result, "portion_palms")
	assert.True(t, strings.HasSuffix(result["image_url"].(string), ".jpg"))
	assert.Len(t, storedFiles(t, env), 1)
}

func TestAnalyzeImageModelFailureRemovesPhoto(t *testing.T) {
	env := setupTestServer(t)

	env.analyzer.On("AnalyzeMeal", mock.Anything, mock.Anything, "image/png").
		Return(vision.MealAnalysis{}, errors.New("quota exceeded"))

	resp := env.do(t, jsonRequest("POST", "/api/ai/analyze-image", map[string]string{
		"photo_data_uri": "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("fake-png")),
	}), "user-1", models.RoleClient)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["error"], "Could not analyze the photo")
	assert.Empty(t, storedFiles(t, env))
}

func TestAnalyzeImageRejectsInput(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"no photo", jsonRequest("POST", "/api/ai/analyze-image", map[string]string{}), http.StatusBadRequest},
		{"not a data uri", jsonRequest("POST", "/api/ai/analyze-image", map[string]string{"photo_data_uri": "https://example.com/a.jpg"}), http.StatusBadRequest},
		{"text data uri", jsonRequest("POST", "/api/ai/analyze-image", map[string]string{"photo_data_uri": "data:text/plain;base64,aGVsbG8="}), http.StatusBadRequest},
		{"text upload", multipartPhoto(t, []byte("hello, this is plain text")), http.StatusBadRequest},
		{"too large", jsonRequest("POST", "/api/ai/analyze-image", map[string]string{
			"photo_data_uri": "data:image/png;base64," + base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 2048)),
		}), http.StatusRequestEntityTooLarge},
		{"too large upload", multipartPhoto(t, append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte{0}, 2048)...)), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, tt.req, "user-1", models.RoleClient)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
	env.analyzer.AssertNotCalled(t, "AnalyzeMeal", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, storedFiles(t, env))
}
