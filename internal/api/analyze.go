package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/nutrition-navigator/internal/metrics"
	"github.com/illegalcall/nutrition-navigator/internal/models"
	"github.com/illegalcall/nutrition-navigator/internal/storage"
	"github.com/illegalcall/nutrition-navigator/internal/vision"
)

// handleAnalyzeImage stores a meal photo and asks the model to pre-fill the AI entry form.
func (s *Server) handleAnalyzeImage(c *fiber.Ctx) error {
	image, mimeType, err := s.readPhoto(c)
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return errorJSON(c, fiber.StatusRequestEntityTooLarge, "Photo is too large")
	case errors.Is(err, vision.ErrNotAnImage):
		return errorJSON(c, fiber.StatusBadRequest, "Only image uploads are accepted")
	case err != nil:
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	imageURL, err := s.storage.StoreFromBytes(ctx, image, vision.Extension(mimeType))
	if errors.Is(err, storage.ErrTooLarge) {
		return errorJSON(c, fiber.StatusRequestEntityTooLarge, "Photo is too large")
	}
	if err != nil {
		s.logger.Error("Failed to store photo", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to store photo")
	}

	analysis, err := s.analyzer.AnalyzeMeal(ctx, image, mimeType)
	if err != nil {
		metrics.ImageAnalyses.WithLabelValues(metrics.ResultError).Inc()
		s.logger.Error("Image analysis failed", "error", err)
		if delErr := s.storage.Delete(ctx, imageURL); delErr != nil {
			s.logger.Warn("Failed to remove photo of failed analysis", "error", delErr, "url", imageURL)
		}
		return errorJSON(c, fiber.StatusBadGateway, s.detail("Could not analyze the photo", err))
	}
	metrics.ImageAnalyses.WithLabelValues(metrics.ResultSuccess).Inc()

	return c.JSON(models.AnalyzeImageResponse{
		Description:  analysis.Description,
		PortionSize:  analysis.PortionSize(),
		PortionPalms: analysis.PortionPalms,
		ImageURL:     imageURL,
	})
}

var errNoPhoto = errors.New("a photo is required as multipart field 'image' or as photo_data_uri")

// readPhoto accepts a multipart "image" field or a JSON data URI.
func (s *Server) readPhoto(c *fiber.Ctx) ([]byte, string, error) {
	maxSize := s.cfg.Storage.MaxSize

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, "", errNoPhoto
		}
		if maxSize > 0 && fh.Size > maxSize {
			return nil, "", storage.ErrTooLarge
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, "", err
		}

		mimeType := fh.Header.Get(fiber.HeaderContentType)
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = http.DetectContentType(data)
		}
		mimeType, _, _ = strings.Cut(mimeType, ";")
		if !vision.IsImageType(mimeType) {
			return nil, "", vision.ErrNotAnImage
		}
		return data, strings.ToLower(strings.TrimSpace(mimeType)), nil
	}

	var req models.AnalyzeImageRequest
	if err := c.BodyParser(&req); err != nil || req.PhotoDataURI == "" {
		return nil, "", errNoPhoto
	}
	data, mimeType, err := vision.ParseDataURI(req.PhotoDataURI)
	if err != nil {
		return nil, "", err
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, "", storage.ErrTooLarge
	}
	return data, mimeType, nil
}
