package api

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/nutrition-navigator/internal/metrics"
	"github.com/illegalcall/nutrition-navigator/internal/models"
	"github.com/illegalcall/nutrition-navigator/internal/openfoodfacts"
)

// handleLookupProduct pre-fills the barcode entry form. Misses and upstream
// failures still carry form values the client can show.
func (s *Server) handleLookupProduct(c *fiber.Ctx) error {
	barcode := strings.TrimSpace(c.Params("barcode"))
	if barcode == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid Barcode")
	}

	product, err := s.products.Lookup(c.UserContext(), barcode)
	var notFound *openfoodfacts.NotFoundError
	switch {
	case errors.Is(err, openfoodfacts.ErrInvalidBarcode):
		return errorJSON(c, fiber.StatusBadRequest, "Invalid Barcode")

	case errors.As(err, &notFound) || errors.Is(err, openfoodfacts.ErrProductNotFound):
		metrics.ProductLookups.WithLabelValues(metrics.ResultNotFound).Inc()
		verbose := "No product data found for this barcode."
		if notFound != nil && notFound.StatusVerbose != "" {
			verbose = notFound.StatusVerbose
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Product Not Found",
			"product": models.ProductLookupResponse{
				Found:         false,
				Barcode:       barcode,
				FoodName:      openfoodfacts.NotFoundName,
				PortionSize:   openfoodfacts.FallbackPortion,
				StatusVerbose: verbose,
			},
		})

	case err != nil:
		metrics.ProductLookups.WithLabelValues(metrics.ResultError).Inc()
		s.logger.Error("Product lookup failed", "barcode", barcode, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": s.detail("Could not fetch product data", err),
			"product": models.ProductLookupResponse{
				Found:       false,
				Barcode:     barcode,
				FoodName:    openfoodfacts.ErrorName,
				PortionSize: openfoodfacts.FallbackPortion,
			},
		})
	}

	result := metrics.ResultFound
	if product.Cached {
		result = metrics.ResultCached
	}
	metrics.ProductLookups.WithLabelValues(result).Inc()

	return c.JSON(fiber.Map{
		"product": models.ProductLookupResponse{
			Found:       true,
			Barcode:     barcode,
			FoodName:    product.Name,
			PortionSize: product.SuggestedPortion(),
			Brands:      product.Brands,
			Quantity:    product.Quantity,
			ImageURL:    product.ImageURL,
			Nutrition:   product.Nutrition,
			Product:     json.RawMessage(product.Raw),
		},
	})
}
