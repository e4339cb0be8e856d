package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
	"github.com/fairyhunter13/scalable-commerce-system/internal/service"
)

// ProductServiceInterface defines the interface for catalog queries.
type ProductServiceInterface interface {
	GetProduct(ctx context.Context, productID int64, viewerID string) (*model.ProductDetail, error)
	ListProducts(ctx context.Context, brandID int64, page, size int) (*model.ProductPage, error)
}

// ProductHandler handles HTTP requests for catalog operations.
type ProductHandler struct {
	service ProductServiceInterface
}

// NewProductHandler creates a new ProductHandler with the given service.
func NewProductHandler(svc ProductServiceInterface) *ProductHandler {
	return &ProductHandler{service: svc}
}

// GetProduct handles GET /api/products/:id requests. The optional X-USER-ID
// header identifies the viewer for ranking view events.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: id must be a positive integer"})
	}

	detail, err := h.service.GetProduct(c.Context(), int64(id), c.Get("X-USER-ID"))
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "product not found"})
		}
		log.Error().Err(err).Int("product_id", id).Msg("failed to get product")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(detail)
}

// ListProducts handles GET /api/products requests with optional brandId,
// page and size query parameters.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	brandID := c.QueryInt("brandId", 0)
	page := c.QueryInt("page", 0)
	size := c.QueryInt("size", 20)
	if brandID < 0 || page < 0 || size <= 0 || size > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: bad paging parameters"})
	}

	listing, err := h.service.ListProducts(c.Context(), int64(brandID), page, size)
	if err != nil {
		if errors.Is(err, service.ErrBrandNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "brand not found"})
		}
		log.Error().Err(err).Int("brand_id", brandID).Msg("failed to list products")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(listing)
}
