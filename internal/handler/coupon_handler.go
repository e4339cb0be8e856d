package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
	"github.com/fairyhunter13/scalable-commerce-system/internal/service"
)

// CouponServiceInterface defines the interface for coupon queries.
type CouponServiceInterface interface {
	GetByCode(ctx context.Context, code string) (*model.CouponResponse, error)
}

// CouponHandler handles HTTP requests for coupon operations.
type CouponHandler struct {
	service CouponServiceInterface
}

// NewCouponHandler creates a new CouponHandler with the given service.
func NewCouponHandler(svc CouponServiceInterface) *CouponHandler {
	return &CouponHandler{service: svc}
}

// GetCoupon handles GET /api/coupons/:code requests to retrieve coupon details.
func (h *CouponHandler) GetCoupon(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request: code is required",
		})
	}

	coupon, err := h.service.GetByCode(c.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrCouponNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "coupon not found",
			})
		}
		log.Error().Err(err).Str("coupon_code", code).Msg("failed to get coupon")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	return c.JSON(coupon)
}
