package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/service"
)

// LikeServiceInterface defines the interface for like business logic.
type LikeServiceInterface interface {
	Like(ctx context.Context, externalUserID string, productID int64) error
	Unlike(ctx context.Context, externalUserID string, productID int64) error
}

// LikeHandler handles HTTP requests for like operations.
type LikeHandler struct {
	service LikeServiceInterface
}

// NewLikeHandler creates a new LikeHandler with the given service.
func NewLikeHandler(svc LikeServiceInterface) *LikeHandler {
	return &LikeHandler{service: svc}
}

// Like handles POST /api/products/:id/likes requests. Liking a product the
// user already likes is a no-op and still returns 200.
func (h *LikeHandler) Like(c *fiber.Ctx) error {
	return h.toggle(c, h.service.Like, "failed to like product")
}

// Unlike handles DELETE /api/products/:id/likes requests. Removing a like
// that does not exist is a no-op and still returns 200.
func (h *LikeHandler) Unlike(c *fiber.Ctx) error {
	return h.toggle(c, h.service.Unlike, "failed to unlike product")
}

func (h *LikeHandler) toggle(c *fiber.Ctx, op func(context.Context, string, int64) error, failMsg string) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: id must be a positive integer"})
	}

	userID := strings.TrimSpace(c.Get("X-USER-ID"))
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: X-USER-ID header is required"})
	}

	if err := op(c.Context(), userID, int64(id)); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
		}
		if errors.Is(err, service.ErrProductNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "product not found"})
		}
		log.Error().Err(err).Str("user_id", userID).Int("product_id", id).Msg(failMsg)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.Status(fiber.StatusOK).Send(nil)
}
