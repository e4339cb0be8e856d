package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
	"github.com/fairyhunter13/scalable-commerce-system/internal/service"
)

// OrderServiceInterface defines the interface for order business logic.
type OrderServiceInterface interface {
	PlaceOrder(ctx context.Context, req *model.PlaceOrderRequest) (*model.Order, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
}

// OrderHandler handles HTTP requests for order operations.
type OrderHandler struct {
	service   OrderServiceInterface
	validator *validator.Validate
}

// NewOrderHandler creates a new OrderHandler with the given service and validator.
func NewOrderHandler(svc OrderServiceInterface, v *validator.Validate) *OrderHandler {
	return &OrderHandler{service: svc, validator: v}
}

// formatOrderValidationError converts validator errors to stable messages for orders.
func formatOrderValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()
			tag := fe.Tag()

			switch field {
			case "UserID":
				if tag == "required" || tag == "notblank" {
					return "invalid request: user_id is required"
				}
				return "invalid request: user_id is invalid"
			case "Items":
				if tag == "required" || tag == "min" {
					return "invalid request: items must not be empty"
				}
				return "invalid request: items is invalid"
			case "ProductID":
				return "invalid request: product_id must be positive"
			case "Quantity":
				return "invalid request: quantity must be at least 1"
			case "UsedPoints":
				return "invalid request: used_points must not be negative"
			case "CardType":
				if tag == "required" {
					return "invalid request: card_type is required"
				}
				return "invalid request: card_type is not supported"
			case "CardNo":
				if tag == "required" || tag == "notblank" {
					return "invalid request: card_no is required"
				}
				return "invalid request: card_no is invalid"
			default:
				if tag == "required" {
					return "invalid request: " + field + " is required"
				}
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}

// PlaceOrder handles POST /api/orders requests to run the purchase flow.
func (h *OrderHandler) PlaceOrder(c *fiber.Ctx) error {
	var req model.PlaceOrderRequest

	// Parse JSON body
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatOrderValidationError(err)})
	}

	order, err := h.service.PlaceOrder(c.Context(), &req)
	if err != nil {
		return h.mapPlaceOrderError(c, &req, err)
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("order_id", order.ID.String()).
		Str("user_id", req.UserID).
		Int64("total_amount", order.TotalAmount).
		Msg("order placed")

	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *OrderHandler) mapPlaceOrderError(c *fiber.Ctx, req *model.PlaceOrderRequest, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidAmount):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order request"})
	case errors.Is(err, service.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
	case errors.Is(err, service.ErrProductNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "product not found"})
	case errors.Is(err, service.ErrCouponNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "coupon not found"})
	case errors.Is(err, service.ErrInsufficientStock):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "insufficient stock"})
	case errors.Is(err, service.ErrInsufficientPoints):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "insufficient points"})
	case errors.Is(err, service.ErrCouponAlreadyUsed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "coupon already used"})
	case errors.Is(err, service.ErrCouponRaceLost), errors.Is(err, service.ErrRetryableConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflicting purchase, please retry"})
	default:
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("user_id", req.UserID).
			Msg("failed to place order")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}

// GetOrder handles GET /api/orders/:id requests to retrieve an order.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	id := c.Params("id")

	order, err := h.service.GetOrder(c.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
		}
		log.Error().Err(err).Str("order_id", id).Msg("failed to get order")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(order)
}
