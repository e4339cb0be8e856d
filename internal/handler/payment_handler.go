package handler

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/event"
)

// PaymentEventPublisher accepts payment outcome events for async handling.
type PaymentEventPublisher interface {
	Publish(ctx context.Context, events ...event.Event)
}

// PaymentCallbackRequest is the result the gateway posts to our callback URL.
type PaymentCallbackRequest struct {
	OrderID        string `json:"orderId" validate:"required,uuid"`
	TransactionKey string `json:"transactionKey"`
	Status         string `json:"status" validate:"required,oneof=PENDING SUCCESS FAILED"`
	Reason         string `json:"reason"`
}

// PaymentHandler receives asynchronous payment results from the gateway.
type PaymentHandler struct {
	bus       PaymentEventPublisher
	validator *validator.Validate
}

// NewPaymentHandler creates a new PaymentHandler with the given bus and validator.
func NewPaymentHandler(bus PaymentEventPublisher, v *validator.Validate) *PaymentHandler {
	return &PaymentHandler{bus: bus, validator: v}
}

// Callback handles POST /api/payments/callback. It only translates the
// gateway's verdict into the same events the synchronous path publishes; the
// guarded status transitions make replays and recovery races harmless.
func (h *PaymentHandler) Callback(c *fiber.Ctx) error {
	var req PaymentCallbackRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid callback payload"})
	}

	now := time.Now().UTC()
	switch strings.ToUpper(req.Status) {
	case "SUCCESS":
		h.bus.Publish(c.Context(), event.PaymentCompleted{
			OrderID:        req.OrderID,
			TransactionKey: req.TransactionKey,
			OccurredAt:     now,
		})
	case "FAILED":
		h.bus.Publish(c.Context(), event.PaymentFailed{
			OrderID:    req.OrderID,
			Reason:     req.Reason,
			OccurredAt: now,
		})
	default:
		// PENDING carries no verdict; the recovery loop will settle it.
	}

	log.Info().
		Str("order_id", req.OrderID).
		Str("status", req.Status).
		Msg("payment callback received")

	return c.Status(fiber.StatusOK).Send(nil)
}
