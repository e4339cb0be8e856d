package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Pinger is an interface for health check ping operations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a plain function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

// Ping calls f.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler handles health check requests.
type HealthHandler struct {
	db    Pinger
	cache Pinger
}

// NewHealthHandler creates a new HealthHandler over the database pool and the
// Redis client.
func NewHealthHandler(db, cache Pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// Check performs a health check by pinging the database and Redis.
// Returns 503 when the database is unreachable. An unreachable Redis reports
// "degraded" with 200, because rankings fall back to snapshots and the
// purchase path does not need Redis at all.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	components := fiber.Map{"database": "up", "redis": "up"}

	if err := h.db.Ping(c.Context()); err != nil {
		log.Error().Err(err).Msg("health check failed: database unreachable")
		components["database"] = "down"
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":     "unhealthy",
			"components": components,
		})
	}

	status := "healthy"
	if h.cache != nil {
		if err := h.cache.Ping(c.Context()); err != nil {
			log.Warn().Err(err).Msg("health check: redis unreachable, rankings degraded")
			components["redis"] = "down"
			status = "degraded"
		}
	}

	return c.JSON(fiber.Map{
		"status":     status,
		"components": components,
	})
}
