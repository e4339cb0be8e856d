package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
)

// RankingServiceInterface defines the interface for ranking queries.
type RankingServiceInterface interface {
	GetRankings(ctx context.Context, date time.Time, page, size int) (*model.RankingPage, error)
}

// RankingHandler handles HTTP requests for ranking pages.
type RankingHandler struct {
	service RankingServiceInterface
}

// NewRankingHandler creates a new RankingHandler with the given service.
func NewRankingHandler(svc RankingServiceInterface) *RankingHandler {
	return &RankingHandler{service: svc}
}

// GetRankings handles GET /api/rankings requests. The date query parameter is
// a YYYYMMDD UTC day and defaults to today.
func (h *RankingHandler) GetRankings(c *fiber.Ctx) error {
	date := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation("20060102", raw, time.UTC)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: date must be YYYYMMDD"})
		}
		date = parsed
	}

	page := c.QueryInt("page", 0)
	size := c.QueryInt("size", 20)
	if page < 0 || size <= 0 || size > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: bad paging parameters"})
	}

	rankings, err := h.service.GetRankings(c.Context(), date, page, size)
	if err != nil {
		log.Error().Err(err).Str("date", date.Format("20060102")).Msg("failed to get rankings")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(rankings)
}
