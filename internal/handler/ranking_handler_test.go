package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
)

// mockRankingService is a mock implementation of RankingServiceInterface.
type mockRankingService struct {
	getRankingsFn func(ctx context.Context, date time.Time, page, size int) (*model.RankingPage, error)
}

func (m *mockRankingService) GetRankings(ctx context.Context, date time.Time, page, size int) (*model.RankingPage, error) {
	if m.getRankingsFn != nil {
		return m.getRankingsFn(ctx, date, page, size)
	}
	return nil, nil
}

func setupRankingTestApp(mockSvc *mockRankingService) *fiber.App {
	app := fiber.New()
	h := NewRankingHandler(mockSvc)
	app.Get("/api/rankings", h.GetRankings)
	return app
}

func sampleRankingPage() *model.RankingPage {
	return &model.RankingPage{
		Date: "20250601",
		Entries: []model.RankingEntry{
			{
				Rank:  1,
				Score: 412.5,
				Product: model.ProductDetail{
					Product:   model.Product{ID: 10, BrandID: 1, Name: "Air Max 97", Price: 139000},
					BrandName: "Nike",
				},
			},
			{
				Rank:  2,
				Score: 377.0,
				Product: model.ProductDetail{
					Product:   model.Product{ID: 23, BrandID: 2, Name: "Samba OG", Price: 119000},
					BrandName: "Adidas",
				},
			},
		},
		Page:    0,
		Size:    20,
		HasNext: true,
		Source:  model.RankingSourceLive,
	}
}

func TestGetRankings_Success(t *testing.T) {
	var capturedDate time.Time
	var capturedPage, capturedSize int
	mockSvc := &mockRankingService{
		getRankingsFn: func(ctx context.Context, date time.Time, page, size int) (*model.RankingPage, error) {
			capturedDate = date
			capturedPage = page
			capturedSize = size
			return sampleRankingPage(), nil
		},
	}
	app := setupRankingTestApp(mockSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/rankings?date=20250601&page=0&size=20", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), capturedDate)
	assert.Equal(t, 0, capturedPage)
	assert.Equal(t, 20, capturedSize)

	var result model.RankingPage
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)
	assert.Equal(t, "20250601", result.Date)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, int64(1), result.Entries[0].Rank)
	assert.Equal(t, "Air Max 97", result.Entries[0].Product.Name)
	assert.Equal(t, "Nike", result.Entries[0].Product.BrandName)
	assert.Equal(t, model.RankingSourceLive, result.Source)
	assert.True(t, result.HasNext)
}

func TestGetRankings_DefaultsToToday(t *testing.T) {
	var capturedDate time.Time
	mockSvc := &mockRankingService{
		getRankingsFn: func(ctx context.Context, date time.Time, page, size int) (*model.RankingPage, error) {
			capturedDate = date
			return sampleRankingPage(), nil
		},
	}
	app := setupRankingTestApp(mockSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/rankings", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	assert.Equal(t, today, capturedDate, "Missing date should default to the current UTC day")
}

func TestGetRankings_SnapshotSourceIsExposed(t *testing.T) {
	mockSvc := &mockRankingService{
		getRankingsFn: func(ctx context.Context, date time.Time, page, size int) (*model.RankingPage, error) {
			page2 := sampleRankingPage()
			page2.Source = model.RankingSourceSnapshot
			return page2, nil
		},
	}
	app := setupRankingTestApp(mockSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/rankings?date=20250601", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var rawJSON map[string]interface{}
	err = json.NewDecoder(resp.Body).Decode(&rawJSON)
	require.NoError(t, err)
	assert.Equal(t, "snapshot", rawJSON["source"], "Degraded pages must disclose their source")
}

func TestGetRankings_BadDate(t *testing.T) {
	tests := []struct {
		name string
		date string
	}{
		{name: "wrong format", date: "2025-06-01"},
		{name: "not a date", date: "yesterday"},
		{name: "too short", date: "202506"},
		{name: "impossible day", date: "20250632"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := &mockRankingService{}
			app := setupRankingTestApp(mockSvc)

			req := httptest.NewRequest(http.MethodGet, "/api/rankings?date="+tt.date, nil)

			resp, err := app.Test(req)
			require.NoError(t, err)

			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

			var result map[string]string
			err = json.NewDecoder(resp.Body).Decode(&result)
			require.NoError(t, err)
			assert.Equal(t, "invalid request: date must be YYYYMMDD", result["error"], "Exact error message required")
		})
	}
}

func TestGetRankings_BadPaging(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "negative page", query: "?page=-1"},
		{name: "zero size", query: "?size=0"},
		{name: "oversized page", query: "?size=1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := &mockRankingService{}
			app := setupRankingTestApp(mockSvc)

			req := httptest.NewRequest(http.MethodGet, "/api/rankings"+tt.query, nil)

			resp, err := app.Test(req)
			require.NoError(t, err)

			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

			var result map[string]string
			err = json.NewDecoder(resp.Body).Decode(&result)
			require.NoError(t, err)
			assert.Equal(t, "invalid request: bad paging parameters", result["error"], "Exact error message required")
		})
	}
}

func TestGetRankings_InternalServerError(t *testing.T) {
	mockSvc := &mockRankingService{
		getRankingsFn: func(ctx context.Context, date time.Time, page, size int) (*model.RankingPage, error) {
			return nil, errors.New("snapshot store unreachable")
		},
	}
	app := setupRankingTestApp(mockSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/rankings", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	var result map[string]string
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)
	assert.Equal(t, "internal server error", result["error"], "Exact error message required")
}
