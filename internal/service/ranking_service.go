package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/cache"
	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
	"github.com/fairyhunter13/scalable-commerce-system/internal/ranking"
)

// RankingZSet is the live sorted-set read surface.
type RankingZSet interface {
	RevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]cache.ScoredMember, error)
	RevRank(ctx context.Context, key, member string) (int64, bool, error)
	Card(ctx context.Context, key string) (int64, error)
}

// SnapshotRepositoryInterface defines the interface for ranking snapshot access.
type SnapshotRepositoryInterface interface {
	GetByDate(ctx context.Context, date time.Time) (*model.RankingSnapshot, error)
}

// BrandRepositoryInterface defines the interface for brand data access.
type BrandRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*model.Brand, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Brand, error)
}

const (
	defaultRankingPageSize = 20
	maxRankingPageSize     = 100
)

// RankingService serves ranking pages with graceful degradation: the live
// sorted set first, then the date's persisted snapshot, then the previous
// date's, and last a like-count product listing. Only failures degrade; an
// empty live set is an answer.
type RankingService struct {
	zset        RankingZSet
	snapshots   SnapshotRepositoryInterface
	productRepo ProductRepositoryInterface
	brandRepo   BrandRepositoryInterface
}

// NewRankingService creates a RankingService with the given stores.
func NewRankingService(
	zset RankingZSet,
	snapshots SnapshotRepositoryInterface,
	productRepo ProductRepositoryInterface,
	brandRepo BrandRepositoryInterface,
) *RankingService {
	return &RankingService{
		zset:        zset,
		snapshots:   snapshots,
		productRepo: productRepo,
		brandRepo:   brandRepo,
	}
}

// GetRankings returns one page of the date's ranking board.
func (s *RankingService) GetRankings(ctx context.Context, date time.Time, page, size int) (*model.RankingPage, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultRankingPageSize
	}
	if size > maxRankingPageSize {
		size = maxRankingPageSize
	}
	date = date.UTC()

	result, err := s.liveRankings(ctx, date, page, size)
	if err == nil {
		return result, nil
	}
	log.Warn().Err(err).Str("date", date.Format("20060102")).
		Msg("live ranking unavailable, falling back to snapshot")

	for _, snapDate := range []time.Time{date, date.AddDate(0, 0, -1)} {
		result, err = s.snapshotRankings(ctx, snapDate, page, size)
		if err != nil {
			log.Warn().Err(err).Str("snapshot_date", snapDate.Format("20060102")).
				Msg("ranking snapshot unavailable")
			continue
		}
		if result != nil {
			return result, nil
		}
	}

	log.Warn().Str("date", date.Format("20060102")).
		Msg("no usable ranking snapshot, serving like-count fallback")
	return s.defaultRankings(ctx, date, page, size)
}

// ProductRank returns the product's 1-based rank on the date's board.
// A product outside the board reports absence, never an error; on a Redis
// failure the previous day's board is tried once. The rank is never derived
// from the like-count fallback.
func (s *RankingService) ProductRank(ctx context.Context, productID int64, date time.Time) (int64, bool) {
	member := strconv.FormatInt(productID, 10)
	date = date.UTC()

	rank, ok, err := s.zset.RevRank(ctx, ranking.Key(date), member)
	if err == nil {
		if !ok {
			return 0, false
		}
		return rank + 1, true
	}
	log.Warn().Err(err).Int64("product_id", productID).
		Msg("rank lookup failed, trying previous day")

	rank, ok, err = s.zset.RevRank(ctx, ranking.Key(date.AddDate(0, 0, -1)), member)
	if err != nil || !ok {
		return 0, false
	}
	return rank + 1, true
}

func (s *RankingService) liveRankings(ctx context.Context, date time.Time, page, size int) (*model.RankingPage, error) {
	key := ranking.Key(date)
	start := int64(page) * int64(size)
	stop := start + int64(size) - 1

	members, err := s.zset.RevRangeWithScores(ctx, key, start, stop)
	if err != nil {
		return nil, err
	}
	total, err := s.zset.Card(ctx, key)
	if err != nil {
		return nil, err
	}
	entries, err := s.hydrateEntries(ctx, members, start)
	if err != nil {
		return nil, err
	}
	return &model.RankingPage{
		Date:    date.Format("20060102"),
		Entries: entries,
		Page:    page,
		Size:    size,
		HasNext: start+int64(size) < total,
		Source:  model.RankingSourceLive,
	}, nil
}

// hydrateEntries resolves zset members into ranking entries. Ranks are the
// positions in the set; members without a catalog product are skipped with a
// warning, leaving a gap rather than shifting ranks.
func (s *RankingService) hydrateEntries(ctx context.Context, members []cache.ScoredMember, start int64) ([]model.RankingEntry, error) {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m.Member, 10, 64)
		if err != nil {
			log.Warn().Str("member", m.Member).Msg("non-numeric ranking member skipped")
			continue
		}
		ids = append(ids, id)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	brands, err := s.brandsOf(ctx, products)
	if err != nil {
		return nil, err
	}

	entries := make([]model.RankingEntry, 0, len(members))
	for i, m := range members {
		id, err := strconv.ParseInt(m.Member, 10, 64)
		if err != nil {
			continue
		}
		product, ok := products[id]
		if !ok {
			log.Warn().Int64("product_id", id).Msg("ranked product missing from catalog, skipped")
			continue
		}
		detail := model.ProductDetail{Product: *product}
		if brand, ok := brands[product.BrandID]; ok {
			detail.BrandName = brand.Name
		}
		entries = append(entries, model.RankingEntry{
			Rank:    start + int64(i) + 1,
			Score:   m.Score,
			Product: detail,
		})
	}
	return entries, nil
}

// snapshotRankings serves a page from the date's persisted snapshot. A nil
// page with nil error means no snapshot exists for that date.
func (s *RankingService) snapshotRankings(ctx context.Context, snapDate time.Time, page, size int) (*model.RankingPage, error) {
	midnight := time.Date(snapDate.Year(), snapDate.Month(), snapDate.Day(), 0, 0, 0, 0, time.UTC)
	snap, err := s.snapshots.GetByDate(ctx, midnight)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}

	start := page * size
	end := start + size
	var window []model.SnapshotItem
	if start < len(snap.Items) {
		if end > len(snap.Items) {
			end = len(snap.Items)
		}
		window = snap.Items[start:end]
	}

	entries := make([]model.RankingEntry, 0, len(window))
	for _, item := range window {
		entries = append(entries, model.RankingEntry{
			Rank:  item.Rank,
			Score: item.Score,
			Product: model.ProductDetail{
				Product: model.Product{
					ID:      item.ProductID,
					BrandID: item.BrandID,
					Name:    item.Name,
					Price:   item.Price,
				},
				BrandName: item.BrandName,
			},
		})
	}
	return &model.RankingPage{
		Date:    snapDate.Format("20060102"),
		Entries: entries,
		Page:    page,
		Size:    size,
		HasNext: start+size < len(snap.Items),
		Source:  model.RankingSourceSnapshot,
	}, nil
}

// defaultRankings is the last rung: products ordered by like count, ranks by
// position, the like count standing in for the score.
func (s *RankingService) defaultRankings(ctx context.Context, date time.Time, page, size int) (*model.RankingPage, error) {
	products, hasNext, err := s.productRepo.ListByLikeCount(ctx, page*size, size)
	if err != nil {
		return nil, fmt.Errorf("ranking fallback: %w", err)
	}

	brandIDSet := make(map[int64]struct{}, len(products))
	brandIDs := make([]int64, 0, len(products))
	for _, p := range products {
		if _, ok := brandIDSet[p.BrandID]; ok {
			continue
		}
		brandIDSet[p.BrandID] = struct{}{}
		brandIDs = append(brandIDs, p.BrandID)
	}
	brands, err := s.brandRepo.GetByIDs(ctx, brandIDs)
	if err != nil {
		return nil, fmt.Errorf("ranking fallback: %w", err)
	}

	entries := make([]model.RankingEntry, 0, len(products))
	for i, p := range products {
		detail := model.ProductDetail{Product: p}
		if brand, ok := brands[p.BrandID]; ok {
			detail.BrandName = brand.Name
		}
		entries = append(entries, model.RankingEntry{
			Rank:    int64(page*size+i) + 1,
			Score:   float64(p.LikeCount),
			Product: detail,
		})
	}
	return &model.RankingPage{
		Date:    date.Format("20060102"),
		Entries: entries,
		Page:    page,
		Size:    size,
		HasNext: hasNext,
		Source:  model.RankingSourceDefault,
	}, nil
}

func (s *RankingService) brandsOf(ctx context.Context, products map[int64]*model.Product) (map[int64]*model.Brand, error) {
	brandIDSet := make(map[int64]struct{}, len(products))
	brandIDs := make([]int64, 0, len(products))
	for _, p := range products {
		if _, ok := brandIDSet[p.BrandID]; ok {
			continue
		}
		brandIDSet[p.BrandID] = struct{}{}
		brandIDs = append(brandIDs, p.BrandID)
	}
	return s.brandRepo.GetByIDs(ctx, brandIDs)
}
