package ranking

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/cache"
	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
)

// SnapshotStore is the sorted-set read surface the snapshot writer uses.
type SnapshotStore interface {
	RevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]cache.ScoredMember, error)
	Card(ctx context.Context, key string) (int64, error)
}

// BrandReader loads brands for snapshot hydration.
type BrandReader interface {
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Brand, error)
}

// SnapshotSink persists the written snapshot.
type SnapshotSink interface {
	Upsert(ctx context.Context, snap *model.RankingSnapshot) error
}

// SnapshotWriter periodically copies the live top-K into the database with
// hydrated product fields, so ranking queries stay answerable while Redis is
// down. Each run supersedes the same date's previous snapshot.
type SnapshotWriter struct {
	store     SnapshotStore
	products  ProductReader
	brands    BrandReader
	snapshots SnapshotSink
	topK      int64
	now       func() time.Time
}

// NewSnapshotWriter creates a SnapshotWriter persisting the top topK rows.
func NewSnapshotWriter(store SnapshotStore, products ProductReader, brands BrandReader, snapshots SnapshotSink, topK int64) *SnapshotWriter {
	return &SnapshotWriter{
		store:     store,
		products:  products,
		brands:    brands,
		snapshots: snapshots,
		topK:      topK,
		now:       time.Now,
	}
}

// Run snapshots the current UTC date's live ranking.
func (w *SnapshotWriter) Run(ctx context.Context) error {
	return w.runFor(ctx, w.now().UTC())
}

func (w *SnapshotWriter) runFor(ctx context.Context, date time.Time) error {
	key := Key(date)
	members, err := w.store.RevRangeWithScores(ctx, key, 0, w.topK-1)
	if err != nil {
		return fmt.Errorf("read live ranking %s: %w", key, err)
	}
	if len(members) == 0 {
		// Nothing accumulated yet; keep whatever snapshot already exists.
		log.Debug().Str("key", key).Msg("live ranking empty, snapshot skipped")
		return nil
	}
	total, err := w.store.Card(ctx, key)
	if err != nil {
		return fmt.Errorf("size live ranking %s: %w", key, err)
	}

	items, err := w.hydrate(ctx, members)
	if err != nil {
		return err
	}

	snap := &model.RankingSnapshot{
		Date:      time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		Items:     items,
		TotalSize: total,
	}
	if err := w.snapshots.Upsert(ctx, snap); err != nil {
		return err
	}

	log.Info().
		Str("date", date.Format("20060102")).
		Int("items", len(items)).
		Int64("total", total).
		Msg("ranking snapshot written")
	return nil
}

// hydrate resolves members into snapshot rows. Members without a matching
// product are skipped with a warning and ranks stay contiguous.
func (w *SnapshotWriter) hydrate(ctx context.Context, members []cache.ScoredMember) ([]model.SnapshotItem, error) {
	productIDs := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m.Member, 10, 64)
		if err != nil {
			log.Warn().Str("member", m.Member).Msg("non-numeric ranking member skipped")
			continue
		}
		productIDs = append(productIDs, id)
	}
	products, err := w.products.GetByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("hydrate snapshot products: %w", err)
	}

	brandIDSet := make(map[int64]struct{})
	for _, p := range products {
		brandIDSet[p.BrandID] = struct{}{}
	}
	brandIDs := make([]int64, 0, len(brandIDSet))
	for id := range brandIDSet {
		brandIDs = append(brandIDs, id)
	}
	sort.Slice(brandIDs, func(i, j int) bool { return brandIDs[i] < brandIDs[j] })
	brands, err := w.brands.GetByIDs(ctx, brandIDs)
	if err != nil {
		return nil, fmt.Errorf("hydrate snapshot brands: %w", err)
	}

	items := make([]model.SnapshotItem, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m.Member, 10, 64)
		if err != nil {
			continue
		}
		product, ok := products[id]
		if !ok {
			log.Warn().Int64("product_id", id).Msg("ranked product missing from catalog, skipped")
			continue
		}
		item := model.SnapshotItem{
			Rank:      int64(len(items)) + 1,
			Score:     m.Score,
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			BrandID:   product.BrandID,
		}
		if brand, ok := brands[product.BrandID]; ok {
			item.BrandName = brand.Name
		}
		items = append(items, item)
	}
	return items, nil
}
