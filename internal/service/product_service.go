package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/event"
	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
)

// ProductCache is the KV surface product detail reads go through.
type ProductCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

const (
	productDetailKeyPrefix = "product:detail:"

	defaultProductPageSize = 20
	maxProductPageSize     = 100
)

func productDetailKey(id int64) string {
	return productDetailKeyPrefix + strconv.FormatInt(id, 10)
}

// ProductService serves catalog reads. Details go through a read-through
// cache, and every successful detail read records a ProductViewed event for
// the ranking pipeline. Cache failures fall through to the database; they
// never fail a read.
type ProductService struct {
	pool        Pool
	bus         EventBus
	productRepo ProductRepositoryInterface
	brandRepo   BrandRepositoryInterface
	userRepo    UserRepositoryInterface
	cache       ProductCache
	detailTTL   time.Duration
}

// NewProductService creates a ProductService with the given pool, bus,
// repositories and cache.
func NewProductService(
	pool *pgxpool.Pool,
	bus EventBus,
	productRepo ProductRepositoryInterface,
	brandRepo BrandRepositoryInterface,
	userRepo UserRepositoryInterface,
	cache ProductCache,
	detailTTL time.Duration,
) *ProductService {
	return &ProductService{
		pool:        pool,
		bus:         bus,
		productRepo: productRepo,
		brandRepo:   brandRepo,
		userRepo:    userRepo,
		cache:       cache,
		detailTTL:   detailTTL,
	}
}

// NewProductServiceWithPool creates a ProductService with a custom pool.
// This is primarily used for testing.
func NewProductServiceWithPool(
	pool Pool,
	bus EventBus,
	productRepo ProductRepositoryInterface,
	brandRepo BrandRepositoryInterface,
	userRepo UserRepositoryInterface,
	cache ProductCache,
	detailTTL time.Duration,
) *ProductService {
	return &ProductService{
		pool:        pool,
		bus:         bus,
		productRepo: productRepo,
		brandRepo:   brandRepo,
		userRepo:    userRepo,
		cache:       cache,
		detailTTL:   detailTTL,
	}
}

// GetProduct returns the product detail. viewerID is the external user id
// from the request, empty for anonymous traffic; the view is recorded either
// way.
func (s *ProductService) GetProduct(ctx context.Context, productID int64, viewerID string) (*model.ProductDetail, error) {
	detail, err := s.loadDetail(ctx, productID)
	if err != nil {
		return nil, err
	}
	s.recordView(ctx, productID, viewerID)
	return detail, nil
}

func (s *ProductService) loadDetail(ctx context.Context, productID int64) (*model.ProductDetail, error) {
	key := productDetailKey(productID)
	cached, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Int64("product_id", productID).Msg("cache read failed")
	}
	if hit {
		var detail model.ProductDetail
		if err := json.Unmarshal(cached, &detail); err == nil {
			return &detail, nil
		}
		log.Warn().Err(err).Str("key", key).Msg("corrupt cache entry evicted")
		if err := s.cache.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache evict failed")
		}
	}

	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	brand, err := s.brandRepo.GetByID(ctx, product.BrandID)
	if err != nil {
		return nil, err
	}
	detail := &model.ProductDetail{Product: *product, BrandName: brand.Name}

	if data, err := json.Marshal(detail); err == nil {
		if err := s.cache.Set(ctx, key, data, s.detailTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return detail, nil
}

// recordView emits ProductViewed through a small outboxing transaction.
// Failures are logged, never surfaced: a view event must not break the read.
func (s *ProductService) recordView(ctx context.Context, productID int64, viewerID string) {
	var userID int64
	if viewerID != "" {
		user, err := s.userRepo.GetByExternalID(ctx, viewerID)
		switch {
		case err == nil:
			userID = user.ID
		case errors.Is(err, ErrUserNotFound):
			// Unknown viewer, keep the view anonymous.
		default:
			log.Warn().Err(err).Msg("viewer lookup failed, recording anonymous view")
		}
	}

	err := s.bus.InTx(ctx, s.pool, func(tx pgx.Tx, c *event.Collector) error {
		c.Add(event.ProductViewed{
			ViewID:     uuid.New(),
			ProductID:  productID,
			UserID:     userID,
			OccurredAt: time.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Int64("product_id", productID).Msg("view event not recorded")
	}
}

// ListProducts returns one catalog page, filtered by brand when brandID is
// non-zero.
func (s *ProductService) ListProducts(ctx context.Context, brandID int64, page, size int) (*model.ProductPage, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultProductPageSize
	}
	if size > maxProductPageSize {
		size = maxProductPageSize
	}

	items, hasNext, err := s.productRepo.ListByBrand(ctx, brandID, page*size, size)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Product{}
	}
	return &model.ProductPage{
		Items:   items,
		Page:    page,
		Size:    size,
		HasNext: hasNext,
	}, nil
}

// InvalidateOnOrder evicts cached details for products whose stock changed.
// Subscribed after commit to OrderCreated and OrderCanceled.
func (s *ProductService) InvalidateOnOrder(ctx context.Context, e event.Event) error {
	var lines []event.OrderLine
	switch ev := e.(type) {
	case event.OrderCreated:
		lines = ev.Items
	case event.OrderCanceled:
		lines = ev.Items
	default:
		return nil
	}

	keys := make([]string, 0, len(lines))
	for _, line := range lines {
		keys = append(keys, productDetailKey(line.ProductID))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		// Stale stock in the detail cache heals when the TTL lapses.
		log.Warn().Err(err).Int("keys", len(keys)).Msg("cache invalidation failed")
	}
	return nil
}
