package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/event"
	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// LikeRepositoryInterface defines the interface for like data access.
type LikeRepositoryInterface interface {
	Insert(ctx context.Context, tx database.TxQuerier, userID, productID int64) (bool, error)
	Delete(ctx context.Context, tx database.TxQuerier, userID, productID int64) (bool, error)
	Exists(ctx context.Context, userID, productID int64) (bool, error)
}

// LikeService manages product likes. Both directions are idempotent: liking
// twice or unliking something never liked succeeds without emitting events.
type LikeService struct {
	pool        Pool
	bus         EventBus
	userRepo    UserRepositoryInterface
	productRepo ProductRepositoryInterface
	likeRepo    LikeRepositoryInterface
}

// NewLikeService creates a LikeService.
func NewLikeService(pool Pool, bus EventBus, userRepo UserRepositoryInterface, productRepo ProductRepositoryInterface, likeRepo LikeRepositoryInterface) *LikeService {
	return &LikeService{
		pool:        pool,
		bus:         bus,
		userRepo:    userRepo,
		productRepo: productRepo,
		likeRepo:    likeRepo,
	}
}

// Like records that the user likes the product. A repeated like is a no-op
// success and produces no event.
func (s *LikeService) Like(ctx context.Context, externalUserID string, productID int64) error {
	user, err := s.userRepo.GetByExternalID(ctx, externalUserID)
	if err != nil {
		return err
	}
	if _, err := s.productRepo.GetByID(ctx, productID); err != nil {
		return err
	}

	return s.bus.InTx(ctx, s.pool, func(tx pgx.Tx, c *event.Collector) error {
		inserted, err := s.likeRepo.Insert(ctx, tx, user.ID, productID)
		if err != nil {
			return err
		}
		if !inserted {
			log.Debug().
				Int64("user_id", user.ID).
				Int64("product_id", productID).
				Msg("duplicate like ignored")
			return nil
		}

		c.Add(event.LikeAdded{
			UserID:     user.ID,
			ProductID:  productID,
			OccurredAt: time.Now().UTC(),
		})
		return nil
	})
}

// Unlike removes the user's like from the product. Removing a like that does
// not exist is a no-op success and produces no event.
func (s *LikeService) Unlike(ctx context.Context, externalUserID string, productID int64) error {
	user, err := s.userRepo.GetByExternalID(ctx, externalUserID)
	if err != nil {
		return err
	}
	if _, err := s.productRepo.GetByID(ctx, productID); err != nil {
		return err
	}

	return s.bus.InTx(ctx, s.pool, func(tx pgx.Tx, c *event.Collector) error {
		deleted, err := s.likeRepo.Delete(ctx, tx, user.ID, productID)
		if err != nil {
			return err
		}
		if !deleted {
			return nil
		}

		c.Add(event.LikeRemoved{
			UserID:     user.ID,
			ProductID:  productID,
			OccurredAt: time.Now().UTC(),
		})
		return nil
	})
}

// SyncLikeCounts reconciles the denormalized like_count column with the
// likes table. Meant to run on a schedule.
func (s *LikeService) SyncLikeCounts(ctx context.Context) error {
	corrected, err := s.productRepo.SyncLikeCounts(ctx)
	if err != nil {
		return err
	}
	if corrected > 0 {
		log.Info().Int64("corrected", corrected).Msg("like counts reconciled")
	}
	return nil
}
