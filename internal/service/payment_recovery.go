package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/event"
	"github.com/fairyhunter13/scalable-commerce-system/internal/gateway"
)

// RecoveryGateway defines the gateway call the recovery loop needs.
type RecoveryGateway interface {
	GetTransactionsByOrder(ctx context.Context, externalUserID, orderID string) ([]gateway.Transaction, error)
}

// recoveryBatchSize bounds how many PENDING orders one cycle inspects.
const recoveryBatchSize = 500

// recoveryGrace keeps freshly created orders out of the recovery pass while
// their synchronous payment call may still be in flight. It must exceed the
// gateway's worst case: per-attempt timeout times the retry budget, plus
// backoff between attempts.
const recoveryGrace = time.Minute

// PaymentRecovery converges PENDING orders whose synchronous payment path
// was lost: it asks the gateway for the order's transactions and republishes
// the terminal event the order missed. All emitted events hit idempotent
// handlers, so re-running over settled orders changes nothing.
type PaymentRecovery struct {
	orderRepo OrderRepositoryInterface
	userRepo  UserRepositoryInterface
	gateway   RecoveryGateway
	bus       EventBus
	interval  time.Duration
}

// NewPaymentRecovery creates a recovery loop. interval <= 0 defaults to 60s.
func NewPaymentRecovery(orderRepo OrderRepositoryInterface, userRepo UserRepositoryInterface, gw RecoveryGateway, bus EventBus, interval time.Duration) *PaymentRecovery {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &PaymentRecovery{
		orderRepo: orderRepo,
		userRepo:  userRepo,
		gateway:   gw,
		bus:       bus,
		interval:  interval,
	}
}

// Run ticks until ctx is canceled. Cycles are serial; a cycle error is
// logged and the next tick starts fresh.
func (r *PaymentRecovery) Run(ctx context.Context) {
	log.Info().Dur("interval", r.interval).Msg("payment recovery started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("payment recovery stopped")
			return
		case <-ticker.C:
			if err := r.runOnce(ctx); err != nil {
				log.Error().Err(err).Msg("payment recovery cycle failed")
			}
		}
	}
}

func (r *PaymentRecovery) runOnce(ctx context.Context) error {
	orders, err := r.orderRepo.FindPendingOlderThan(ctx, time.Now().Add(-recoveryGrace), recoveryBatchSize)
	if err != nil {
		return err
	}

	for _, order := range orders {
		// Per-order isolation: one order's failure never aborts the batch.
		if err := r.recoverOrder(ctx, order.ID.String(), order.UserID, order.UsedPoints); err != nil {
			log.Error().
				Err(err).
				Str("order_id", order.ID.String()).
				Msg("payment recovery skipped order")
		}
	}
	return nil
}

func (r *PaymentRecovery) recoverOrder(ctx context.Context, orderID string, userID, usedPoints int64) error {
	user, err := r.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	txs, err := r.gateway.GetTransactionsByOrder(ctx, user.ExternalID, orderID)
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayUnavailable) {
			log.Warn().Str("order_id", orderID).Msg("gateway unavailable, order left for next cycle")
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	decision := resolveTransactions(txs)
	switch decision.state {
	case gateway.StatusSuccess:
		r.bus.Publish(ctx, event.PaymentCompleted{
			OrderID:        orderID,
			TransactionKey: decision.transactionKey,
			OccurredAt:     now,
		})
		log.Info().Str("order_id", orderID).Msg("recovery resolved payment as success")
	case gateway.StatusFailed:
		r.bus.Publish(ctx, event.PaymentFailed{
			OrderID:      orderID,
			Reason:       decision.reason,
			RefundPoints: usedPoints,
			OccurredAt:   now,
		})
		log.Info().Str("order_id", orderID).Msg("recovery resolved payment as failed")
	default:
		// Pending or no record yet: leave for the next cycle.
	}
	return nil
}

type recoveryDecision struct {
	state          gateway.TransactionStatus
	transactionKey string
	reason         string
}

// resolveTransactions maps an order's gateway transactions to a terminal
// decision: any SUCCESS wins; all FAILED (at least one, none pending) means
// failure; anything else stays pending.
func resolveTransactions(txs []gateway.Transaction) recoveryDecision {
	if len(txs) == 0 {
		return recoveryDecision{state: gateway.StatusPending}
	}

	var lastReason string
	for _, tx := range txs {
		if tx.Status == gateway.StatusSuccess {
			return recoveryDecision{state: gateway.StatusSuccess, transactionKey: tx.TransactionKey}
		}
	}
	for _, tx := range txs {
		if tx.Status != gateway.StatusFailed {
			return recoveryDecision{state: gateway.StatusPending}
		}
		lastReason = tx.Reason
	}
	return recoveryDecision{state: gateway.StatusFailed, reason: lastReason}
}
