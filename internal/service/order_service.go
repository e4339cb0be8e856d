package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/event"
	"github.com/fairyhunter13/scalable-commerce-system/internal/gateway"
	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// Pool is the pgxpool surface services use directly: transactions plus plain
// queries outside any transaction.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	database.TxQuerier
}

// EventBus defines the bus operations services depend on.
type EventBus interface {
	InTx(ctx context.Context, db event.TxBeginner, fn func(tx pgx.Tx, c *event.Collector) error) error
	Publish(ctx context.Context, events ...event.Event)
}

// UserRepositoryInterface defines the interface for user data access.
type UserRepositoryInterface interface {
	GetByExternalID(ctx context.Context, externalID string) (*model.User, error)
	GetForUpdate(ctx context.Context, tx database.TxQuerier, externalID string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	AdjustPoints(ctx context.Context, tx database.TxQuerier, userID, delta int64) error
}

// ProductRepositoryInterface defines the interface for product data access.
type ProductRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*model.Product, error)
	GetForUpdate(ctx context.Context, tx database.TxQuerier, id int64) (*model.Product, error)
	AdjustStock(ctx context.Context, tx database.TxQuerier, id, delta int64) error
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Product, error)
	ListByBrand(ctx context.Context, brandID int64, offset, limit int) ([]model.Product, bool, error)
	ListByLikeCount(ctx context.Context, offset, limit int) ([]model.Product, bool, error)
	SyncLikeCounts(ctx context.Context) (int64, error)
}

// CouponRepositoryInterface defines the interface for coupon data access.
type CouponRepositoryInterface interface {
	GetByCode(ctx context.Context, q database.TxQuerier, code string) (*model.Coupon, error)
	GetByCodeForUpdate(ctx context.Context, tx database.TxQuerier, code string) (*model.Coupon, error)
	DecrementRemaining(ctx context.Context, tx database.TxQuerier, couponID int64) error
	GetUserCoupon(ctx context.Context, q database.TxQuerier, userID, couponID int64) (*model.UserCoupon, error)
	MarkUsed(ctx context.Context, tx database.TxQuerier, userCouponID, version int64) (bool, error)
}

// OrderRepositoryInterface defines the interface for order data access.
type OrderRepositoryInterface interface {
	Insert(ctx context.Context, tx database.TxQuerier, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.Order, error)
	UpdateStatus(ctx context.Context, tx database.TxQuerier, id uuid.UUID, from, to model.OrderStatus) (bool, error)
	FindPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Order, error)
}

// PaymentRepositoryInterface defines the interface for payment data access.
type PaymentRepositoryInterface interface {
	Insert(ctx context.Context, tx database.TxQuerier, p *model.Payment) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Payment, error)
	UpdateStatusByOrder(ctx context.Context, q database.TxQuerier, orderID uuid.UUID, from, to model.PaymentStatus) (bool, error)
	SetTransactionKeyByOrder(ctx context.Context, q database.TxQuerier, orderID uuid.UUID, key string) error
}

// PaymentGateway defines the gateway calls the order flow needs.
type PaymentGateway interface {
	RequestPayment(ctx context.Context, externalUserID string, req *gateway.PaymentRequest) (*gateway.Transaction, error)
}

// maxConflictRetries bounds how often the whole purchase transaction is
// replayed on lock or serialization conflicts.
const maxConflictRetries = 2

// OrderService orchestrates the purchasing saga: one transaction covering
// stock reservation, coupon redemption, point debit and order creation, with
// payment driven asynchronously afterwards.
type OrderService struct {
	pool        Pool
	bus         EventBus
	userRepo    UserRepositoryInterface
	productRepo ProductRepositoryInterface
	couponRepo  CouponRepositoryInterface
	orderRepo   OrderRepositoryInterface
	paymentRepo PaymentRepositoryInterface
	gateway     PaymentGateway
	callbackURL string
}

// NewOrderService creates an OrderService with the given pool, bus,
// repositories and gateway client.
func NewOrderService(
	pool *pgxpool.Pool,
	bus EventBus,
	userRepo UserRepositoryInterface,
	productRepo ProductRepositoryInterface,
	couponRepo CouponRepositoryInterface,
	orderRepo OrderRepositoryInterface,
	paymentRepo PaymentRepositoryInterface,
	gw PaymentGateway,
	callbackURL string,
) *OrderService {
	return &OrderService{
		pool:        pool,
		bus:         bus,
		userRepo:    userRepo,
		productRepo: productRepo,
		couponRepo:  couponRepo,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		gateway:     gw,
		callbackURL: callbackURL,
	}
}

// NewOrderServiceWithPool creates an OrderService with a custom pool.
// This is primarily used for testing.
func NewOrderServiceWithPool(
	pool Pool,
	bus EventBus,
	userRepo UserRepositoryInterface,
	productRepo ProductRepositoryInterface,
	couponRepo CouponRepositoryInterface,
	orderRepo OrderRepositoryInterface,
	paymentRepo PaymentRepositoryInterface,
	gw PaymentGateway,
	callbackURL string,
) *OrderService {
	return &OrderService{
		pool:        pool,
		bus:         bus,
		userRepo:    userRepo,
		productRepo: productRepo,
		couponRepo:  couponRepo,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		gateway:     gw,
		callbackURL: callbackURL,
	}
}

// PlaceOrder runs the purchase saga for the request. On success the order is
// PENDING with stock reserved, points debited, the coupon (if any) marked
// used and OrderCreated enqueued; payment follows asynchronously. Lock and
// version conflicts replay the whole transaction at most twice with jitter.
func (s *OrderService) PlaceOrder(ctx context.Context, req *model.PlaceOrderRequest) (*model.Order, error) {
	if req == nil || len(req.Items) == 0 {
		return nil, ErrInvalidRequest
	}

	for attempt := 0; ; attempt++ {
		order, err := s.placeOrderOnce(ctx, req)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, ErrRetryableConflict) || attempt >= maxConflictRetries {
			return nil, err
		}

		delay := time.Duration(attempt+1)*25*time.Millisecond + rand.N(25*time.Millisecond)
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("retry_in", delay).
			Msg("purchase conflicted, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (s *OrderService) placeOrderOnce(ctx context.Context, req *model.PlaceOrderRequest) (*model.Order, error) {
	var order *model.Order

	err := s.bus.InTx(ctx, s.pool, func(tx pgx.Tx, c *event.Collector) error {
		// 1. Lock the user row so the balance check and debit stay consistent.
		user, err := s.userRepo.GetForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		// 2. Lock products in ascending id order, validate stock, snapshot
		// name and price.
		items, subtotal, err := s.reserveItems(ctx, tx, req.Items)
		if err != nil {
			return err
		}

		// 3. Redeem the coupon with the optimistic version check.
		var discount int64
		if req.CouponCode != "" {
			discount, err = s.redeemCoupon(ctx, tx, user.ID, req.CouponCode, subtotal)
			if err != nil {
				return err
			}
		}

		// 4. Totals. Points may exceed the discounted subtotal only up to zero.
		if req.UsedPoints > user.PointBalance {
			return ErrInsufficientPoints
		}
		total := subtotal - discount - req.UsedPoints
		if total < 0 {
			return ErrInvalidAmount
		}

		// 5. Decrement stocks and debit points in-place.
		for _, it := range items {
			if err := s.productRepo.AdjustStock(ctx, tx, it.ProductID, -it.Quantity); err != nil {
				return err
			}
		}
		if req.UsedPoints > 0 {
			if err := s.userRepo.AdjustPoints(ctx, tx, user.ID, -req.UsedPoints); err != nil {
				return err
			}
		}

		// 6. Persist order and payment, both PENDING.
		now := time.Now().UTC()
		order = &model.Order{
			ID:             uuid.New(),
			UserID:         user.ID,
			Items:          items,
			Subtotal:       subtotal,
			DiscountAmount: discount,
			UsedPoints:     req.UsedPoints,
			TotalAmount:    total,
			CouponCode:     req.CouponCode,
			Status:         model.OrderPending,
			CreatedAt:      now,
		}
		if err := s.orderRepo.Insert(ctx, tx, order); err != nil {
			return err
		}
		payment := &model.Payment{
			ID:       uuid.New(),
			OrderID:  order.ID,
			UserID:   user.ID,
			Amount:   total,
			CardType: req.CardType,
			Status:   model.PaymentPending,
		}
		if err := s.paymentRepo.Insert(ctx, tx, payment); err != nil {
			return err
		}

		// 7. Collect OrderCreated; the outbox bridge persists it before commit
		// and the payment initiator picks it up after.
		wireItems := orderLines(items)
		c.Add(event.OrderCreated{
			OrderID:         order.ID.String(),
			UserID:          user.ID,
			CouponCode:      req.CouponCode,
			Subtotal:        subtotal,
			UsedPointAmount: req.UsedPoints,
			Items:           wireItems,
			OccurredAt:      now,
			ExternalUserID:  req.UserID,
			TotalAmount:     total,
			CardType:        req.CardType,
			CardNo:          req.CardNo,
		})
		return nil
	})
	if err != nil {
		if database.IsRetryableConflict(err) {
			return nil, fmt.Errorf("%w: %v", ErrRetryableConflict, err)
		}
		return nil, err
	}
	return order, nil
}

// orderLines converts item snapshots to their wire representation.
func orderLines(items []model.OrderItem) []event.OrderLine {
	lines := make([]event.OrderLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, event.OrderLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}

// reserveItems merges duplicate lines, locks each product in ascending id
// order (prevents deadlocks between orders with overlapping item sets),
// validates stock and captures the name/price snapshots.
func (s *OrderService) reserveItems(ctx context.Context, tx database.TxQuerier, reqItems []model.PlaceOrderItem) ([]model.OrderItem, int64, error) {
	quantities := make(map[int64]int64, len(reqItems))
	ids := make([]int64, 0, len(reqItems))
	for _, it := range reqItems {
		if _, seen := quantities[it.ProductID]; !seen {
			ids = append(ids, it.ProductID)
		}
		quantities[it.ProductID] += it.Quantity
	}
	slices.Sort(ids)

	items := make([]model.OrderItem, 0, len(ids))
	var subtotal int64
	for _, id := range ids {
		p, err := s.productRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, 0, err
		}
		q := quantities[id]
		if p.Stock < q {
			return nil, 0, ErrInsufficientStock
		}
		items = append(items, model.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Price:       p.Price,
			Quantity:    q,
		})
		subtotal += p.Price * q
	}
	return items, subtotal, nil
}

// redeemCoupon marks the user's coupon used under optimistic concurrency and
// returns the discount it grants. A lost version race is terminal.
func (s *OrderService) redeemCoupon(ctx context.Context, tx database.TxQuerier, userID int64, code string, subtotal int64) (int64, error) {
	coupon, err := s.couponRepo.GetByCode(ctx, tx, code)
	if err != nil {
		return 0, err
	}
	uc, err := s.couponRepo.GetUserCoupon(ctx, tx, userID, coupon.ID)
	if err != nil {
		return 0, err
	}
	if uc.IsUsed {
		return 0, ErrCouponAlreadyUsed
	}
	updated, err := s.couponRepo.MarkUsed(ctx, tx, uc.ID, uc.Version)
	if err != nil {
		return 0, err
	}
	if !updated {
		return 0, ErrCouponRaceLost
	}
	return DiscountFor(coupon).Apply(subtotal), nil
}

// InitiatePayment is the after-commit subscriber for OrderCreated. A gateway
// failure never cancels the order here: unknown states are left PENDING for
// the recovery loop.
func (s *OrderService) InitiatePayment(ctx context.Context, e event.Event) error {
	oc, ok := e.(event.OrderCreated)
	if !ok {
		return nil
	}

	now := time.Now().UTC()
	gwTx, err := s.gateway.RequestPayment(ctx, oc.ExternalUserID, &gateway.PaymentRequest{
		OrderID:     oc.OrderID,
		CardType:    oc.CardType,
		CardNo:      oc.CardNo,
		Amount:      oc.TotalAmount,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayUnavailable) {
			log.Warn().
				Err(err).
				Str("order_id", oc.OrderID).
				Msg("payment state unknown, order left for recovery")
			return nil
		}
		// Permanent rejection: the gateway refused the request outright.
		s.bus.Publish(ctx, event.PaymentFailed{
			OrderID:      oc.OrderID,
			Reason:       err.Error(),
			RefundPoints: oc.UsedPointAmount,
			OccurredAt:   now,
		})
		return nil
	}

	switch gwTx.Status {
	case gateway.StatusSuccess:
		s.bus.Publish(ctx, event.PaymentCompleted{
			OrderID:        oc.OrderID,
			TransactionKey: gwTx.TransactionKey,
			OccurredAt:     now,
		})
	case gateway.StatusFailed:
		s.bus.Publish(ctx, event.PaymentFailed{
			OrderID:      oc.OrderID,
			Reason:       gwTx.Reason,
			RefundPoints: oc.UsedPointAmount,
			OccurredAt:   now,
		})
	default:
		orderID, err := uuid.Parse(oc.OrderID)
		if err != nil {
			return fmt.Errorf("parse order id %s: %w", oc.OrderID, err)
		}
		if err := s.paymentRepo.SetTransactionKeyByOrder(ctx, s.pool, orderID, gwTx.TransactionKey); err != nil {
			return err
		}
		log.Info().
			Str("order_id", oc.OrderID).
			Str("transaction_key", gwTx.TransactionKey).
			Msg("payment pending, order left for recovery")
	}
	return nil
}

// CompleteOrder is the subscriber for PaymentCompleted. Transitions from a
// terminal state are ignored, so replays and recovery races are harmless.
func (s *OrderService) CompleteOrder(ctx context.Context, e event.Event) error {
	pc, ok := e.(event.PaymentCompleted)
	if !ok {
		return nil
	}
	orderID, err := uuid.Parse(pc.OrderID)
	if err != nil {
		return fmt.Errorf("parse order id %s: %w", pc.OrderID, err)
	}

	return s.bus.InTx(ctx, s.pool, func(tx pgx.Tx, c *event.Collector) error {
		order, err := s.orderRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			log.Debug().Str("order_id", pc.OrderID).Str("status", string(order.Status)).
				Msg("order already terminal, completion ignored")
			return nil
		}

		if _, err := s.orderRepo.UpdateStatus(ctx, tx, orderID, model.OrderPending, model.OrderCompleted); err != nil {
			return err
		}
		if _, err := s.paymentRepo.UpdateStatusByOrder(ctx, tx, orderID, model.PaymentPending, model.PaymentSuccess); err != nil {
			return err
		}
		if pc.TransactionKey != "" {
			if err := s.paymentRepo.SetTransactionKeyByOrder(ctx, tx, orderID, pc.TransactionKey); err != nil {
				return err
			}
		}
		log.Info().Str("order_id", pc.OrderID).Msg("order completed")
		return nil
	})
}

// CancelOrder is the subscriber for PaymentFailed: the compensating
// transaction. It re-locks in the saga's order (user, then products
// ascending), restores the stock snapshots, credits back the points and
// emits OrderCanceled. The coupon is deliberately left used.
func (s *OrderService) CancelOrder(ctx context.Context, e event.Event) error {
	pf, ok := e.(event.PaymentFailed)
	if !ok {
		return nil
	}
	orderID, err := uuid.Parse(pf.OrderID)
	if err != nil {
		return fmt.Errorf("parse order id %s: %w", pf.OrderID, err)
	}

	return s.bus.InTx(ctx, s.pool, func(tx pgx.Tx, c *event.Collector) error {
		order, err := s.orderRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			log.Debug().Str("order_id", pf.OrderID).Str("status", string(order.Status)).
				Msg("order already terminal, cancellation ignored")
			return nil
		}

		if order.UsedPoints > 0 {
			if err := s.userRepo.AdjustPoints(ctx, tx, order.UserID, order.UsedPoints); err != nil {
				return err
			}
		}
		for _, it := range order.Items { // items are ordered by product id
			if err := s.productRepo.AdjustStock(ctx, tx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		if _, err := s.orderRepo.UpdateStatus(ctx, tx, orderID, model.OrderPending, model.OrderCanceled); err != nil {
			return err
		}
		if _, err := s.paymentRepo.UpdateStatusByOrder(ctx, tx, orderID, model.PaymentPending, model.PaymentFailed); err != nil {
			return err
		}
		if order.CouponCode != "" {
			log.Warn().
				Str("order_id", pf.OrderID).
				Str("coupon_code", order.CouponCode).
				Msg("coupon left used after payment failure")
		}

		c.Add(event.OrderCanceled{
			OrderID:      pf.OrderID,
			UserID:       order.UserID,
			Reason:       pf.Reason,
			RefundPoints: order.UsedPoints,
			Items:        orderLines(order.Items),
			OccurredAt:   time.Now().UTC(),
		})
		log.Info().Str("order_id", pf.OrderID).Str("reason", pf.Reason).Msg("order canceled")
		return nil
	})
}

// GetOrder retrieves an order with its items by its string id.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrOrderNotFound
	}
	return s.orderRepo.GetByID(ctx, orderID)
}
