package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/scalable-commerce-system/internal/event"
	"github.com/fairyhunter13/scalable-commerce-system/internal/gateway"
	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// mockTx is a mock implementation of pgx.Tx for testing transactions.
type mockTx struct {
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("nested transactions not supported")
}

func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitFn != nil {
		return m.commitFn(ctx)
	}
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	if m.rollbackFn != nil {
		return m.rollbackFn(ctx)
	}
	return nil
}

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (m *mockTx) LargeObjects() pgx.LargeObjects {
	return pgx.LargeObjects{}
}

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (m *mockTx) Conn() *pgx.Conn {
	return nil
}

// mockPool is a mock implementation of Pool.
type mockPool struct {
	beginFn    func(ctx context.Context) (pgx.Tx, error)
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
}

func (m *mockPool) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.beginFn != nil {
		return m.beginFn(ctx)
	}
	return &mockTx{}, nil
}

func (m *mockPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFn != nil {
		return m.execFn(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (m *mockPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, sql, args...)
	}
	return nil, nil
}

func (m *mockPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFn != nil {
		return m.queryRowFn(ctx, sql, args...)
	}
	return nil
}

// mockEventBus is a mock implementation of EventBus. The default InTx runs fn
// against a mockTx, committing events into collected; Publish appends to
// published.
type mockEventBus struct {
	mu        sync.Mutex
	inTxFn    func(ctx context.Context, db event.TxBeginner, fn func(tx pgx.Tx, c *event.Collector) error) error
	collected []event.Event
	published []event.Event
}

func (m *mockEventBus) InTx(ctx context.Context, db event.TxBeginner, fn func(tx pgx.Tx, c *event.Collector) error) error {
	if m.inTxFn != nil {
		return m.inTxFn(ctx, db, fn)
	}
	c := event.NewCollector()
	if err := fn(&mockTx{}, c); err != nil {
		return err
	}
	m.mu.Lock()
	m.collected = append(m.collected, c.Events()...)
	m.mu.Unlock()
	return nil
}

func (m *mockEventBus) Publish(ctx context.Context, events ...event.Event) {
	m.mu.Lock()
	m.published = append(m.published, events...)
	m.mu.Unlock()
}

func (m *mockEventBus) collectedEvents() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Event(nil), m.collected...)
}

func (m *mockEventBus) publishedEvents() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Event(nil), m.published...)
}

// mockUserRepository is a mock implementation of UserRepositoryInterface.
type mockUserRepository struct {
	getByExternalIDFn func(ctx context.Context, externalID string) (*model.User, error)
	getForUpdateFn    func(ctx context.Context, tx database.TxQuerier, externalID string) (*model.User, error)
	getByIDFn         func(ctx context.Context, id int64) (*model.User, error)
	adjustPointsFn    func(ctx context.Context, tx database.TxQuerier, userID, delta int64) error
}

func (m *mockUserRepository) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	if m.getByExternalIDFn != nil {
		return m.getByExternalIDFn(ctx, externalID)
	}
	return nil, nil
}

func (m *mockUserRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, externalID string) (*model.User, error) {
	if m.getForUpdateFn != nil {
		return m.getForUpdateFn(ctx, tx, externalID)
	}
	return nil, nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepository) AdjustPoints(ctx context.Context, tx database.TxQuerier, userID, delta int64) error {
	if m.adjustPointsFn != nil {
		return m.adjustPointsFn(ctx, tx, userID, delta)
	}
	return nil
}

// mockProductRepository is a mock implementation of ProductRepositoryInterface.
type mockProductRepository struct {
	getByIDFn         func(ctx context.Context, id int64) (*model.Product, error)
	getForUpdateFn    func(ctx context.Context, tx database.TxQuerier, id int64) (*model.Product, error)
	adjustStockFn     func(ctx context.Context, tx database.TxQuerier, id, delta int64) error
	getByIDsFn        func(ctx context.Context, ids []int64) (map[int64]*model.Product, error)
	listByBrandFn     func(ctx context.Context, brandID int64, offset, limit int) ([]model.Product, bool, error)
	listByLikeCountFn func(ctx context.Context, offset, limit int) ([]model.Product, bool, error)
	syncLikeCountsFn  func(ctx context.Context) (int64, error)
}

func (m *mockProductRepository) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockProductRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, id int64) (*model.Product, error) {
	if m.getForUpdateFn != nil {
		return m.getForUpdateFn(ctx, tx, id)
	}
	return nil, nil
}

func (m *mockProductRepository) AdjustStock(ctx context.Context, tx database.TxQuerier, id, delta int64) error {
	if m.adjustStockFn != nil {
		return m.adjustStockFn(ctx, tx, id, delta)
	}
	return nil
}

func (m *mockProductRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Product, error) {
	if m.getByIDsFn != nil {
		return m.getByIDsFn(ctx, ids)
	}
	return map[int64]*model.Product{}, nil
}

func (m *mockProductRepository) ListByBrand(ctx context.Context, brandID int64, offset, limit int) ([]model.Product, bool, error) {
	if m.listByBrandFn != nil {
		return m.listByBrandFn(ctx, brandID, offset, limit)
	}
	return nil, false, nil
}

func (m *mockProductRepository) ListByLikeCount(ctx context.Context, offset, limit int) ([]model.Product, bool, error) {
	if m.listByLikeCountFn != nil {
		return m.listByLikeCountFn(ctx, offset, limit)
	}
	return nil, false, nil
}

func (m *mockProductRepository) SyncLikeCounts(ctx context.Context) (int64, error) {
	if m.syncLikeCountsFn != nil {
		return m.syncLikeCountsFn(ctx)
	}
	return 0, nil
}

// mockBrandRepository is a mock implementation of BrandRepositoryInterface.
type mockBrandRepository struct {
	getByIDFn  func(ctx context.Context, id int64) (*model.Brand, error)
	getByIDsFn func(ctx context.Context, ids []int64) (map[int64]*model.Brand, error)
}

func (m *mockBrandRepository) GetByID(ctx context.Context, id int64) (*model.Brand, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return &model.Brand{ID: id, Name: "brand"}, nil
}

func (m *mockBrandRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Brand, error) {
	if m.getByIDsFn != nil {
		return m.getByIDsFn(ctx, ids)
	}
	return map[int64]*model.Brand{}, nil
}

// mockCouponRepository is a mock implementation of CouponRepositoryInterface.
type mockCouponRepository struct {
	getByCodeFn          func(ctx context.Context, q database.TxQuerier, code string) (*model.Coupon, error)
	getByCodeForUpdateFn func(ctx context.Context, tx database.TxQuerier, code string) (*model.Coupon, error)
	decrementRemainingFn func(ctx context.Context, tx database.TxQuerier, couponID int64) error
	getUserCouponFn      func(ctx context.Context, q database.TxQuerier, userID, couponID int64) (*model.UserCoupon, error)
	markUsedFn           func(ctx context.Context, tx database.TxQuerier, userCouponID, version int64) (bool, error)
}

func (m *mockCouponRepository) GetByCode(ctx context.Context, q database.TxQuerier, code string) (*model.Coupon, error) {
	if m.getByCodeFn != nil {
		return m.getByCodeFn(ctx, q, code)
	}
	return nil, nil
}

func (m *mockCouponRepository) GetByCodeForUpdate(ctx context.Context, tx database.TxQuerier, code string) (*model.Coupon, error) {
	if m.getByCodeForUpdateFn != nil {
		return m.getByCodeForUpdateFn(ctx, tx, code)
	}
	return nil, nil
}

func (m *mockCouponRepository) DecrementRemaining(ctx context.Context, tx database.TxQuerier, couponID int64) error {
	if m.decrementRemainingFn != nil {
		return m.decrementRemainingFn(ctx, tx, couponID)
	}
	return nil
}

func (m *mockCouponRepository) GetUserCoupon(ctx context.Context, q database.TxQuerier, userID, couponID int64) (*model.UserCoupon, error) {
	if m.getUserCouponFn != nil {
		return m.getUserCouponFn(ctx, q, userID, couponID)
	}
	return nil, nil
}

func (m *mockCouponRepository) MarkUsed(ctx context.Context, tx database.TxQuerier, userCouponID, version int64) (bool, error) {
	if m.markUsedFn != nil {
		return m.markUsedFn(ctx, tx, userCouponID, version)
	}
	return true, nil
}

// mockClaimRepository is a mock implementation of ClaimRepositoryInterface.
type mockClaimRepository struct {
	getUsersByCouponFn func(ctx context.Context, couponID int64) ([]string, error)
	insertFn           func(ctx context.Context, tx database.TxQuerier, userID, couponID int64) error
}

func (m *mockClaimRepository) GetUsersByCoupon(ctx context.Context, couponID int64) ([]string, error) {
	if m.getUsersByCouponFn != nil {
		return m.getUsersByCouponFn(ctx, couponID)
	}
	return []string{}, nil
}

func (m *mockClaimRepository) Insert(ctx context.Context, tx database.TxQuerier, userID, couponID int64) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, tx, userID, couponID)
	}
	return nil
}

// mockOrderRepository is a mock implementation of OrderRepositoryInterface.
type mockOrderRepository struct {
	insertFn               func(ctx context.Context, tx database.TxQuerier, order *model.Order) error
	getByIDFn              func(ctx context.Context, id uuid.UUID) (*model.Order, error)
	getForUpdateFn         func(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.Order, error)
	updateStatusFn         func(ctx context.Context, tx database.TxQuerier, id uuid.UUID, from, to model.OrderStatus) (bool, error)
	findPendingOlderThanFn func(ctx context.Context, cutoff time.Time, limit int) ([]*model.Order, error)
}

func (m *mockOrderRepository) Insert(ctx context.Context, tx database.TxQuerier, order *model.Order) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, tx, order)
	}
	return nil
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockOrderRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.Order, error) {
	if m.getForUpdateFn != nil {
		return m.getForUpdateFn(ctx, tx, id)
	}
	return nil, nil
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, tx database.TxQuerier, id uuid.UUID, from, to model.OrderStatus) (bool, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, tx, id, from, to)
	}
	return true, nil
}

func (m *mockOrderRepository) FindPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Order, error) {
	if m.findPendingOlderThanFn != nil {
		return m.findPendingOlderThanFn(ctx, cutoff, limit)
	}
	return nil, nil
}

// mockPaymentRepository is a mock implementation of PaymentRepositoryInterface.
type mockPaymentRepository struct {
	insertFn                  func(ctx context.Context, tx database.TxQuerier, p *model.Payment) error
	getByOrderIDFn            func(ctx context.Context, orderID uuid.UUID) (*model.Payment, error)
	updateStatusByOrderFn     func(ctx context.Context, q database.TxQuerier, orderID uuid.UUID, from, to model.PaymentStatus) (bool, error)
	setTransactionKeyByOrderF func(ctx context.Context, q database.TxQuerier, orderID uuid.UUID, key string) error
}

func (m *mockPaymentRepository) Insert(ctx context.Context, tx database.TxQuerier, p *model.Payment) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, tx, p)
	}
	return nil
}

func (m *mockPaymentRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Payment, error) {
	if m.getByOrderIDFn != nil {
		return m.getByOrderIDFn(ctx, orderID)
	}
	return nil, nil
}

func (m *mockPaymentRepository) UpdateStatusByOrder(ctx context.Context, q database.TxQuerier, orderID uuid.UUID, from, to model.PaymentStatus) (bool, error) {
	if m.updateStatusByOrderFn != nil {
		return m.updateStatusByOrderFn(ctx, q, orderID, from, to)
	}
	return true, nil
}

func (m *mockPaymentRepository) SetTransactionKeyByOrder(ctx context.Context, q database.TxQuerier, orderID uuid.UUID, key string) error {
	if m.setTransactionKeyByOrderF != nil {
		return m.setTransactionKeyByOrderF(ctx, q, orderID, key)
	}
	return nil
}

// mockGateway is a mock implementation of PaymentGateway.
type mockGateway struct {
	requestPaymentFn func(ctx context.Context, externalUserID string, req *gateway.PaymentRequest) (*gateway.Transaction, error)
}

func (m *mockGateway) RequestPayment(ctx context.Context, externalUserID string, req *gateway.PaymentRequest) (*gateway.Transaction, error) {
	if m.requestPaymentFn != nil {
		return m.requestPaymentFn(ctx, externalUserID, req)
	}
	return &gateway.Transaction{Status: gateway.StatusSuccess}, nil
}
