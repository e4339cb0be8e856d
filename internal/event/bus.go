package event

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// Collector gathers the events raised inside one database transaction. It is
// an explicit value passed through the call chain; the bus drains it at the
// transaction's phase boundaries.
type Collector struct {
	events []Event
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add records an event for dispatch at commit time.
func (c *Collector) Add(e Event) {
	c.events = append(c.events, e)
}

// Events returns the collected events in emission order.
func (c *Collector) Events() []Event {
	return c.events
}

// TxHandler runs inline in the producing transaction (before-commit phase).
// An error rolls the transaction back.
type TxHandler func(ctx context.Context, tx database.TxQuerier, e Event) error

// Handler runs after the producing transaction commits, on the bus's worker
// pool. Handlers must not share mutable state.
type Handler func(ctx context.Context, e Event) error

// TxBeginner is implemented by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Bus is the in-process publish/subscribe fabric with transactional phasing.
// Before-commit subscribers run inline with the producing transaction;
// after-commit subscribers run asynchronously on a fixed worker pool.
type Bus struct {
	mu     sync.RWMutex
	before map[Type][]TxHandler
	after  map[Type][]Handler

	queue   chan job
	workers int
	wg      sync.WaitGroup
	baseCtx context.Context
	started bool

	logger zerolog.Logger
}

type job struct {
	handler Handler
	event   Event
}

// NewBus creates a bus with the given worker count and queue capacity.
// workers <= 0 defaults to CPU·2; queueSize <= 0 defaults to 1024.
func NewBus(workers, queueSize int, logger zerolog.Logger) *Bus {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Bus{
		before:  make(map[Type][]TxHandler),
		after:   make(map[Type][]Handler),
		queue:   make(chan job, queueSize),
		workers: workers,
		logger:  logger,
	}
}

// SubscribeBefore registers h for the before-commit phase of t.
func (b *Bus) SubscribeBefore(t Type, h TxHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.before[t] = append(b.before[t], h)
}

// Subscribe registers h for asynchronous dispatch after commit.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.after[t] = append(b.after[t], h)
}

// Start launches the worker pool. Workers inherit ctx so asynchronous
// handlers survive the producing request's lifetime but stop on shutdown.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.baseCtx = ctx
	b.mu.Unlock()

	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	b.logger.Info().Int("workers", b.workers).Msg("event bus started")
}

// Stop drains the queue and waits for in-flight handlers.
func (b *Bus) Stop() {
	close(b.queue)
	b.wg.Wait()
	b.logger.Info().Msg("event bus stopped")
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for j := range b.queue {
		b.run(j)
	}
}

// run isolates one handler invocation: a panic or error in one subscriber
// never affects its siblings.
func (b *Bus) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("event_type", string(j.event.EventType())).
				Msg("event handler panicked")
		}
	}()
	if err := j.handler(b.baseCtx, j.event); err != nil {
		b.logger.Error().
			Err(err).
			Str("event_type", string(j.event.EventType())).
			Msg("event handler failed")
	}
}

// Publish dispatches events to the after-commit subscribers without a
// producing transaction. Enqueueing blocks when the pool is saturated so
// payment-critical events are never dropped.
func (b *Bus) Publish(ctx context.Context, events ...Event) {
	for _, e := range events {
		b.mu.RLock()
		handlers := b.after[e.EventType()]
		b.mu.RUnlock()
		for _, h := range handlers {
			select {
			case b.queue <- job{handler: h, event: e}:
			case <-ctx.Done():
				b.logger.Warn().
					Str("event_type", string(e.EventType())).
					Msg("event dropped: context canceled while enqueueing")
				return
			}
		}
	}
}

// InTx begins a transaction, runs fn with a fresh collector, drains
// before-commit subscribers inline, commits, then hands the collected events
// to the after-commit pool. Any error before commit rolls everything back,
// collected events included.
func (b *Bus) InTx(ctx context.Context, db TxBeginner, fn func(tx pgx.Tx, c *Collector) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	c := NewCollector()
	if err := fn(tx, c); err != nil {
		return err
	}

	for _, e := range c.Events() {
		b.mu.RLock()
		handlers := b.before[e.EventType()]
		b.mu.RUnlock()
		for _, h := range handlers {
			if err := h(ctx, tx, e); err != nil {
				return fmt.Errorf("before-commit handler for %s: %w", e.EventType(), err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	b.Publish(ctx, c.Events()...)
	return nil
}
