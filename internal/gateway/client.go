// Package gateway is the HTTP client for the external payment gateway. Every
// call runs through the same resilience chain: per-request timeout, circuit
// breaker, bulkhead, then a method-specific retry policy.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"
)

// ErrGatewayUnavailable is the fallback marker: circuit open, bulkhead
// starved, or retries exhausted on transient failures. Callers treat it as
// unknown payment state and never cancel an order because of it.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// TransactionStatus is the gateway's view of one payment attempt.
type TransactionStatus string

const (
	StatusPending TransactionStatus = "PENDING"
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"
)

// PaymentRequest is the body of POST /api/v1/payments.
type PaymentRequest struct {
	OrderID     string `json:"orderId"`
	CardType    string `json:"cardType"`
	CardNo      string `json:"cardNo"`
	Amount      int64  `json:"amount"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// Transaction is one gateway payment attempt.
type Transaction struct {
	TransactionKey string            `json:"transactionKey"`
	OrderID        string            `json:"orderId,omitempty"`
	Status         TransactionStatus `json:"status"`
	Amount         int64             `json:"amount,omitempty"`
	Reason         string            `json:"reason,omitempty"`
}

// StatusError is a permanent 4xx response. The request is a client bug or a
// business rejection; it is never retried and never trips the breaker.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Code, e.Body)
}

// Config carries the resilience knobs; see the CIRCUIT_* / PAYMENT_*
// environment variables.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	Bulkhead         int64
	FailureThreshold float64
	Window           uint32
	OpenDuration     time.Duration
}

// Client talks to the payment gateway. All methods share one circuit breaker
// and one bulkhead so the gateway's health is judged across the whole
// surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[struct{}]
	bulkhead   *semaphore.Weighted

	retryBase time.Duration
	retryCap  time.Duration
	retryMax  uint64
}

// NewClient creates a gateway client from cfg, applying the documented
// defaults for zero values.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Bulkhead <= 0 {
		cfg.Bulkhead = 20
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 0.5
	}
	if cfg.Window == 0 {
		cfg.Window = 20
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.Window {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		// 4xx means the gateway is healthy and rejected the request;
		// only transport failures and 5xx count against the breaker.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var statusErr *StatusError
			return errors.As(err, &statusErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker[struct{}](settings),
		bulkhead:   semaphore.NewWeighted(cfg.Bulkhead),
		retryBase:  500 * time.Millisecond,
		retryCap:   5 * time.Second,
		retryMax:   2, // 3 attempts total
	}
}

// RequestPayment initiates a payment. User-facing: it never retries, so a
// transient failure surfaces immediately as ErrGatewayUnavailable and the
// order stays PENDING for the recovery loop.
func (c *Client) RequestPayment(ctx context.Context, externalUserID string, req *PaymentRequest) (*Transaction, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	var out Transaction
	err = c.execute(ctx, func() error {
		return c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/payments", externalUserID, body, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransactionsByOrder lists the gateway's attempts for an order.
// Scheduler-driven: transient failures are retried with exponential backoff
// and jitter before giving up with ErrGatewayUnavailable.
func (c *Client) GetTransactionsByOrder(ctx context.Context, externalUserID, orderID string) ([]Transaction, error) {
	target := c.baseURL + "/api/v1/payments?orderId=" + url.QueryEscape(orderID)

	var out []Transaction
	err := c.execute(ctx, func() error {
		return c.retryTransient(ctx, func() error {
			out = nil
			return c.do(ctx, http.MethodGet, target, externalUserID, nil, &out)
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetTransaction fetches one transaction by key. Same retry policy as
// GetTransactionsByOrder.
func (c *Client) GetTransaction(ctx context.Context, externalUserID, transactionKey string) (*Transaction, error) {
	target := c.baseURL + "/api/v1/payments/" + url.PathEscape(transactionKey)

	var out Transaction
	err := c.execute(ctx, func() error {
		return c.retryTransient(ctx, func() error {
			return c.do(ctx, http.MethodGet, target, externalUserID, nil, &out)
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// execute runs op through breaker then bulkhead, and maps chain-level
// failures onto the fallback marker. Permanent 4xx errors pass through
// untouched.
func (c *Client) execute(ctx context.Context, op func() error) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		if err := c.bulkhead.Acquire(ctx, 1); err != nil {
			return struct{}{}, fmt.Errorf("bulkhead: %w", err)
		}
		defer c.bulkhead.Release(1)

		return struct{}{}, op()
	})
	if err == nil {
		return nil
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit open", ErrGatewayUnavailable)
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}

// retryTransient runs op with the scheduler-path retry policy: exponential
// backoff with jitter, 3 attempts, base 500ms, multiplier 2, cap 5s. 4xx
// responses are permanent and abort the retries.
func (c *Client) retryTransient(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBase
	bo.Multiplier = 2
	bo.MaxInterval = c.retryCap
	bo.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := op()
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, c.retryMax), ctx))
}

// do issues one HTTP request. Transport errors and 5xx come back as plain
// errors (transient); 4xx comes back as *StatusError (permanent).
func (c *Client) do(ctx context.Context, method, target, externalUserID string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-USER-ID", externalUserID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
