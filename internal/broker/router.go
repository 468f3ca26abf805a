// Package broker - router.go routes engine orders to the active adapter.
//
// The router implements the two live-mode order behaviors the adapter
// itself does not provide:
//
//   - Automatic splitting: an amount above order_max_volume goes out as
//     consecutive child orders of order_max_volume each; the first
//     child's id is returned and the siblings are tracked internally.
//   - Wait-for-terminal: after submission the router polls
//     GetOrderStatus until a terminal status, bounded by
//     trade_max_wait_time (0 means fire-and-forget).
package broker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/portfolio"
)

// RouterConfig bounds the router's behavior.
type RouterConfig struct {
	// OrderMaxVolume is the largest single child order. Zero disables
	// splitting.
	OrderMaxVolume int64

	// TradeMaxWait bounds the post-submission status poll. Zero means
	// fire-and-forget.
	TradeMaxWait time.Duration

	// PollInterval is the status poll cadence.
	PollInterval time.Duration

	// RetryLimit bounds retries of retryable adapter failures.
	RetryLimit int
}

// DefaultRouterConfig returns the standard live routing parameters.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		OrderMaxVolume: 0,
		TradeMaxWait:   30 * time.Second,
		PollInterval:   time.Second,
		RetryLimit:     3,
	}
}

// Router submits orders through an adapter with splitting and status
// polling.
type Router struct {
	adapter Adapter
	cfg     RouterConfig
	logger  *log.Logger

	// siblings maps a first-child order id to the full child id list.
	siblings map[string][]string
}

// NewRouter creates a router over the active adapter.
func NewRouter(adapter Adapter, cfg RouterConfig, logger *log.Logger) *Router {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Router{
		adapter:  adapter,
		cfg:      cfg,
		logger:   logger,
		siblings: make(map[string][]string),
	}
}

// Place submits a (possibly split) order and waits for the first child
// to reach a terminal status, within the configured bound. The returned
// status carries the first child's id.
func (r *Router) Place(ctx context.Context, sec market.Security, side string, amount int64, price float64) (OrderStatus, error) {
	chunks := r.split(amount)

	var ids []string
	for i, chunk := range chunks {
		id, err := r.submit(ctx, sec, side, chunk, price)
		if err != nil {
			if i == 0 {
				return OrderStatus{}, err
			}
			// Later children failing leaves the earlier fills standing;
			// reconciliation picks up the difference.
			r.logger.Printf("[router] child %d/%d of %s failed: %v", i+1, len(chunks), sec, err)
			break
		}
		ids = append(ids, id)
	}

	first := ids[0]
	if len(ids) > 1 {
		r.siblings[first] = ids
		r.logger.Printf("[router] %s split into %d child orders, tracking under %s", sec, len(ids), first)
	}

	if r.cfg.TradeMaxWait <= 0 {
		return OrderStatus{OrderID: first, Security: sec, Status: portfolio.StatusSubmitted}, nil
	}
	return r.waitTerminal(ctx, first)
}

// Siblings returns all child order ids submitted under a first-child id.
func (r *Router) Siblings(firstID string) []string {
	if ids, ok := r.siblings[firstID]; ok {
		return ids
	}
	return []string{firstID}
}

// split cuts an amount into order_max_volume chunks.
func (r *Router) split(amount int64) []int64 {
	max := r.cfg.OrderMaxVolume
	if max <= 0 || amount <= max {
		return []int64{amount}
	}
	var out []int64
	for amount > 0 {
		chunk := amount
		if chunk > max {
			chunk = max
		}
		out = append(out, chunk)
		amount -= chunk
	}
	return out
}

// submit places one child order with bounded retries on retryable
// adapter failures.
func (r *Router) submit(ctx context.Context, sec market.Security, side string, amount int64, price float64) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.RetryLimit; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		var id string
		var err error
		if side == "buy" {
			id, err = r.adapter.Buy(ctx, sec, amount, price)
		} else {
			id, err = r.adapter.Sell(ctx, sec, amount, price)
		}
		if err == nil {
			return id, nil
		}
		lastErr = err

		if ae, ok := err.(*AdapterError); !ok || !ae.Retryable {
			return "", err
		}
		r.logger.Printf("[router] retrying %s %s after: %v", side, sec, err)
	}
	return "", fmt.Errorf("broker: submit %s %s: retries exhausted: %w", side, sec, lastErr)
}

// waitTerminal polls the order status until terminal or the wait bound
// expires. On timeout the order is reported as submitted (unknown); the
// reconciliation loop discovers the terminal state later.
func (r *Router) waitTerminal(ctx context.Context, orderID string) (OrderStatus, error) {
	status, err := r.adapter.GetOrderStatus(ctx, orderID)
	if err == nil && status.Status.Terminal() {
		return status, nil
	}

	deadline := time.Now().Add(r.cfg.TradeMaxWait)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				r.logger.Printf("[router] %s: poll timeout (%v), last status %s",
					orderID, r.cfg.TradeMaxWait, status.Status)
				status.OrderID = orderID
				status.Status = portfolio.StatusSubmitted
				return status, nil
			}
			s, err := r.adapter.GetOrderStatus(ctx, orderID)
			if err != nil {
				r.logger.Printf("[router] %s: status check failed: %v", orderID, err)
				continue // transient, keep polling
			}
			status = s
			if status.Status.Terminal() {
				return status, nil
			}
		}
	}
}
