// Package broker defines the broker adapter abstraction for live mode.
//
// Design rules:
//   - Only one adapter is active at a time.
//   - No strategy logic inside the adapter.
//   - Adapters are used only for execution and account state; they are
//     read-only for the core and must be safe to call from the driver's
//     goroutine.
//   - External order statuses normalize to the portfolio's taxonomy.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/portfolio"
)

// AdapterError wraps a remote failure. Retryable errors are retried with
// bounded backoff by the router before surfacing to the strategy.
type AdapterError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("broker: %s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// AccountInfo is the adapter's view of the account.
type AccountInfo struct {
	AvailableCash float64
	TotalAssets   float64
}

// PositionInfo is the adapter's view of one holding.
type PositionInfo struct {
	Security        market.Security
	TotalAmount     int64
	CloseableAmount int64
	AvgCost         float64
	LastPrice       float64
}

// OrderStatus is the adapter's view of one external order.
type OrderStatus struct {
	OrderID      string
	Security     market.Security
	Status       portfolio.Status
	FilledAmount int64
	AvgFillPrice float64
	Message      string
	UpdatedAt    time.Time
}

// SubscribeKind selects the push-data granularity.
type SubscribeKind string

const (
	SubscribeTick   SubscribeKind = "tick"
	SubscribeMinute SubscribeKind = "minute"
)

// Adapter is the contract every live broker implementation satisfies.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	GetAccountInfo(ctx context.Context) (AccountInfo, error)
	GetPositions(ctx context.Context) ([]PositionInfo, error)

	// Buy and Sell submit an order and return the external order id.
	// price <= 0 requests a market order.
	Buy(ctx context.Context, sec market.Security, amount int64, price float64) (string, error)
	Sell(ctx context.Context, sec market.Security, amount int64, price float64) (string, error)

	CancelOrder(ctx context.Context, orderID string) (bool, error)
	GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
	SyncOrders(ctx context.Context) ([]OrderStatus, error)
	GetOpenOrders(ctx context.Context) ([]OrderStatus, error)

	// Subscribe registers push data for the symbols. Adapters may cap
	// the subscription count.
	Subscribe(ctx context.Context, secs []market.Security, kind SubscribeKind) error
	Unsubscribe(ctx context.Context, secs []market.Security) error
}

// Registry maps adapter names to factory functions. New adapter
// implementations register here.
var Registry = map[string]func(configJSON []byte) (Adapter, error){}

// New creates an adapter by name using the registry.
func New(name string, configJSON []byte) (Adapter, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("broker: unknown adapter %q, registered: %v", name, registeredNames())
	}
	return factory(configJSON)
}

func registeredNames() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	return names
}
