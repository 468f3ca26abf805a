// Package broker - simulator.go implements the simulator adapter.
//
// The simulator fills orders immediately at the submitted price (or the
// last pushed quote for market orders) so all live-engine logic can run
// without a real brokerage. It caps subscriptions at 100 symbols, the
// same limit the real simulator service enforces.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/portfolio"
)

// SimulatorMaxSubscriptions is the simulator's symbol cap.
const SimulatorMaxSubscriptions = 100

func init() {
	Registry["simulator"] = func(configJSON []byte) (Adapter, error) {
		var cfg struct {
			Capital float64 `json:"capital"`
		}
		if len(configJSON) > 0 {
			if err := json.Unmarshal(configJSON, &cfg); err != nil {
				return nil, fmt.Errorf("broker: parse simulator config: %w", err)
			}
		}
		if cfg.Capital <= 0 {
			cfg.Capital = 1000000
		}
		return NewSimulator(cfg.Capital), nil
	}
}

// Simulator is the in-memory adapter for live-mode dry runs.
type Simulator struct {
	mu            sync.Mutex
	connected     bool
	cash          float64
	positions     map[market.Security]*PositionInfo
	orders        map[string]*OrderStatus
	subscriptions map[market.Security]SubscribeKind
	quotes        map[market.Security]float64
}

// NewSimulator creates a simulator funded with capital.
func NewSimulator(capital float64) *Simulator {
	return &Simulator{
		cash:          capital,
		positions:     make(map[market.Security]*PositionInfo),
		orders:        make(map[string]*OrderStatus),
		subscriptions: make(map[market.Security]SubscribeKind),
		quotes:        make(map[market.Security]float64),
	}
}

// PushQuote feeds the simulator a last price, standing in for the
// exchange feed.
func (s *Simulator) PushQuote(sec market.Security, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[sec] = price
	if p, ok := s.positions[sec]; ok {
		p.LastPrice = price
	}
}

func (s *Simulator) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *Simulator) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *Simulator) GetAccountInfo(_ context.Context) (AccountInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.cash
	for _, p := range s.positions {
		total += float64(p.TotalAmount) * p.LastPrice
	}
	return AccountInfo{AvailableCash: s.cash, TotalAssets: total}, nil
}

func (s *Simulator) GetPositions(_ context.Context) ([]PositionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PositionInfo, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	return out, nil
}

func (s *Simulator) Buy(_ context.Context, sec market.Security, amount int64, price float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orderID := "SIM-" + uuid.NewString()
	fillPrice := price
	if fillPrice <= 0 {
		fillPrice = s.quotes[sec]
	}
	if fillPrice <= 0 {
		s.orders[orderID] = &OrderStatus{
			OrderID: orderID, Security: sec, Status: portfolio.StatusRejected,
			Message: "no quote for market order", UpdatedAt: time.Now(),
		}
		return orderID, nil
	}

	cost := float64(amount) * fillPrice
	if cost > s.cash {
		s.orders[orderID] = &OrderStatus{
			OrderID: orderID, Security: sec, Status: portfolio.StatusRejected,
			Message: "insufficient funds", UpdatedAt: time.Now(),
		}
		return orderID, nil
	}

	s.cash -= cost
	p, ok := s.positions[sec]
	if !ok {
		p = &PositionInfo{Security: sec}
		s.positions[sec] = p
	}
	newTotal := p.TotalAmount + amount
	p.AvgCost = (p.AvgCost*float64(p.TotalAmount) + cost) / float64(newTotal)
	p.TotalAmount = newTotal
	p.LastPrice = fillPrice

	s.orders[orderID] = &OrderStatus{
		OrderID: orderID, Security: sec, Status: portfolio.StatusFilled,
		FilledAmount: amount, AvgFillPrice: fillPrice, UpdatedAt: time.Now(),
	}
	return orderID, nil
}

func (s *Simulator) Sell(_ context.Context, sec market.Security, amount int64, price float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orderID := "SIM-" + uuid.NewString()
	p, ok := s.positions[sec]
	if !ok || p.CloseableAmount < amount {
		s.orders[orderID] = &OrderStatus{
			OrderID: orderID, Security: sec, Status: portfolio.StatusRejected,
			Message: "insufficient closeable holdings", UpdatedAt: time.Now(),
		}
		return orderID, nil
	}

	fillPrice := price
	if fillPrice <= 0 {
		fillPrice = s.quotes[sec]
	}
	if fillPrice <= 0 {
		fillPrice = p.LastPrice
	}

	p.TotalAmount -= amount
	p.CloseableAmount -= amount
	s.cash += float64(amount) * fillPrice
	if p.TotalAmount == 0 {
		delete(s.positions, sec)
	}

	s.orders[orderID] = &OrderStatus{
		OrderID: orderID, Security: sec, Status: portfolio.StatusFilled,
		FilledAmount: amount, AvgFillPrice: fillPrice, UpdatedAt: time.Now(),
	}
	return orderID, nil
}

// SettleCloseable mirrors the T+1 before-open unlock for simulated
// positions.
func (s *Simulator) SettleCloseable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.positions {
		p.CloseableAmount = p.TotalAmount
	}
}

func (s *Simulator) CancelOrder(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.orders[orderID]
	if !ok {
		return false, &AdapterError{Op: "cancel_order", Err: fmt.Errorf("order %s not found", orderID)}
	}
	if st.Status.Terminal() {
		return false, nil
	}
	st.Status = portfolio.StatusCancelled
	st.UpdatedAt = time.Now()
	return true, nil
}

func (s *Simulator) GetOrderStatus(_ context.Context, orderID string) (OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.orders[orderID]
	if !ok {
		return OrderStatus{}, &AdapterError{Op: "get_order_status", Err: fmt.Errorf("order %s not found", orderID)}
	}
	return *st, nil
}

func (s *Simulator) SyncOrders(_ context.Context) ([]OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]OrderStatus, 0, len(s.orders))
	for _, st := range s.orders {
		out = append(out, *st)
	}
	return out, nil
}

func (s *Simulator) GetOpenOrders(_ context.Context) ([]OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []OrderStatus
	for _, st := range s.orders {
		if !st.Status.Terminal() {
			out = append(out, *st)
		}
	}
	return out, nil
}

// Subscribe registers symbols for push quotes. Derivative symbols are
// forbidden and the total is capped at SimulatorMaxSubscriptions.
func (s *Simulator) Subscribe(_ context.Context, secs []market.Security, kind SubscribeKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sec := range secs {
		if IsDerivativeSymbol(sec) {
			return fmt.Errorf("broker: cannot subscribe derivative symbol %s", sec)
		}
	}

	added := 0
	for _, sec := range secs {
		if _, ok := s.subscriptions[sec]; !ok {
			added++
		}
	}
	if len(s.subscriptions)+added > SimulatorMaxSubscriptions {
		return fmt.Errorf("broker: subscription cap %d exceeded (%d active, %d requested)",
			SimulatorMaxSubscriptions, len(s.subscriptions), added)
	}

	for _, sec := range secs {
		s.subscriptions[sec] = kind
	}
	return nil
}

func (s *Simulator) Unsubscribe(_ context.Context, secs []market.Security) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sec := range secs {
		delete(s.subscriptions, sec)
	}
	return nil
}

// SubscriptionCount returns the number of active subscriptions.
func (s *Simulator) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscriptions)
}

// IsDerivativeSymbol reports whether a symbol names a futures main
// contract or index future, which cannot be tick-subscribed.
func IsDerivativeSymbol(sec market.Security) bool {
	code := strings.ToUpper(sec.Code)
	return strings.HasSuffix(code, "8888") || strings.HasSuffix(code, "9999")
}
