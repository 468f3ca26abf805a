// Package engine - strategy.go defines the strategy callback contract.
package engine

// Strategy is the user-written strategy. The backtest driver invokes all
// five callbacks at fixed points; the live driver invokes all but
// HandleData. Embed BaseStrategy to implement only the ones a strategy
// needs.
type Strategy interface {
	// Initialize runs once at driver start. Scheduling registrations
	// belong here.
	Initialize(ctx *Context) error

	// ProcessInitialize runs right after Initialize at every driver
	// start; state rebuilt from persisted globals belongs here. A stream
	// reconnect does not run it again.
	ProcessInitialize(ctx *Context) error

	// BeforeTradingStart runs at each trade day's before-open, after
	// corporate actions and the T+1 closeable update.
	BeforeTradingStart(ctx *Context) error

	// HandleData runs on each bar of the backtest driver's frequency.
	// The live driver does not call it.
	HandleData(ctx *Context, data *CurrentData) error

	// AfterTradingEnd runs after the session close and mark-to-market.
	AfterTradingEnd(ctx *Context) error
}

// BaseStrategy provides no-op implementations of every callback.
type BaseStrategy struct{}

func (BaseStrategy) Initialize(*Context) error               { return nil }
func (BaseStrategy) ProcessInitialize(*Context) error        { return nil }
func (BaseStrategy) BeforeTradingStart(*Context) error       { return nil }
func (BaseStrategy) HandleData(*Context, *CurrentData) error { return nil }
func (BaseStrategy) AfterTradingEnd(*Context) error          { return nil }
