// Package engine - metrics.go exposes live-mode Prometheus metrics.
//
//   - bullet_orders_total{side}   – orders routed to the broker
//   - bullet_fills_total{side}    – orders that reached filled or partial
//   - bullet_clock_delay_seconds  – wall clock minus exchange clock
//   - bullet_total_value          – portfolio mark-to-market snapshot
//
// Registered in init() and served at /metrics when metrics_addr is set.
// The backtest driver never touches them.
package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bullet_orders_total",
			Help: "Orders routed to the broker",
		},
		[]string{"side"},
	)

	mtxFills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bullet_fills_total",
			Help: "Orders that reached filled or partial status",
		},
		[]string{"side"},
	)

	mtxClockDelay = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bullet_clock_delay_seconds",
			Help: "Wall clock minus exchange clock at dispatch",
		},
	)

	mtxTotalValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bullet_total_value",
			Help: "Portfolio mark-to-market value",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxOrders, mtxFills, mtxClockDelay, mtxTotalValue)
}
