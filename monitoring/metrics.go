package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchbox_orders_total",
		Help: "Orders processed, labelled by outcome.",
	}, []string{"status"})

	CancelsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchbox_cancels_total",
		Help: "Cancel requests, labelled by outcome.",
	}, []string{"result"})

	TradesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchbox_trades_total",
		Help: "Executed trades.",
	})

	TradeVolume = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchbox_trade_volume_total",
		Help: "Total traded quantity.",
	})

	OrderLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchbox_order_latency_seconds",
		Help:    "Submit-to-result latency in seconds.",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
	})

	RestingOrders = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matchbox_resting_orders",
		Help: "Resting orders per instrument.",
	}, []string{"symbol"})

	OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchbox_outbox_pending",
		Help: "Trades awaiting downstream acknowledgement.",
	})
)

func InitMetrics() {
	prometheus.MustRegister(OrdersTotal)
	prometheus.MustRegister(CancelsTotal)
	prometheus.MustRegister(TradesTotal)
	prometheus.MustRegister(TradeVolume)
	prometheus.MustRegister(OrderLatency)
	prometheus.MustRegister(RestingOrders)
	prometheus.MustRegister(OutboxPending)
}
