package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Deliveries counts delivery state transitions by outcome: success, retry,
// failure, stale (retry window closed) and expired (swept past deadline).
var Deliveries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mailout_deliveries_total",
		Help: "Delivery state transitions by outcome.",
	},
	[]string{"outcome"},
)
