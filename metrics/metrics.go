package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CandlesSeen = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "augur_candles_seen_total", Help: "Candles parsed from market data responses"},
	)
	CandlesInserted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "augur_candles_inserted_total", Help: "Candles written to the store"},
	)
	IngestionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "augur_ingestion_failures_total", Help: "Failed ingestion windows"},
	)
	Judgments = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "augur_judgments_total", Help: "Oracle judgments by prediction"},
		[]string{"prediction"},
	)
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "augur_orders_submitted_total", Help: "Orders acknowledged by the venue"},
		[]string{"side"},
	)
	CycleFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "augur_cycle_failures_total", Help: "Failed decision cycles by error kind"},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(CandlesSeen, CandlesInserted, IngestionFailures,
		Judgments, OrdersSubmitted, CycleFailures)
}

// Handler returns the metrics exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
