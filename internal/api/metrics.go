// metrics.go exposes Prometheus metrics for observability (spec §6.5
// GET /metrics), adopted from chidi150c-coinbase's go.mod — the only repo
// in the pack that wires github.com/prometheus/client_golang — since no
// other example shows an idiomatic metrics-registration pattern to follow.
package api

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxReserves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "percolator_reserves_total",
			Help: "Reserve calls by slab and outcome",
		},
		[]string{"slab", "outcome"}, // outcome: ok|rejected
	)

	mtxCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "percolator_commits_total",
			Help: "Commit calls by slab and outcome",
		},
		[]string{"slab", "outcome"},
	)

	mtxKillBandRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "percolator_kill_band_rejections_total",
			Help: "Commits rejected by the kill-band check",
		},
		[]string{"slab"},
	)

	mtxARGTaxApplications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "percolator_arg_tax_applications_total",
			Help: "Fills that incurred the Aggressor Roundtrip Guard tax",
		},
		[]string{"slab"},
	)

	mtxPoolUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "percolator_pool_utilization_ratio",
			Help: "Fraction of pool capacity in use, by slab and pool name",
		},
		[]string{"slab", "pool"},
	)

	mtxRouterIM = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "percolator_router_portfolio_im",
			Help: "Router-level portfolio initial margin across all netted symbols",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxReserves, mtxCommits)
	prometheus.MustRegister(mtxKillBandRejections, mtxARGTaxApplications)
	prometheus.MustRegister(mtxPoolUtilization, mtxRouterIM)
}

// RecordReserve increments the per-slab reserve counter.
func RecordReserve(slabID string, ok bool) {
	mtxReserves.WithLabelValues(slabID, outcomeLabel(ok)).Inc()
}

// RecordCommit increments the per-slab commit counter and, on a kill-band
// rejection specifically, the dedicated kill-band counter.
func RecordCommit(slabID string, ok bool, killBandTripped bool) {
	mtxCommits.WithLabelValues(slabID, outcomeLabel(ok)).Inc()
	if killBandTripped {
		mtxKillBandRejections.WithLabelValues(slabID).Inc()
	}
}

// RecordARGTax increments the per-slab ARG tax counter.
func RecordARGTax(slabID string) {
	mtxARGTaxApplications.WithLabelValues(slabID).Inc()
}

// SetPoolUtilization records a pool's current in-use fraction.
func SetPoolUtilization(slabID, pool string, ratio float64) {
	mtxPoolUtilization.WithLabelValues(slabID, pool).Set(ratio)
}

// SetRouterPortfolioIM records the Router's current portfolio IM.
func SetRouterPortfolioIM(im float64) {
	mtxRouterIM.Set(im)
}

func outcomeLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "rejected"
}
