// Package metrics exposes the process's Prometheus gauges and counters:
// oracle collection sizes, bundle inclusion outcomes, and simulation
// latency, per SPEC_FULL.md's domain-stack table.
package metrics

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OracleSize tracks the live length of each oracle collection, labeled
	// by oracle name ("sell", "anti_rug", "retry").
	OracleSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sniper",
		Name:      "oracle_size",
		Help:      "Number of SnipeTx entries currently held by an oracle collection.",
	}, []string{"oracle"})

	// BundlesDispatched counts dispatch attempts, labeled by tag
	// (frontrun/backrun/solo) and outcome (included/not_included/error).
	BundlesDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sniper",
		Name:      "bundles_dispatched_total",
		Help:      "Bundle dispatch attempts by tag and outcome.",
	}, []string{"tag", "outcome"})

	// SimulationLatency measures wall-clock time spent inside a single
	// simulation pipeline call, labeled by the call's name.
	SimulationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sniper",
		Name:      "simulation_latency_seconds",
		Help:      "Latency of simulation pipeline calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"call"})

	// PairsDiscovered counts new pools the PairOracle admits past its
	// reserve filter.
	PairsDiscovered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sniper",
		Name:      "pairs_discovered_total",
		Help:      "Pools admitted by the PairOracle reserve filter.",
	})
)

func init() {
	prometheus.MustRegister(OracleSize, BundlesDispatched, SimulationLatency, PairsDiscovered)
}

// ObserveLatency records the duration of a simulation call. Callers defer
// this at the top of the function they want timed:
//
//	defer metrics.ObserveLatency("find_amount_in", time.Now())
func ObserveLatency(call string, start time.Time) {
	SimulationLatency.WithLabelValues(call).Observe(time.Since(start).Seconds())
}

// RecordDispatch records a single bundle dispatch outcome.
func RecordDispatch(tag, outcome string) {
	BundlesDispatched.WithLabelValues(tag, outcome).Inc()
}

// SetOracleSize records the current length of one oracle collection.
func SetOracleSize(oracle string, n int) {
	OracleSize.WithLabelValues(oracle).Set(float64(n))
}

// Serve starts the /metrics HTTP endpoint in a background goroutine. It
// does not block; a bind failure is logged, not fatal, since metrics are
// observability-only (spec Non-goals exclude making them load-bearing).
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics: server stopped", "addr", addr, "err", err)
		}
	}()
}
