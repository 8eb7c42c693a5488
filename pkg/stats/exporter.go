package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exposes a GlobalStats snapshot as Prometheus metrics for the
// dashboard to scrape. The teacher queries a remote Prometheus; this
// engine instead runs the server side of that relationship — a local
// registry serving counters the dashboard polls.
type Exporter struct {
	stats *GlobalStats

	registry *prometheus.Registry

	runCount        prometheus.CounterFunc
	scoreMax        prometheus.GaugeFunc
	uniqueBuckets   prometheus.GaugeFunc
	avgRuntimeNS    prometheus.GaugeFunc
	featureCount    *prometheus.GaugeVec
	mutatorApplied  *prometheus.GaugeVec
	mutatorBugs     *prometheus.GaugeVec
}

// NewExporter builds an Exporter backed by g and registers its collectors.
func NewExporter(g *GlobalStats) *Exporter {
	e := &Exporter{
		stats:    g,
		registry: prometheus.NewRegistry(),
	}

	e.runCount = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "jitfuzz_run_count_total",
		Help: "Number of hot vectors folded into global coverage.",
	}, func() float64 { return float64(g.RunCount()) })

	e.scoreMax = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "jitfuzz_score_max",
		Help: "Highest interestingness score observed this session.",
	}, g.ScoreMax)

	e.uniqueBuckets = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "jitfuzz_unique_bug_buckets",
		Help: "Distinct deduplicated bug buckets observed this session.",
	}, func() float64 { return float64(g.UniqueBugBuckets()) })

	e.avgRuntimeNS = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "jitfuzz_avg_runtime_nanoseconds",
		Help: "Running average wall time across recorded cases.",
	}, g.GlobalAverageRuntimeNS)

	e.featureCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jitfuzz_feature_count",
		Help: "Global per-feature occurrence count.",
	}, []string{"feature"})

	e.mutatorApplied = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jitfuzz_mutator_applied_total",
		Help: "Applied count per mutator.",
	}, []string{"mutator"})

	e.mutatorBugs = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jitfuzz_mutator_bugs_total",
		Help: "Bug-producing outcomes per mutator.",
	}, []string{"mutator"})

	e.registry.MustRegister(e.runCount, e.scoreMax, e.uniqueBuckets, e.avgRuntimeNS,
		e.featureCount, e.mutatorApplied, e.mutatorBugs)

	return e
}

// RefreshFeatureGauges re-reads per-feature counters for the named features
// into the feature-count gauge vec. cmd/jitfuzz calls this on its own
// refresh interval; it is not wired to any hot path.
func (e *Exporter) RefreshFeatureGauges(featureNames []string) {
	for i, name := range featureNames {
		e.featureCount.WithLabelValues(name).Set(float64(e.stats.FeatureCount(i)))
	}
}

// RefreshMutatorGauges re-reads per-mutator outcome tallies into their gauges.
func (e *Exporter) RefreshMutatorGauges(mutatorNames []string) {
	for _, name := range mutatorNames {
		o := e.stats.MutatorOutcomeSnapshot(name)
		e.mutatorApplied.WithLabelValues(name).Set(float64(o.Applied))
		e.mutatorBugs.WithLabelValues(name).Set(float64(o.Bug))
	}
}

// Handler returns the http.Handler serving /metrics in Prometheus exposition
// format, suitable for mounting on the session's debug HTTP server.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
