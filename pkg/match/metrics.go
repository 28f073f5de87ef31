package match

import (
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rasher/reddit-modbot/pkg/core"
)

// Metrics holds the Prometheus collectors of the engine and rule store.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	evaluationsTotal   *prometheus.CounterVec
	matchesTotal       *prometheus.CounterVec
	dispatchErrors     *prometheus.CounterVec
	seenErrors         prometheus.Counter
	evaluationDuration *prometheus.HistogramVec
	rulesLoaded        prometheus.Gauge
	snapshotVersion    prometheus.Gauge
	parseErrors        *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
// It returns nil when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modbot",
			Subsystem: "engine",
			Name:      "evaluations_total",
			Help:      "Items evaluated, by context and result (skipped, matched, unmatched)",
		}, []string{"context", "result"}),

		matchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modbot",
			Subsystem: "engine",
			Name:      "rule_matches_total",
			Help:      "Items matched, by rule file",
		}, []string{"rule"}),

		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modbot",
			Subsystem: "engine",
			Name:      "dispatch_errors_total",
			Help:      "Matched items whose actions did not all succeed, by rule file",
		}, []string{"rule"}),

		seenErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modbot",
			Subsystem: "engine",
			Name:      "seen_persist_errors_total",
			Help:      "Seen marks that could not be persisted",
		}),

		evaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "modbot",
			Subsystem: "engine",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent matching one item against the rule snapshot",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"context"}),

		rulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "modbot",
			Subsystem: "rules",
			Name:      "loaded",
			Help:      "Number of rules in the current snapshot",
		}),

		snapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "modbot",
			Subsystem: "rules",
			Name:      "snapshot_version",
			Help:      "Version of the current rule snapshot",
		}),

		parseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modbot",
			Subsystem: "rules",
			Name:      "parse_errors_total",
			Help:      "Rule sources rejected, by rule file",
		}, []string{"rule"}),
	}

	reg.MustRegister(
		m.evaluationsTotal,
		m.matchesTotal,
		m.dispatchErrors,
		m.seenErrors,
		m.evaluationDuration,
		m.rulesLoaded,
		m.snapshotVersion,
		m.parseErrors,
	)
	return m
}

// ruleLabel keeps label cardinality to file names.
func ruleLabel(source string) string {
	return filepath.Base(source)
}

func (m *Metrics) evaluated(c core.Context, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.evaluationsTotal.WithLabelValues(string(c), result).Inc()
	if result != resultSkipped {
		m.evaluationDuration.WithLabelValues(string(c)).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) matched(source string) {
	if m == nil {
		return
	}
	m.matchesTotal.WithLabelValues(ruleLabel(source)).Inc()
}

func (m *Metrics) dispatchFailed(source string) {
	if m == nil {
		return
	}
	m.dispatchErrors.WithLabelValues(ruleLabel(source)).Inc()
}

func (m *Metrics) seenFailed() {
	if m == nil {
		return
	}
	m.seenErrors.Inc()
}

// RulesPublished implements rules.Observer.
func (m *Metrics) RulesPublished(snap *core.Snapshot) {
	if m == nil {
		return
	}
	m.rulesLoaded.Set(float64(snap.Len()))
	m.snapshotVersion.Set(float64(snap.Version))
}

// ParseFailed implements rules.Observer.
func (m *Metrics) ParseFailed(source string) {
	if m == nil {
		return
	}
	m.parseErrors.WithLabelValues(ruleLabel(source)).Inc()
}
