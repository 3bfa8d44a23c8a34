// Package metrics exposes Prometheus instruments and the OpenTelemetry
// tracer shared by the analysis engine and the buffer lifecycle manager.
//
// Instruments are registered on the default Prometheus registry at init
// via promauto. The tracer is resolved from the global provider, which is
// a no-op until the embedding process installs one.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// Tracer is used for spans around regeneration and analysis.
var Tracer = otel.Tracer("chainloom")

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainloom_analyses_total",
		Help: "Critical chain analyses by outcome",
	}, []string{"outcome"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chainloom_analysis_duration_seconds",
		Help:    "Wall time of a full critical chain analysis",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	levelingRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chainloom_leveling_rounds",
		Help:    "Resource leveling rounds needed to reach a fixed point",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
	})

	levelingNotConverged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainloom_leveling_not_converged_total",
		Help: "Analyses where resource leveling hit its iteration cap",
	})

	buffersArchived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainloom_buffers_archived_total",
		Help: "Buffers moved from ACTIVE to ARCHIVED",
	}, []string{"type"})

	buffersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainloom_buffers_created_total",
		Help: "ACTIVE buffers inserted by regeneration",
	}, []string{"type"})

	dependencyRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainloom_dependency_rejections_total",
		Help: "Dependency insertions rejected, by failure kind",
	}, []string{"kind"})
)

// ObserveAnalysis records one analysis run.
func ObserveAnalysis(elapsed time.Duration, outcome string, rounds int, converged bool) {
	analysesTotal.WithLabelValues(outcome).Inc()
	analysisDuration.Observe(elapsed.Seconds())
	if outcome != OutcomeSuccess {
		return
	}
	levelingRounds.Observe(float64(rounds))
	if !converged {
		levelingNotConverged.Inc()
	}
}

// BuffersArchived adds n archived buffers of the given type.
func BuffersArchived(bufferType string, n int) {
	buffersArchived.WithLabelValues(bufferType).Add(float64(n))
}

// BuffersCreated adds n created buffers of the given type.
func BuffersCreated(bufferType string, n int) {
	buffersCreated.WithLabelValues(bufferType).Add(float64(n))
}

// DependencyRejected counts a rejected dependency insert.
func DependencyRejected(kind string) {
	dependencyRejections.WithLabelValues(kind).Inc()
}
