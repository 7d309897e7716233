// Package prometheus implements metrics.Recorder with Prometheus collectors.
package prometheus

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/slok/autotask/internal/metrics"
	"github.com/slok/autotask/internal/model"
)

const namespace = "autotask"

// Recorder is the Prometheus metrics recorder.
type Recorder struct {
	taskTransitions *prometheus.CounterVec
	safetyOutcomes  *prometheus.CounterVec
	stepDispatches  *prometheus.CounterVec
	stepAttempts    *prometheus.HistogramVec
	stepDuration    *prometheus.HistogramVec
	gateResolutions *prometheus.CounterVec
	gateWait        *prometheus.HistogramVec
	swept           *prometheus.CounterVec
}

var _ metrics.Recorder = (*Recorder)(nil)

// NewRecorder returns a recorder with all the collectors registered on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		taskTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "transitions_total",
			Help:      "Total number of task status transitions.",
		}, []string{"from", "to"}),
		safetyOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "evaluations_total",
			Help:      "Total number of safety evaluations by outcome.",
		}, []string{"action", "outcome", "dry_run"}),
		stepDispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "dispatches_total",
			Help:      "Total number of step dispatches to the runtime.",
		}, []string{"action", "success"}),
		stepAttempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "attempts",
			Help:      "Attempts needed by a step dispatch.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}, []string{"action"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "duration_seconds",
			Help:      "Step dispatch duration in seconds, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		gateResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "resolutions_total",
			Help:      "Total number of resolved human gates.",
		}, []string{"kind", "status"}),
		gateWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "wait_seconds",
			Help:      "Time a gate stayed pending.",
			Buckets:   []float64{10, 60, 300, 900, 3600, 4 * 3600, 24 * 3600},
		}, []string{"kind"}),
		swept: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "swept_total",
			Help:      "Total number of gates resolved by the expiry sweep.",
		}, []string{"kind"}),
	}
}

func (r *Recorder) TaskTransition(_ context.Context, from, to model.TaskStatus) {
	r.taskTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (r *Recorder) SafetyOutcome(_ context.Context, action model.ActionType, outcome model.SafetyOutcome, dryRun bool) {
	r.safetyOutcomes.WithLabelValues(string(action), string(outcome), strconv.FormatBool(dryRun)).Inc()
}

func (r *Recorder) StepDispatch(_ context.Context, action model.ActionType, success bool, attempts int, duration time.Duration) {
	r.stepDispatches.WithLabelValues(string(action), strconv.FormatBool(success)).Inc()
	r.stepAttempts.WithLabelValues(string(action)).Observe(float64(attempts))
	r.stepDuration.WithLabelValues(string(action)).Observe(duration.Seconds())
}

func (r *Recorder) GateResolved(_ context.Context, kind model.GateKind, status string, waited time.Duration) {
	r.gateResolutions.WithLabelValues(string(kind), status).Inc()
	r.gateWait.WithLabelValues(string(kind)).Observe(waited.Seconds())
}

func (r *Recorder) Swept(_ context.Context, kind model.GateKind, resolved int) {
	r.swept.WithLabelValues(string(kind)).Add(float64(resolved))
}
