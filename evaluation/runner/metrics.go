package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Trial outcome labels.
const (
	OutcomePassed  = "passed"
	OutcomeFailed  = "failed"
	OutcomeErrored = "errored"
)

// Metrics exposes Prometheus collectors that report batch progress.
type Metrics struct {
	trialDuration    *prometheus.HistogramVec
	trialsTotal      *prometheus.CounterVec
	checkpointWrites *prometheus.CounterVec
	trialsActive     prometheus.Gauge
	trialsSkipped    prometheus.Counter
}

// MustNewMetrics registers the runner collectors with reg. Collectors that
// are already registered are reused, so several runners may share one
// registry. Any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	trialDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tau",
			Subsystem: "runner",
			Name:      "trial_duration_seconds",
			Help:      "Wall time of one (task, trial) episode including reward computation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	trialsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tau",
			Subsystem: "runner",
			Name:      "trials_total",
			Help:      "Finished trials by outcome.",
		},
		[]string{"outcome"},
	)
	checkpointWrites := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tau",
			Subsystem: "runner",
			Name:      "checkpoint_writes_total",
			Help:      "Checkpoint appends by status.",
		},
		[]string{"status"},
	)
	trialsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tau",
			Subsystem: "runner",
			Name:      "trials_active",
			Help:      "Trials currently running.",
		},
	)
	trialsSkipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tau",
			Subsystem: "runner",
			Name:      "trials_skipped_total",
			Help:      "Planned trials skipped because the checkpoint already holds them.",
		},
	)

	collectors := []prometheus.Collector{trialDuration, trialsTotal, checkpointWrites, trialsActive, trialsSkipped}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				panic(err)
			}
			switch collector {
			case trialDuration:
				trialDuration = already.ExistingCollector.(*prometheus.HistogramVec)
			case trialsTotal:
				trialsTotal = already.ExistingCollector.(*prometheus.CounterVec)
			case checkpointWrites:
				checkpointWrites = already.ExistingCollector.(*prometheus.CounterVec)
			case trialsActive:
				trialsActive = already.ExistingCollector.(prometheus.Gauge)
			case trialsSkipped:
				trialsSkipped = already.ExistingCollector.(prometheus.Counter)
			}
		}
	}

	return &Metrics{
		trialDuration:    trialDuration,
		trialsTotal:      trialsTotal,
		checkpointWrites: checkpointWrites,
		trialsActive:     trialsActive,
		trialsSkipped:    trialsSkipped,
	}
}

// ObserveTrial records a finished trial.
func (m *Metrics) ObserveTrial(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.trialsTotal.WithLabelValues(outcome).Inc()
	m.trialDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveCheckpointWrite counts a checkpoint append.
func (m *Metrics) ObserveCheckpointWrite(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.checkpointWrites.WithLabelValues(status).Inc()
}

// IncActiveTrials marks a trial as started.
func (m *Metrics) IncActiveTrials() {
	if m == nil {
		return
	}
	m.trialsActive.Inc()
}

// DecActiveTrials marks a trial as finished.
func (m *Metrics) DecActiveTrials() {
	if m == nil {
		return
	}
	m.trialsActive.Dec()
}

// AddSkipped counts trials resumed from the checkpoint.
func (m *Metrics) AddSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.trialsSkipped.Add(float64(n))
}
