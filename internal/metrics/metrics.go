package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters the versioning core exposes. A nil *Metrics is
// valid everywhere one is accepted; recording on it is a no-op.
type Metrics struct {
	conflictsDetected prometheus.Counter
	obsoleteWrites    prometheus.Counter
	hintsRecorded     prometheus.Counter
	hintsReplayed     prometheus.Counter
	hintsFailed       prometheus.Counter
	handoffDepth      prometheus.Gauge
	registeredStores  prometheus.Gauge
}

// NewMetrics builds the metric set and registers it with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		conflictsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "store_conflicts_detected_total",
			Help: "Reads that resolved to more than one concurrent version",
		}),
		obsoleteWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "store_obsolete_writes_total",
			Help: "Writes rejected because a stored version already dominated them",
		}),
		hintsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handoff_hints_recorded_total",
			Help: "Writes parked in the handoff store for an unreachable replica",
		}),
		hintsReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handoff_hints_replayed_total",
			Help: "Hints delivered to their destination replica",
		}),
		hintsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handoff_hints_failed_total",
			Help: "Hint delivery attempts that failed",
		}),
		handoffDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "handoff_outstanding_hints",
			Help: "Hints currently waiting for replay",
		}),
		registeredStores: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_registered_stores",
			Help: "Store handles currently registered in the repository",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.conflictsDetected,
			m.obsoleteWrites,
			m.hintsRecorded,
			m.hintsReplayed,
			m.hintsFailed,
			m.handoffDepth,
			m.registeredStores,
		)
	}
	return m
}

func (m *Metrics) ConflictDetected() {
	if m != nil {
		m.conflictsDetected.Inc()
	}
}

func (m *Metrics) ObsoleteWrite() {
	if m != nil {
		m.obsoleteWrites.Inc()
	}
}

func (m *Metrics) HintRecorded() {
	if m != nil {
		m.hintsRecorded.Inc()
	}
}

func (m *Metrics) HintReplayed() {
	if m != nil {
		m.hintsReplayed.Inc()
	}
}

func (m *Metrics) HintFailed() {
	if m != nil {
		m.hintsFailed.Inc()
	}
}

func (m *Metrics) SetHandoffDepth(n int) {
	if m != nil {
		m.handoffDepth.Set(float64(n))
	}
}

func (m *Metrics) SetRegisteredStores(n int) {
	if m != nil {
		m.registeredStores.Set(float64(n))
	}
}
