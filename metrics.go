package regka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "regka"
	metricsSubsystem = "participant"
)

// Values of the "result" label on Metrics.MessagesReceived.
const (
	ResultAccepted  = "accepted"
	ResultDuplicate = "duplicate"
	ResultInvalid   = "invalid"
)

// Metrics are the prometheus collectors updated by a [Participant].
type Metrics struct {
	MessagesReceived       *prometheus.CounterVec
	ContributionsLearned   prometheus.Counter
	MessagesForwarded      prometheus.Counter
	ContributionsForwarded prometheus.Counter

	ContributionsKnown prometheus.Gauge
	Converged          prometheus.Gauge
	ConvergenceDelay   prometheus.Gauge
}

// NewMetrics creates the participant metrics and registers them with reg.
// If reg is nil, the metrics are created but not registered.
//
// The collectors have fixed names,
// so only one set can be registered with a given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_received_total",
			Help:      "Gossip messages handled, by result.",
		}, []string{"result"}),

		ContributionsLearned: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "contributions_learned_total",
			Help:      "Key contributions newly learned from peers.",
		}),

		MessagesForwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_forwarded_total",
			Help:      "Outgoing gossip messages produced.",
		}),

		ContributionsForwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "contributions_forwarded_total",
			Help:      "Key contributions included across outgoing gossip messages.",
		}),

		ContributionsKnown: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "contributions_known",
			Help:      "Key contributions currently held.",
		}),

		Converged: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "converged",
			Help:      "1 once every key contribution is held, otherwise 0.",
		}),

		ConvergenceDelay: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "convergence_delay_seconds",
			Help:      "Time from participant creation until every key contribution was held.",
		}),
	}
}
