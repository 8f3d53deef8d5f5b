package rdm

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsCollector is the interface required to collect statistics
type StatsCollector interface {
	AddMessagesQueued(n int)
	AddMessagesAcked(n int)
	AddMessagesDispatched(n int)
	AddExchange(err error)
	AddGap()
}

// PrometheusStats is a StatsCollector exporting Prometheus counters.
// Register it with a prometheus.Registerer to expose them.
type PrometheusStats struct {
	queued     prometheus.Counter
	acked      prometheus.Counter
	dispatched prometheus.Counter
	exchanges  *prometheus.CounterVec
	gaps       prometheus.Counter
}

// NewPrometheusStats returns counters named <namespace>_<subsystem>_*.
func NewPrometheusStats(namespace, subsystem string) *PrometheusStats {
	return &PrometheusStats{
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_queued_total",
			Help:      "Outbound messages queued for delivery.",
		}),
		acked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_acked_total",
			Help:      "Outbound messages acknowledged by the peer.",
		}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_dispatched_total",
			Help:      "Inbound messages dispatched to an action.",
		}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "exchanges_total",
			Help:      "Completed exchanges by result.",
		}, []string{"result"}),
		gaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sequence_gaps_total",
			Help:      "Inbound batches dropped because of a sequence gap.",
		}),
	}
}

// AddMessagesQueued implements StatsCollector.
func (ps *PrometheusStats) AddMessagesQueued(n int) { ps.queued.Add(float64(n)) }

// AddMessagesAcked implements StatsCollector.
func (ps *PrometheusStats) AddMessagesAcked(n int) { ps.acked.Add(float64(n)) }

// AddMessagesDispatched implements StatsCollector.
func (ps *PrometheusStats) AddMessagesDispatched(n int) { ps.dispatched.Add(float64(n)) }

// AddExchange implements StatsCollector.
func (ps *PrometheusStats) AddExchange(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ps.exchanges.WithLabelValues(result).Inc()
}

// AddGap implements StatsCollector.
func (ps *PrometheusStats) AddGap() { ps.gaps.Inc() }

// Describe implements prometheus.Collector.
func (ps *PrometheusStats) Describe(ch chan<- *prometheus.Desc) {
	ps.queued.Describe(ch)
	ps.acked.Describe(ch)
	ps.dispatched.Describe(ch)
	ps.exchanges.Describe(ch)
	ps.gaps.Describe(ch)
}

// Collect implements prometheus.Collector.
func (ps *PrometheusStats) Collect(ch chan<- prometheus.Metric) {
	ps.queued.Collect(ch)
	ps.acked.Collect(ch)
	ps.dispatched.Collect(ch)
	ps.exchanges.Collect(ch)
	ps.gaps.Collect(ch)
}
