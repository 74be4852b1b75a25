package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the agent's own counters on a dedicated Prometheus registry
type Metrics struct {
	registry *prometheus.Registry

	eventsReceived  *prometheus.CounterVec
	eventsProcessed *prometheus.CounterVec
	callsRecorded   *prometheus.CounterVec
	callsFailed     *prometheus.CounterVec
	snapshotsSaved  *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// GetMetrics returns the process-wide metrics instance
func GetMetrics() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New creates a metrics set on a fresh registry, including Go runtime collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fsmeasure",
			Name:      "events_received_total",
			Help:      "FreeSWITCH events received",
		}, []string{"fs_instance", "event_type"}),
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fsmeasure",
			Name:      "events_processed_total",
			Help:      "FreeSWITCH events processed without error",
		}, []string{"fs_instance", "event_type"}),
		callsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fsmeasure",
			Name:      "calls_recorded_total",
			Help:      "Calls written to the call metrics buffer",
		}, []string{"fs_instance"}),
		callsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fsmeasure",
			Name:      "calls_failed_total",
			Help:      "Calls that hung up without being answered",
		}, []string{"fs_instance"}),
		snapshotsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fsmeasure",
			Name:      "snapshots_total",
			Help:      "Buffer snapshots written to storage",
		}, []string{"result"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fsmeasure",
			Name:      "active_sessions",
			Help:      "Sessions currently tracked by the processor",
		}),
	}

	m.registry.MustRegister(
		m.eventsReceived,
		m.eventsProcessed,
		m.callsRecorded,
		m.callsFailed,
		m.snapshotsSaved,
		m.activeSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncrementEventsReceived counts an incoming event
func (m *Metrics) IncrementEventsReceived(instanceName, eventType string) {
	m.eventsReceived.WithLabelValues(instanceName, eventType).Inc()
}

// IncrementEventsProcessed counts a successfully handled event
func (m *Metrics) IncrementEventsProcessed(instanceName, eventType string) {
	m.eventsProcessed.WithLabelValues(instanceName, eventType).Inc()
}

// IncrementCallsRecorded counts a row inserted into the buffer
func (m *Metrics) IncrementCallsRecorded(instanceName string) {
	m.callsRecorded.WithLabelValues(instanceName).Inc()
}

// IncrementCallsFailed counts a failed call
func (m *Metrics) IncrementCallsFailed(instanceName string) {
	m.callsFailed.WithLabelValues(instanceName).Inc()
}

// IncrementSnapshots counts a snapshot attempt; result is "ok" or "error"
func (m *Metrics) IncrementSnapshots(result string) {
	m.snapshotsSaved.WithLabelValues(result).Inc()
}

// SetActiveSessions sets the tracked session gauge
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}
