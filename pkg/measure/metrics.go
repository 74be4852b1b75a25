package measure

import "github.com/prometheus/client_golang/prometheus"

type bufferMetrics struct {
	inserts     prometheus.Counter
	rollovers   prometheus.Counter
	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newBufferMetrics(reg prometheus.Registerer, component string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"component": component}
	m := &bufferMetrics{
		inserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "fsmeasure",
			Subsystem:   "buffer",
			Name:        "inserts_total",
			ConstLabels: labels,
			Help:        "Total number of rows inserted into the call metrics buffer",
		}),
		rollovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "fsmeasure",
			Subsystem:   "buffer",
			Name:        "rollovers_total",
			ConstLabels: labels,
			Help:        "Total number of completed laps of the call metrics buffer",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "fsmeasure",
			Subsystem:   "buffer",
			Name:        "rows",
			ConstLabels: labels,
			Help:        "Number of valid rows in the call metrics buffer",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "fsmeasure",
			Subsystem:   "buffer",
			Name:        "utilization",
			ConstLabels: labels,
			Help:        "Valid rows as a fraction of capacity (0.0 to 1.0)",
		}),
	}

	for _, c := range []prometheus.Collector{m.inserts, m.rollovers, m.size, m.utilization} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *bufferMetrics) recordInsert(rows, capacity int, rollover bool) {
	m.inserts.Inc()
	if rollover {
		m.rollovers.Inc()
	}
	m.size.Set(float64(rows))
	m.utilization.Set(float64(rows) / float64(capacity))
}
