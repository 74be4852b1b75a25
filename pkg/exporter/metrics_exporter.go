package exporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luongdev/fsmeasure/pkg/calculator"
	"github.com/luongdev/fsmeasure/pkg/logger"
	"github.com/luongdev/fsmeasure/pkg/measure"
)

// MetricsExporter publishes call quality metrics
type MetricsExporter interface {
	// Export publishes one quality summary
	Export(ctx context.Context, metrics *calculator.QoSMetrics) error

	// Start begins periodic export
	Start(ctx context.Context) error

	// Stop flushes and stops exporter
	Stop(ctx context.Context) error

	// Latest returns the most recently exported summary, nil before the first export
	Latest() *calculator.QoSMetrics
}

// ViewSource provides snapshots to summarize; *measure.CallMetrics implements it
type ViewSource interface {
	View() *measure.View
}

type prometheusExporter struct {
	source   ViewSource
	calc     calculator.QoSCalculator
	interval time.Duration

	rows        prometheus.Gauge
	asr         prometheus.Gauge
	sfr         prometheus.Gauge
	instRate    prometheus.Gauge
	windowRate  prometheus.Gauge
	failedCalls prometheus.Gauge
	latency     *prometheus.GaugeVec

	mu     sync.RWMutex
	latest *calculator.QoSMetrics
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPrometheusExporter registers call quality gauges on reg and summarizes
// source every interval once started
func NewPrometheusExporter(reg prometheus.Registerer, source ViewSource, calc calculator.QoSCalculator, interval time.Duration) (MetricsExporter, error) {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fsmeasure",
			Subsystem: "calls",
			Name:      name,
			Help:      help,
		})
	}

	e := &prometheusExporter{
		source:      source,
		calc:        calc,
		interval:    interval,
		rows:        gauge("rows", "Rows in the last summarized buffer snapshot"),
		asr:         gauge("answer_seizure_ratio", "Answer seizure ratio across the buffer"),
		sfr:         gauge("seizure_fail_rate", "Seizure fail rate across the buffer"),
		instRate:    gauge("instantaneous_rate", "Most recent instantaneous call rate (calls/s)"),
		windowRate:  gauge("windowed_rate", "Most recent windowed call rate (calls/s)"),
		failedCalls: gauge("failed", "Cumulative failed calls at the newest row"),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fsmeasure",
			Subsystem: "calls",
			Name:      "latency_seconds",
			Help:      "Call latency statistics across the buffer",
		}, []string{"kind", "stat"}),
	}

	for _, c := range []prometheus.Collector{e.rows, e.asr, e.sfr, e.instRate, e.windowRate, e.failedCalls, e.latency} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register call quality metrics: %w", err)
		}
	}
	return e, nil
}

func (e *prometheusExporter) Export(ctx context.Context, q *calculator.QoSMetrics) error {
	if q == nil {
		return fmt.Errorf("nil quality summary")
	}

	e.rows.Set(float64(q.Rows))
	if q.AnswerSeizureRatio != nil {
		e.asr.Set(*q.AnswerSeizureRatio)
		e.sfr.Set(*q.SeizureFailRate)
	}
	e.instRate.Set(q.InstantaneousRate)
	e.windowRate.Set(q.WindowedCallRate)
	e.failedCalls.Set(float64(q.FailedCalls))

	for kind, stats := range map[string]calculator.LatencyStats{
		"invite":     q.InviteLatency,
		"answer":     q.AnswerLatency,
		"call_setup": q.CallSetupLatency,
	} {
		e.latency.WithLabelValues(kind, "mean").Set(stats.Mean)
		e.latency.WithLabelValues(kind, "p50").Set(stats.P50)
		e.latency.WithLabelValues(kind, "p95").Set(stats.P95)
		e.latency.WithLabelValues(kind, "p99").Set(stats.P99)
	}

	e.mu.Lock()
	e.latest = q
	e.mu.Unlock()
	return nil
}

func (e *prometheusExporter) Latest() *calculator.QoSMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest
}

// exportOnce summarizes the current view and exports it
func (e *prometheusExporter) exportOnce(ctx context.Context) error {
	q, err := e.calc.Summarize(e.source.View())
	if err != nil {
		return fmt.Errorf("summarize call metrics: %w", err)
	}
	return e.Export(ctx, q)
}

func (e *prometheusExporter) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return fmt.Errorf("exporter already started")
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	e.mu.Unlock()

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := e.exportOnce(ctx); err != nil {
					logger.Warn("Call quality export failed: %v", err)
				}
			}
		}
	}()

	logger.Info("Call quality exporter started (interval %s)", e.interval)
	return nil
}

// Stop ends the loop and exports a final summary
func (e *prometheusExporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel = nil
	e.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return e.exportOnce(ctx)
}
