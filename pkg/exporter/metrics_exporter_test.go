package exporter

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luongdev/fsmeasure/pkg/calculator"
	"github.com/luongdev/fsmeasure/pkg/measure"
)

func newSource(t *testing.T) *measure.CallMetrics {
	t.Helper()
	cm, err := measure.New(16)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		f := float64(i)
		cm.Insert(measure.NewRecord(f, 0.1, 0.2, 0.5, 0, 0, uint32(i/2), 1))
	}
	return cm
}

func TestExportSetsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	cm := newSource(t)
	e, err := NewPrometheusExporter(reg, cm, calculator.NewQoSCalculator(100), time.Hour)
	require.NoError(t, err)
	assert.Nil(t, e.Latest())

	q, err := calculator.NewQoSCalculator(100).Summarize(cm.View())
	require.NoError(t, err)
	require.NoError(t, e.Export(context.Background(), q))

	pe := e.(*prometheusExporter)
	assert.Equal(t, 5.0, testutil.ToFloat64(pe.rows))
	assert.InDelta(t, 0.5, testutil.ToFloat64(pe.asr), 1e-12)
	assert.InDelta(t, 1.0, testutil.ToFloat64(pe.instRate), 1e-12)
	assert.Equal(t, 0.5, testutil.ToFloat64(pe.latency.WithLabelValues("call_setup", "p99")))
	assert.Same(t, q, e.Latest())

	assert.Error(t, e.Export(context.Background(), nil))
}

func TestExporterLoop(t *testing.T) {
	reg := prometheus.NewRegistry()
	cm := newSource(t)
	e, err := NewPrometheusExporter(reg, cm, calculator.NewQoSCalculator(100), 10*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	assert.Error(t, e.Start(context.Background()))

	assert.Eventually(t, func() bool { return e.Latest() != nil }, time.Second, 5*time.Millisecond)

	cm.Insert(measure.NewRecord(5, 0.1, 0.2, 0.5, 0, 0, 3, 1))
	require.NoError(t, e.Stop(context.Background()))
	assert.Equal(t, 6, e.Latest().Rows)

	// stopping twice is a no-op
	require.NoError(t, e.Stop(context.Background()))
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	cm := newSource(t)
	_, err := NewPrometheusExporter(reg, cm, calculator.NewQoSCalculator(100), time.Second)
	require.NoError(t, err)
	_, err = NewPrometheusExporter(reg, cm, calculator.NewQoSCalculator(100), time.Second)
	assert.Error(t, err)
}
