package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()

	m.IncrementEventsReceived("fs1", "CHANNEL_CREATE")
	m.IncrementEventsReceived("fs1", "CHANNEL_CREATE")
	m.IncrementEventsProcessed("fs1", "CHANNEL_CREATE")
	m.IncrementCallsRecorded("fs1")
	m.IncrementCallsFailed("fs2")
	m.IncrementSnapshots("ok")
	m.SetActiveSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsReceived.WithLabelValues("fs1", "CHANNEL_CREATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsProcessed.WithLabelValues("fs1", "CHANNEL_CREATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callsRecorded.WithLabelValues("fs1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callsFailed.WithLabelValues("fs2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshotsSaved.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeSessions))
}

func TestGetMetricsIsSingleton(t *testing.T) {
	assert.Same(t, GetMetrics(), GetMetrics())
	assert.NotNil(t, GetMetrics().Registry())
}
