package calculator

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luongdev/fsmeasure/pkg/measure"
)

func TestPercentile(t *testing.T) {
	values := []float64{5, 1, 4, 2, 3}
	assert.Equal(t, 1.0, Percentile(values, 0))
	assert.Equal(t, 3.0, Percentile(values, 50))
	assert.Equal(t, 4.0, Percentile(values, 95))
	assert.Equal(t, 5.0, Percentile(values, 100))
	// input is left untouched
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, values)

	assert.Equal(t, 0.0, Percentile(nil, 50))
}

func TestPercentileSelectionMatchesSort(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	values := make([]float64, 5000)
	for i := range values {
		values[i] = r.Float64() * 10
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	for _, p := range []float64{1, 50, 95, 99} {
		k := int(float64(len(sorted)-1) * (p / 100.0))
		assert.Equal(t, sorted[k], Percentile(values, p), "p%v", p)
	}
}

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-12)
}

func TestSummarize(t *testing.T) {
	cm, err := measure.New(8)
	require.NoError(t, err)
	for i, nfc := range []uint32{0, 0, 1, 1, 2} {
		f := float64(i)
		cm.Insert(measure.NewRecord(f*0.5, 0.1*f, 0.2, 1+f, 0, 0, nfc, uint32(i)))
	}

	q, err := NewQoSCalculator(2).Summarize(cm.View())
	require.NoError(t, err)

	assert.Equal(t, 5, q.Rows)
	require.NotNil(t, q.SeizureFailRate)
	assert.InDelta(t, 0.5, *q.SeizureFailRate, 1e-12)
	assert.InDelta(t, 0.5, *q.AnswerSeizureRatio, 1e-12)
	assert.InDelta(t, 2.0, q.InstantaneousRate, 1e-12)
	assert.InDelta(t, 2.0, q.WindowedCallRate, 1e-12)
	assert.Equal(t, uint32(2), q.FailedCalls)
	assert.Equal(t, uint32(4), q.Sessions)
	assert.InDelta(t, 3.0, q.CallSetupLatency.Mean, 1e-12)
	assert.Equal(t, 3.0, q.CallSetupLatency.P50)
	assert.Equal(t, 0.2, q.AnswerLatency.P99)
}

func TestSummarizeSmallViews(t *testing.T) {
	calc := NewQoSCalculator(0)

	q, err := calc.Summarize(measure.NewView(nil))
	require.NoError(t, err)
	assert.Equal(t, 0, q.Rows)
	assert.Nil(t, q.AnswerSeizureRatio)

	q, err = calc.Summarize(measure.NewView([]measure.Record{measure.NewRecord(1, 0.1, 0.2, 0.3, 0, 0, 0, 1)}))
	require.NoError(t, err)
	assert.Equal(t, 1, q.Rows)
	assert.Nil(t, q.SeizureFailRate)
	assert.Equal(t, 0.0, q.WindowedCallRate)
	assert.InDelta(t, 0.3, q.CallSetupLatency.Mean, 1e-12)
}
