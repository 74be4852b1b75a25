package calculator

import (
	"fmt"
	"time"

	"github.com/luongdev/fsmeasure/pkg/measure"
)

// QoSCalculator derives call quality metrics from a buffer snapshot
type QoSCalculator interface {
	// Summarize computes the quality summary of one view
	Summarize(view *measure.View) (*QoSMetrics, error)
}

// LatencyStats summarizes one latency column, in seconds
type LatencyStats struct {
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
}

// QoSMetrics represents the call quality of a buffer snapshot
type QoSMetrics struct {
	Timestamp time.Time `json:"timestamp"`
	Rows      int       `json:"rows"`

	// Seizure statistics across the whole view, nil with fewer than two rows
	AnswerSeizureRatio *float64 `json:"answer_seizure_ratio,omitempty"`
	SeizureFailRate    *float64 `json:"seizure_fail_rate,omitempty"`

	// Rates in calls per second
	InstantaneousRate float64 `json:"instantaneous_rate"`
	WindowedCallRate  float64 `json:"windowed_call_rate"`

	FailedCalls uint32 `json:"failed_calls"`
	Sessions    uint32 `json:"sessions"`

	InviteLatency    LatencyStats `json:"invite_latency"`
	AnswerLatency    LatencyStats `json:"answer_latency"`
	CallSetupLatency LatencyStats `json:"call_setup_latency"`
}

type qosCalculator struct {
	window int
}

// NewQoSCalculator creates a calculator whose windowed call rate averages
// over window calls
func NewQoSCalculator(window int) QoSCalculator {
	if window <= 0 {
		window = measure.DefaultRateWindow
	}
	return &qosCalculator{window: window}
}

func (c *qosCalculator) Summarize(view *measure.View) (*QoSMetrics, error) {
	q := &QoSMetrics{
		Timestamp: time.Now(),
		Rows:      view.Len(),
	}
	if view.Len() == 0 {
		return q, nil
	}

	last := view.Row(view.Len() - 1)
	q.FailedCalls = last.NumFailedCalls
	q.Sessions = last.NumSessions

	if view.Len() >= 2 {
		sfr, err := view.SeizureFailRate(0, -1)
		if err != nil {
			return nil, fmt.Errorf("seizure fail rate: %w", err)
		}
		asr := 1 - sfr
		q.SeizureFailRate = &sfr
		q.AnswerSeizureRatio = &asr

		rates, err := view.InstantaneousRate()
		if err != nil {
			return nil, fmt.Errorf("instantaneous rate: %w", err)
		}
		q.InstantaneousRate = rates[len(rates)-1]
		wm := measure.MovingAverage(rates, c.window)
		q.WindowedCallRate = wm[len(wm)-1]
	}

	q.InviteLatency = latencyStats(view.InviteLatencies())
	q.AnswerLatency = latencyStats(view.AnswerLatencies())
	q.CallSetupLatency = latencyStats(view.CallSetupLatencies())
	return q, nil
}

func latencyStats(values []float64) LatencyStats {
	return LatencyStats{
		Mean: Mean(values),
		P50:  Percentile(values, 50),
		P95:  Percentile(values, 95),
		P99:  Percentile(values, 99),
	}
}
