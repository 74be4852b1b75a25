package measure

import (
	"fmt"
	"math"
)

const (
	// MaxCallRate caps instantaneous rates, in calls per second.
	MaxCallRate = 300.0

	// DefaultRateWindow is the number of calls averaged by WindowedCallRate.
	DefaultRateWindow = 100
)

// SeizureFailRate returns the average failed-call rate between rows start and end:
//
//	(nfc[end] - nfc[start]) / (end - start)
//
// A negative end counts from the end of the view, so -1 is the last row.
// num_failed_calls is assumed to be a non-decreasing counter over insertion
// order; it is only checked when the buffer was built with WithMonotonicCheck.
func (v *View) SeizureFailRate(start, end int) (float64, error) {
	n := len(v.rows)
	if end < 0 {
		end = n + end
	}
	if start < 0 || start >= n || end < 0 || end >= n {
		return 0, fmt.Errorf("seizure fail rate [%d:%d] over %d rows: %w", start, end, n, ErrIndexOutOfRange)
	}
	if start == end {
		return 0, fmt.Errorf("seizure fail rate at row %d: %w", start, ErrDivisionByZero)
	}
	if v.opts.monotonicCheck {
		if err := v.checkMonotonic(start, end); err != nil {
			return 0, err
		}
	}
	num := float64(v.rows[end].NumFailedCalls) - float64(v.rows[start].NumFailedCalls)
	return num / float64(end-start), nil
}

// AnswerSeizureRatio returns 1 - SeizureFailRate(start, end).
func (v *View) AnswerSeizureRatio(start, end int) (float64, error) {
	sfr, err := v.SeizureFailRate(start, end)
	if err != nil {
		return 0, err
	}
	return 1 - sfr, nil
}

func (v *View) checkMonotonic(start, end int) error {
	lo, hi := start, end
	if lo > hi {
		lo, hi = hi, lo
	}
	for i := lo + 1; i <= hi; i++ {
		if v.rows[i].NumFailedCalls < v.rows[i-1].NumFailedCalls {
			return fmt.Errorf("row %d: %d < %d: %w", i,
				v.rows[i].NumFailedCalls, v.rows[i-1].NumFailedCalls, ErrNonMonotonic)
		}
	}
	return nil
}

// InstantaneousRate returns the per-call rate 1/dt between consecutive rows
// after sorting a copy of the view by time. The result has Len()-1 values,
// each capped at MaxCallRate. A zero dt is clamped to MaxCallRate unless the
// buffer uses RejectZeroDelta.
func (v *View) InstantaneousRate() ([]float64, error) {
	if len(v.rows) <= 1 {
		return []float64{}, nil
	}
	times := v.SortedByTime().Times()
	rates := make([]float64, len(times)-1)
	for i := range rates {
		dt := times[i+1] - times[i]
		if dt == 0 && v.opts.zeroDelta == RejectZeroDelta {
			return nil, fmt.Errorf("rows %d and %d at t=%g: %w", i, i+1, times[i], ErrUndefinedRate)
		}
		rate := math.Inf(1)
		if dt != 0 {
			rate = 1 / dt
		}
		if rate > MaxCallRate {
			rate = MaxCallRate
		}
		rates[i] = rate
	}
	return rates, nil
}

// WindowedCallRate is the moving average of InstantaneousRate over
// DefaultRateWindow calls.
func (v *View) WindowedCallRate() ([]float64, error) {
	return v.WindowedCallRateN(DefaultRateWindow)
}

// WindowedCallRateN is WindowedCallRate with an explicit window length.
func (v *View) WindowedCallRateN(n int) ([]float64, error) {
	rates, err := v.InstantaneousRate()
	if err != nil {
		return nil, err
	}
	return MovingAverage(rates, n), nil
}

// MovingAverage returns the windowed arithmetic mean of series with window
// length n, computed from a running cumulative sum. The window shrinks to
// len(series) when the series is shorter.
//
// Every value is divided by the full window, so the first n-1 values are not
// true means: value i only sums i+1 samples. Callers rely on this smoothing
// curve; do not correct it.
func MovingAverage(series []float64, n int) []float64 {
	if n > len(series) {
		n = len(series)
	}
	if n <= 0 {
		return []float64{}
	}

	cs := make([]float64, len(series))
	var sum float64
	for i, x := range series {
		sum += x
		cs[i] = sum
	}

	out := make([]float64, len(series))
	for i := range cs {
		windowed := cs[i]
		if i >= n {
			windowed -= cs[i-n]
		}
		out[i] = windowed / float64(n)
	}
	return out
}
