// Package measure holds the capped call-metrics buffer and the call-quality
// statistics derived from it.
//
// A CallMetrics buffer is a fixed-size ring of Records. Inserting past the
// capacity silently overwrites the oldest rows; Insert reports the insertion
// that completes each lap so callers can flush a snapshot first.
//
// Readers never touch the ring directly. View returns a copy of the valid rows
// in insertion order and every statistic is computed on that copy:
//
//	cm, _ := measure.New(measure.DefaultCapacity)
//	cm.Insert(measure.NewRecord(now, 0.2, 0.1, 1.5, 0.01, 0.3, failed, sessions))
//
//	v := cm.View()
//	asr, err := v.AnswerSeizureRatio(0, -1)
//	rates, err := v.WindowedCallRate()
//
// Instantaneous rates are capped at MaxCallRate. MovingAverage keeps its
// early-window bias: the first n-1 values are divided by the full window.
package measure
