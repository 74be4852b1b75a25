package measure

import "github.com/prometheus/client_golang/prometheus"

// ZeroDeltaPolicy decides what InstantaneousRate does when two rows share a timestamp.
type ZeroDeltaPolicy int

const (
	// ClampZeroDelta treats 1/0 as +Inf, which the outlier cap turns into MaxCallRate.
	ClampZeroDelta ZeroDeltaPolicy = iota

	// RejectZeroDelta makes InstantaneousRate fail with ErrUndefinedRate.
	RejectZeroDelta
)

// String returns the config name of the policy.
func (p ZeroDeltaPolicy) String() string {
	switch p {
	case ClampZeroDelta:
		return "clamp"
	case RejectZeroDelta:
		return "error"
	default:
		return "unknown"
	}
}

// RolloverCallback is called after the insertion that completes a lap.
// index is the logical insert count after that insertion.
type RolloverCallback func(index uint64)

// Option configures a CallMetrics buffer.
type Option func(*options)

type options struct {
	title          string
	zeroDelta      ZeroDeltaPolicy
	monotonicCheck bool
	onRollover     RolloverCallback
	metricsReg     prometheus.Registerer
	metricsPrefix  string
}

// WithTitle names the buffer, typically after the file it was loaded from.
func WithTitle(title string) Option {
	return func(o *options) {
		o.title = title
	}
}

// WithZeroDeltaPolicy sets the zero time-delta behaviour of InstantaneousRate.
// Defaults to ClampZeroDelta.
func WithZeroDeltaPolicy(policy ZeroDeltaPolicy) Option {
	return func(o *options) {
		o.zeroDelta = policy
	}
}

// WithMonotonicCheck makes the seizure statistics verify that
// num_failed_calls never decreases between start and end.
func WithMonotonicCheck() Option {
	return func(o *options) {
		o.monotonicCheck = true
	}
}

// WithRolloverCallback registers a sink for rollover events.
func WithRolloverCallback(cb RolloverCallback) Option {
	return func(o *options) {
		o.onRollover = cb
	}
}

// WithMetrics exposes insert/rollover counters and size gauges on reg.
// Ignored when reg is nil or component is empty.
func WithMetrics(reg prometheus.Registerer, component string) Option {
	return func(o *options) {
		if reg != nil && component != "" {
			o.metricsReg = reg
			o.metricsPrefix = component
		}
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{zeroDelta: ClampZeroDelta}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}
