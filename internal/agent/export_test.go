package agent

import "time"

// WithClock overrides the clock stamping the run metrics.
func WithClock(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}
