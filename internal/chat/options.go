package chat

import (
	"github.com/jonboulle/clockwork"

	"github.com/adi-253/Talkie/chatsync/internal/metrics"
)

type options struct {
	clock   clockwork.Clock
	metrics *metrics.Metrics
}

// Option customises a Session or an UnreadCounter.
type Option func(*options)

// WithClock replaces the clock driving suppression and typing timers.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithMetrics records session activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
