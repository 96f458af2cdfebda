// Package voice binds the provider packages to the narrow collaborator
// interfaces of the turn controller. Each adapter times its provider call
// and records it as a pipeline stage.
package voice

import (
	"github.com/MrWong99/earshot/internal/observe"
)

// Option configures an adapter.
type Option func(*options)

type options struct {
	metrics *observe.Metrics
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{metrics: observe.DefaultMetrics()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
