package transition

import "go.uber.org/zap"

// Observer receives counts of what bulk operations did. Implementations must
// be safe for concurrent use and must not call back into the container.
type Observer interface {
	Attached(key Key)
	Changed(key Key, handles int)
	Pruned(key Key, handles int)
	Disposed(key Key, disposed, failed int)
}

type options struct {
	logger   *zap.Logger
	observer Observer
}

// Option configures a Container or a Registry.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver sets the observer notified after bulk operations.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

func newOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
