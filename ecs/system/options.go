package system

import "log/slog"

// Option configures a navigation system at construction.
type Option func(*systemOptions)

type systemOptions struct {
	logger *slog.Logger
}

// WithLogger routes a system's diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *systemOptions) {
		o.logger = logger
	}
}

func resolveOptions(opts []Option) systemOptions {
	o := systemOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
