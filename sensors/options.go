package sensors

import (
	"log/slog"
	"time"
)

// Option configures a Registry using the functional options pattern.
type Option func(*registryOptions)

type registryOptions struct {
	clock  func() time.Time
	logger *slog.Logger
}

// WithClock replaces time.Now, for deterministic tests.
// If clock is nil, this option is ignored.
func WithClock(clock func() time.Time) Option {
	return func(opts *registryOptions) {
		if clock != nil {
			opts.clock = clock
		}
	}
}

// WithLogger sets the registry logger.
// If logger is nil, this option is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *registryOptions) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

func applyOptions(options ...Option) *registryOptions {
	opts := &registryOptions{
		clock:  time.Now,
		logger: slog.Default().With("component", "registry"),
	}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
