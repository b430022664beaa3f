package repository

import "github.com/okian/dropwatch/pkg/logger"

// Option applies a configuration option to a store backend. Options that do
// not concern a backend are ignored by it.
type Option func(*options)

type options struct {
	log      logger.Logger
	maxConns int32
}

func newOptions(opts []Option) options {
	o := options{log: logger.Nop(), maxConns: 4}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for store diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMaxConns bounds the Postgres connection pool.
func WithMaxConns(n int32) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConns = n
		}
	}
}
