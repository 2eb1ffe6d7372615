package engine

import (
	"github.com/go-kit/log"
)

// ============================================================================
// ENGINE OPTIONS — Functional options for every entry point
// ============================================================================

// DefaultMaxDepth bounds filter nesting and the number of group fields.
const DefaultMaxDepth = 64

// Option configures engine behavior via functional options pattern.
type Option func(*config)

type config struct {
	Logger        log.Logger
	Metrics       *Metrics
	MaxDepth      int
	CaseSensitive bool
}

// WithLogger sets the logger used for per-stage debug lines.
func WithLogger(logger log.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithMetrics records stage latencies and row counts into m.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.Metrics = m
	}
}

// WithMaxDepth overrides DefaultMaxDepth. Values below 1 are ignored.
func WithMaxDepth(depth int) Option {
	return func(c *config) {
		if depth > 0 {
			c.MaxDepth = depth
		}
	}
}

// WithCaseSensitive controls string comparison in filters. The default is
// case-insensitive.
func WithCaseSensitive(sensitive bool) Option {
	return func(c *config) {
		c.CaseSensitive = sensitive
	}
}

// applyOptions creates a config from functional options.
func applyOptions(opts []Option) *config {
	cfg := &config{
		Logger:   log.NewNopLogger(),
		MaxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
