package session

import (
	"io"

	"github.com/gostdlib/base/values/sizes"

	"github.com/mcrouterd/session/log"
	"github.com/mcrouterd/session/metrics"
)

// Config holds the tunables and lifecycle callbacks spec.md §6
// describes, in the teacher's functional-options style
// (rpc/server/server.go's Option func(*Server)).
type Config struct {
	// RequestsPerRead bounds how many requests one read batch may emit,
	// for fairness across sessions sharing a goroutine pool (spec §4.1).
	RequestsPerRead int
	// MinBufferSize and MaxBufferSize bound the read buffer the parser
	// hands back for each transport.Read (spec §4.1).
	MinBufferSize int
	MaxBufferSize int
	// MaxInFlight is the throttle cap on real_in_flight; zero disables
	// throttling (spec §4.2).
	MaxInFlight int
	// SingleWrite selects single-write mode (one writev per queued
	// buffer) over batched mode (spec §4.4).
	SingleWrite bool
	// DefaultVersionHandler, if true, makes the session answer "version"
	// itself with VersionString (spec §4.1, §6).
	DefaultVersionHandler bool
	VersionString         string

	// DebugTap, if non-nil, receives a copy of every byte the session
	// reads from the transport (spec §4.1).
	DebugTap io.Writer

	// Logger and Metrics default to no-ops so a caller never needs to
	// nil-check before using a Config it didn't customize.
	Logger  *log.Logger
	Metrics *metrics.Collector

	// Lifecycle callbacks (spec §3, §6). OnRequest/OnTypedRequest are
	// supplied via the Handler argument to New, not here.
	OnWriteQuiescence func(*Session)
	OnCloseStart      func(*Session)
	OnCloseFinish     func(*Session)
	OnShutdown        func()
}

func defaultConfig() Config {
	return Config{
		RequestsPerRead:       20,
		MinBufferSize:         4 * sizes.KiB,
		MaxBufferSize:         64 * sizes.KiB,
		MaxInFlight:           0,
		SingleWrite:           false,
		DefaultVersionHandler: true,
		VersionString:         "1.0.0",
		Logger:                log.Nop(),
		Metrics:               nil,
	}
}

// Option configures a Session at construction time.
type Option func(*Config)

// WithRequestsPerRead sets the per-read-batch request fairness bound.
func WithRequestsPerRead(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.RequestsPerRead = n
		}
	}
}

// WithBufferSizes sets the parser's read buffer bounds.
func WithBufferSizes(min, max int) Option {
	return func(c *Config) {
		if min > 0 {
			c.MinBufferSize = min
		}
		if max > 0 {
			c.MaxBufferSize = max
		}
	}
}

// WithMaxInFlight sets the throttle cap on real_in_flight. Zero disables
// throttling.
func WithMaxInFlight(n int) Option {
	return func(c *Config) {
		c.MaxInFlight = n
	}
}

// WithSingleWrite selects single-write mode when enabled is true, else
// batched mode.
func WithSingleWrite(enabled bool) Option {
	return func(c *Config) {
		c.SingleWrite = enabled
	}
}

// WithDefaultVersionHandler controls whether the session answers
// "version" itself.
func WithDefaultVersionHandler(enabled bool, version string) Option {
	return func(c *Config) {
		c.DefaultVersionHandler = enabled
		if version != "" {
			c.VersionString = version
		}
	}
}

// WithDebugTap attaches w as a mirror of every byte read from the
// transport.
func WithDebugTap(w io.Writer) Option {
	return func(c *Config) {
		c.DebugTap = w
	}
}

// WithLogger attaches l for lifecycle event logging.
func WithLogger(l *log.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithMetrics attaches m for lifecycle event counters/gauges.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithOnWriteQuiescence sets the callback fired whenever pending writes
// drain to zero while the session is Streaming.
func WithOnWriteQuiescence(f func(*Session)) Option {
	return func(c *Config) { c.OnWriteQuiescence = f }
}

// WithOnCloseStart sets the callback fired exactly once on the
// Streaming -> Closing transition.
func WithOnCloseStart(f func(*Session)) Option {
	return func(c *Config) { c.OnCloseStart = f }
}

// WithOnCloseFinish sets the callback fired exactly once on the
// Closing -> Closed transition, just before the session is abandoned.
func WithOnCloseFinish(f func(*Session)) Option {
	return func(c *Config) { c.OnCloseFinish = f }
}

// WithOnShutdown sets the callback invoked when the peer sends the
// "shutdown" op.
func WithOnShutdown(f func()) Option {
	return func(c *Config) { c.OnShutdown = f }
}
