package cache

import (
	"io"
	"log"
	"time"

	"aquawatch/pkg/telemetry"
)

// DefaultPruneInterval is the fixed prune cadence. It does not scale with
// the horizon.
const DefaultPruneInterval = time.Minute

type options struct {
	clock         telemetry.Clock
	pruneInterval time.Duration
	logger        *log.Logger
	debug         bool
	telemetry     telemetry.TelemetryPublisher
}

// Option configures handles and trackers.
type Option func(*options)

// WithClock sets the clock used to compute window bounds.
func WithClock(c telemetry.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithPruneInterval overrides DefaultPruneInterval.
func WithPruneInterval(d time.Duration) Option {
	return func(o *options) { o.pruneInterval = d }
}

// WithLogger sets where feed errors are logged.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDebug also logs subscription lifecycle, batches and prunes.
func WithDebug(on bool) Option {
	return func(o *options) { o.debug = on }
}

func WithTelemetry(p telemetry.TelemetryPublisher) Option {
	return func(o *options) { o.telemetry = p }
}

func resolve(opts []Option) options {
	o := options{
		clock:         telemetry.RealClock{},
		pruneInterval: DefaultPruneInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = telemetry.RealClock{}
	}
	if o.pruneInterval <= 0 {
		o.pruneInterval = DefaultPruneInterval
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard, "", 0)
	}
	if o.telemetry == nil {
		o.telemetry = telemetry.NewNoopPublisher()
	}
	return o
}

func (o options) debugf(format string, args ...interface{}) {
	if o.debug {
		o.logger.Printf(format, args...)
	}
}
