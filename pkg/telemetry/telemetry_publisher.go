package telemetry

import "time"

type TelemetryEvent interface {
	Timestamp() time.Time // When the event occurred
	EventType() string    // For categorization/filtering
}

// SnapshotsReceived is emitted when the feed replaces the cached window.
type SnapshotsReceived struct {
	timestamp time.Time
	Count     int
	From      int64 // oldest snapshot timestamp, 0 when Count is 0
	To        int64 // newest snapshot timestamp, 0 when Count is 0
}

func (e SnapshotsReceived) Timestamp() time.Time { return e.timestamp }
func (e SnapshotsReceived) EventType() string    { return "snapshots_received" }

func NewSnapshotsReceived(count int, from, to int64) SnapshotsReceived {
	return SnapshotsReceived{
		timestamp: time.Now(),
		Count:     count,
		From:      from,
		To:        to,
	}
}

// SnapshotsPruned is emitted after a prune tick.
type SnapshotsPruned struct {
	timestamp time.Time
	Removed   int
	Remaining int
}

func (e SnapshotsPruned) Timestamp() time.Time { return e.timestamp }
func (e SnapshotsPruned) EventType() string    { return "snapshots_pruned" }

func NewSnapshotsPruned(removed, remaining int) SnapshotsPruned {
	return SnapshotsPruned{
		timestamp: time.Now(),
		Removed:   removed,
		Remaining: remaining,
	}
}

type TolerancesUpdated struct {
	timestamp time.Time
	Count     int
}

func (e TolerancesUpdated) Timestamp() time.Time { return e.timestamp }
func (e TolerancesUpdated) EventType() string    { return "tolerances_updated" }

func NewTolerancesUpdated(count int) TolerancesUpdated {
	return TolerancesUpdated{
		timestamp: time.Now(),
		Count:     count,
	}
}

// Stream names used by SubscriptionChanged.
const (
	StreamStats      = "stats"
	StreamTolerances = "tolerances"
)

type SubscriptionChanged struct {
	timestamp      time.Time
	Stream         string
	Active         bool
	HorizonSeconds int64 // 0 for unbounded streams
}

func (e SubscriptionChanged) Timestamp() time.Time { return e.timestamp }
func (e SubscriptionChanged) EventType() string    { return "subscription_changed" }

func NewSubscriptionChanged(stream string, active bool, horizonSeconds int64) SubscriptionChanged {
	return SubscriptionChanged{
		timestamp:      time.Now(),
		Stream:         stream,
		Active:         active,
		HorizonSeconds: horizonSeconds,
	}
}

type ConnectionStatusChanged struct {
	timestamp time.Time
	RelayURL  string
	Connected bool
}

func (e ConnectionStatusChanged) Timestamp() time.Time { return e.timestamp }
func (e ConnectionStatusChanged) EventType() string    { return "connection_status_changed" }

func NewConnectionStatusChanged(relayURL string, connected bool) ConnectionStatusChanged {
	return ConnectionStatusChanged{
		timestamp: time.Now(),
		RelayURL:  relayURL,
		Connected: connected,
	}
}

type FeedError struct {
	timestamp time.Time
	Err       error
	Context   string // e.g. "stats_subscribe", "tolerance_decode"
	Severity  ErrorSeverity
}

func (e FeedError) Timestamp() time.Time { return e.timestamp }
func (e FeedError) EventType() string    { return "feed_error" }

func NewFeedError(err error, context string, severity ErrorSeverity) FeedError {
	return FeedError{
		timestamp: time.Now(),
		Err:       err,
		Context:   context,
		Severity:  severity,
	}
}

type DegradedChanged struct {
	timestamp time.Time
	Degraded  bool
}

func (e DegradedChanged) Timestamp() time.Time { return e.timestamp }
func (e DegradedChanged) EventType() string    { return "degraded_changed" }

func NewDegradedChanged(degraded bool) DegradedChanged {
	return DegradedChanged{
		timestamp: time.Now(),
		Degraded:  degraded,
	}
}

type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityCritical
)

func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

type TelemetryPublisher interface {
	// Publish hands an event to the telemetry pipeline.
	// This is a non-blocking, fire-and-forget call.
	Publish(event TelemetryEvent)
}

// Fanout publishes every event to each of its publishers in order.
type Fanout []TelemetryPublisher

func (f Fanout) Publish(event TelemetryEvent) {
	for _, p := range f {
		if p != nil {
			p.Publish(event)
		}
	}
}
