package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// Mock clock for deterministic testing
type MockClock struct {
	mu      sync.Mutex
	current time.Time
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

// waitFor polls the aggregator until cond holds or a second has passed.
func waitFor(t *testing.T, agg *Aggregator, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		snap := agg.Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met, last snapshot: %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startAggregator(t *testing.T, clock Clock) *Aggregator {
	t.Helper()
	agg := NewAggregator(clock, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	agg.Start(ctx)
	t.Cleanup(func() {
		agg.Stop()
		cancel()
	})
	return agg
}

func TestAggregator_SnapshotsReceived(t *testing.T) {
	clock := &MockClock{current: time.Unix(1000, 0)}
	agg := startAggregator(t, clock)

	agg.Publish(NewSnapshotsReceived(3, 500, 900))

	snap := waitFor(t, agg, func(s Snapshot) bool { return s.BatchesReceived == 1 })
	if snap.SnapshotsInWindow != 3 {
		t.Errorf("expected 3 snapshots in window, got %d", snap.SnapshotsInWindow)
	}
	if snap.WindowFrom != 500 || snap.WindowTo != 900 {
		t.Errorf("expected window 500..900, got %d..%d", snap.WindowFrom, snap.WindowTo)
	}
	// now is 1000, newest snapshot at 900
	if snap.LagSeconds != 100 {
		t.Errorf("expected lag 100s, got %.1f", snap.LagSeconds)
	}
}

func TestAggregator_Pruning(t *testing.T) {
	clock := &MockClock{current: time.Unix(1000, 0)}
	agg := startAggregator(t, clock)

	agg.Publish(NewSnapshotsReceived(3, 10, 70))
	agg.Publish(NewSnapshotsPruned(2, 1))
	agg.Publish(NewSnapshotsPruned(1, 0))

	snap := waitFor(t, agg, func(s Snapshot) bool { return s.SnapshotsPruned == 3 })
	if snap.SnapshotsInWindow != 0 {
		t.Errorf("expected empty window, got %d", snap.SnapshotsInWindow)
	}
	if snap.WindowTo != 0 || snap.LagSeconds != 0 {
		t.Errorf("expected window bounds cleared, got to=%d lag=%.1f", snap.WindowTo, snap.LagSeconds)
	}
}

func TestAggregator_SubscriptionsAndConnection(t *testing.T) {
	agg := startAggregator(t, &MockClock{current: time.Unix(1000, 0)})

	agg.Publish(NewConnectionStatusChanged("wss://relay", true))
	agg.Publish(NewSubscriptionChanged(StreamStats, true, 3600))
	agg.Publish(NewSubscriptionChanged(StreamTolerances, true, 0))
	agg.Publish(NewTolerancesUpdated(7))

	snap := waitFor(t, agg, func(s Snapshot) bool { return s.ToleranceUpdates == 1 })
	if !snap.RelayConnected {
		t.Error("expected relay connected")
	}
	if snap.ActiveSubscriptions != 2 {
		t.Errorf("expected 2 active subscriptions, got %d", snap.ActiveSubscriptions)
	}
	if snap.HorizonSeconds != 3600 {
		t.Errorf("expected horizon 3600, got %d", snap.HorizonSeconds)
	}
	if snap.TolerancesLoaded != 7 {
		t.Errorf("expected 7 tolerances, got %d", snap.TolerancesLoaded)
	}

	agg.Publish(NewSubscriptionChanged(StreamStats, false, 3600))
	snap = waitFor(t, agg, func(s Snapshot) bool { return s.ActiveSubscriptions == 1 })
	if snap.HorizonSeconds != 3600 {
		t.Errorf("expected horizon to survive close, got %d", snap.HorizonSeconds)
	}
}

func TestAggregator_ErrorTracking(t *testing.T) {
	agg := startAggregator(t, &MockClock{current: time.Unix(1000, 0)})

	agg.Publish(NewFeedError(errors.New("relay closed subscription"), "stats_subscription", ErrorSeverityWarning))
	agg.Publish(NewFeedError(context.DeadlineExceeded, "relay_connect", ErrorSeverityError))

	snap := waitFor(t, agg, func(s Snapshot) bool { return s.ErrorsTotal == 2 })
	if snap.ErrorsByContext["stats_subscription"] != 1 {
		t.Errorf("expected 1 stats_subscription error, got %d", snap.ErrorsByContext["stats_subscription"])
	}
	if snap.ErrorsBySeverity[ErrorSeverityError] != 1 {
		t.Errorf("expected 1 error-severity error, got %d", snap.ErrorsBySeverity[ErrorSeverityError])
	}
	if len(snap.RecentErrors) != 2 || snap.RecentErrors[0] != context.DeadlineExceeded.Error() {
		t.Errorf("expected newest error first, got %v", snap.RecentErrors)
	}
}

func TestAggregator_BatchRate(t *testing.T) {
	clock := &MockClock{current: time.Unix(1000, 0)}
	agg := startAggregator(t, clock)

	for i := 0; i < 6; i++ {
		agg.Publish(NewSnapshotsReceived(1, 1, 1))
	}
	snap := waitFor(t, agg, func(s Snapshot) bool { return s.BatchesReceived == 6 })
	// 6 batches over the default 60s window
	if snap.BatchesPerSecond != 0.1 {
		t.Errorf("expected 0.1 batches/s, got %v", snap.BatchesPerSecond)
	}

	clock.Advance(2 * time.Minute)
	if rate := agg.Snapshot().BatchesPerSecond; rate != 0 {
		t.Errorf("expected rate to decay to 0, got %v", rate)
	}
}

func TestAggregator_StopIsIdempotent(t *testing.T) {
	agg := NewAggregator(nil, DefaultConfig())
	agg.Start(context.Background())
	agg.Stop()
	agg.Stop()
}

func TestFanout(t *testing.T) {
	a := startAggregator(t, &MockClock{current: time.Unix(1000, 0)})
	b := startAggregator(t, &MockClock{current: time.Unix(1000, 0)})

	Fanout{a, nil, b, NewNoopPublisher()}.Publish(NewDegradedChanged(true))

	waitFor(t, a, func(s Snapshot) bool { return s.Degraded })
	waitFor(t, b, func(s Snapshot) bool { return s.Degraded })
}

func TestEventTypes(t *testing.T) {
	testCases := []struct {
		name      string
		event     TelemetryEvent
		eventType string
	}{
		{"SnapshotsReceived", NewSnapshotsReceived(1, 1, 2), "snapshots_received"},
		{"SnapshotsPruned", NewSnapshotsPruned(1, 0), "snapshots_pruned"},
		{"TolerancesUpdated", NewTolerancesUpdated(3), "tolerances_updated"},
		{"SubscriptionChanged", NewSubscriptionChanged(StreamStats, true, 60), "subscription_changed"},
		{"ConnectionStatusChanged", NewConnectionStatusChanged("test", true), "connection_status_changed"},
		{"FeedError", NewFeedError(context.DeadlineExceeded, "test", ErrorSeverityInfo), "feed_error"},
		{"DegradedChanged", NewDegradedChanged(true), "degraded_changed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.event.EventType() != tc.eventType {
				t.Errorf("expected event type %s, got %s", tc.eventType, tc.event.EventType())
			}
			if tc.event.Timestamp().IsZero() {
				t.Error("expected non-zero timestamp")
			}
		})
	}
}
