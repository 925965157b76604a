package cache

import (
	"context"
	"sync"

	"aquawatch/pkg/feed"
	"aquawatch/pkg/stats"
)

// State is what presentation code reads on every poll.
type State struct {
	Loading    bool
	Snapshots  []stats.Snapshot
	Tolerances stats.Tolerances
}

// Degraded runs the bad-reading detector over the state.
func (s State) Degraded() bool { return stats.Degraded(s.Loading, s.Snapshots) }

// Tracker is the consumer-owned pairing of a stats handle and a tolerance
// handle. It resubscribes the stats side only when the horizon value changes.
type Tracker struct {
	snapshots  feed.SnapshotFeed
	tolerances feed.ToleranceFeed
	opts       []Option

	mu     sync.Mutex
	stats  *StatsHandle
	tol    *ToleranceHandle
	closed bool
}

func NewTracker(snapshots feed.SnapshotFeed, tolerances feed.ToleranceFeed, opts ...Option) *Tracker {
	return &Tracker{
		snapshots:  snapshots,
		tolerances: tolerances,
		opts:       opts,
	}
}

// Start opens the tolerance subscription if needed and sets the horizon.
func (t *Tracker) Start(ctx context.Context, horizonSeconds int64) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.tol == nil && t.tolerances != nil {
		tol, err := OpenTolerances(ctx, t.tolerances, t.opts...)
		if err != nil {
			t.mu.Unlock()
			return err
		}
		t.tol = tol
	}
	t.mu.Unlock()

	return t.SetHorizon(ctx, horizonSeconds)
}

// SetHorizon points the stats subscription at a new horizon. The previous
// subscription and timer are torn down before the new ones exist. An equal
// horizon is a no-op.
func (t *Tracker) SetHorizon(ctx context.Context, horizonSeconds int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.stats != nil && t.stats.Horizon() == horizonSeconds {
		return nil
	}
	if t.stats != nil {
		t.stats.Close()
		t.stats = nil
	}

	h, err := OpenStats(ctx, t.snapshots, horizonSeconds, t.opts...)
	if err != nil {
		return err
	}
	t.stats = h
	return nil
}

// Horizon returns the active horizon and whether a stats handle is open.
func (t *Tracker) Horizon() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stats == nil {
		return 0, false
	}
	return t.stats.Horizon(), true
}

// State returns a copy of the combined state.
func (t *Tracker) State() State {
	t.mu.Lock()
	sh, th := t.stats, t.tol
	t.mu.Unlock()

	var s State
	if sh != nil {
		ss := sh.State()
		s.Loading = ss.Loading
		s.Snapshots = ss.Snapshots
	}
	if th != nil {
		s.Tolerances = th.Tolerances()
	} else {
		s.Tolerances = stats.Tolerances{}
	}
	return s
}

// Degraded reports whether the current window shows bad readings.
func (t *Tracker) Degraded() bool { return t.State().Degraded() }

// Close tears down both subscriptions. Calling it again is a no-op.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	if t.stats != nil {
		t.stats.Close()
		t.stats = nil
	}
	if t.tol != nil {
		t.tol.Close()
		t.tol = nil
	}
}
