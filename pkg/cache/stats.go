// Package cache keeps a live, time-bounded window of telemetry snapshots and
// the current tolerance table in memory for read-only consumers.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aquawatch/pkg/feed"
	"aquawatch/pkg/stats"
	"aquawatch/pkg/telemetry"
)

// ErrClosed is returned when a closed tracker is asked to resubscribe.
var ErrClosed = errors.New("cache: closed")

// StatsState is a point-in-time copy of a stats handle.
type StatsState struct {
	Loading   bool
	Snapshots []stats.Snapshot
}

// StatsHandle owns one snapshot subscription and one prune timer.
//
// Every mutation happens under mu and is skipped once closed is set, so
// after Close returns no feed callback or timer tick can change the window.
type StatsHandle struct {
	horizon int64
	opts    options

	mu      sync.Mutex
	loading bool
	window  Window
	closed  bool
	sub     feed.Subscription

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// OpenStats subscribes to src for snapshots newer than now-horizonSeconds
// and starts the prune timer. A horizon of zero leaves the window unbounded.
func OpenStats(ctx context.Context, src feed.SnapshotFeed, horizonSeconds int64, opts ...Option) (*StatsHandle, error) {
	if horizonSeconds < 0 {
		return nil, fmt.Errorf("invalid horizon %d: must not be negative", horizonSeconds)
	}

	h := &StatsHandle{
		horizon: horizonSeconds,
		opts:    resolve(opts),
		loading: true,
		done:    make(chan struct{}),
	}

	q := feed.Query{Since: h.lowerBound(h.opts.clock.Now())}
	sub, err := src.SubscribeSnapshots(ctx, q, h.onUpdate, h.onError)
	if err != nil {
		h.opts.telemetry.Publish(telemetry.NewFeedError(err, "stats_subscribe", telemetry.ErrorSeverityError))
		return nil, fmt.Errorf("failed to subscribe to snapshots: %w", err)
	}

	h.mu.Lock()
	h.sub = sub
	h.mu.Unlock()

	h.wg.Add(1)
	go h.pruneLoop()

	h.opts.debugf("stats subscription opened (horizon: %ds, since: %d)", h.horizon, q.Since)
	h.opts.telemetry.Publish(telemetry.NewSubscriptionChanged(telemetry.StreamStats, true, h.horizon))
	return h, nil
}

// Horizon returns the look-back duration in seconds, 0 when unbounded.
func (h *StatsHandle) Horizon() int64 { return h.horizon }

// State returns a copy of the current window.
func (h *StatsHandle) State() StatsState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return StatsState{Loading: h.loading, Snapshots: h.window.Snapshots()}
}

// Prune evicts snapshots at or before nowSeconds-horizon.
func (h *StatsHandle) Prune(nowSeconds int64) int {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0
	}
	removed := h.window.Prune(nowSeconds, h.horizon)
	remaining := h.window.Len()
	h.mu.Unlock()

	if removed > 0 {
		h.opts.debugf("pruned %d snapshots older than %d (%d remaining)", removed, nowSeconds-h.horizon, remaining)
		h.opts.telemetry.Publish(telemetry.NewSnapshotsPruned(removed, remaining))
	}
	return removed
}

// Close releases the subscription and stops the prune timer. Calling it
// again is a no-op.
func (h *StatsHandle) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		sub := h.sub
		h.sub = nil
		h.mu.Unlock()

		// lock is released first: an in-flight callback may be waiting on it
		close(h.done)
		if sub != nil {
			sub.Unsubscribe()
		}
		h.wg.Wait()

		h.opts.debugf("stats subscription closed (horizon: %ds)", h.horizon)
		h.opts.telemetry.Publish(telemetry.NewSubscriptionChanged(telemetry.StreamStats, false, h.horizon))
	})
}

func (h *StatsHandle) lowerBound(now time.Time) int64 {
	if h.horizon == 0 {
		return 0
	}
	bound := now.Unix() - h.horizon
	if bound < 0 {
		return 0
	}
	return bound
}

func (h *StatsHandle) onUpdate(batch []stats.Snapshot) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	first := h.loading
	h.window.Replace(batch)
	h.loading = false
	from, to, _ := h.window.Bounds()
	h.mu.Unlock()

	if first {
		h.opts.debugf("initial snapshot batch received: %d snapshots", len(batch))
	}
	h.opts.telemetry.Publish(telemetry.NewSnapshotsReceived(len(batch), from, to))
}

// onError keeps the last good window; the feed owns reconnection.
func (h *StatsHandle) onError(err error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return
	}

	h.opts.logger.Printf("snapshot feed error: %v", err)
	h.opts.telemetry.Publish(telemetry.NewFeedError(err, "stats_subscription", telemetry.ErrorSeverityWarning))
}

func (h *StatsHandle) pruneLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.opts.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.Prune(h.opts.clock.Now().Unix())
		}
	}
}
