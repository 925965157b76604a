package cache

import (
	"context"
	"fmt"
	"sync"

	"aquawatch/pkg/feed"
	"aquawatch/pkg/stats"
	"aquawatch/pkg/telemetry"
)

// ToleranceHandle mirrors the live tolerance table. It has no loading
// state: an empty table is valid and lookups fall back to the sentinel.
type ToleranceHandle struct {
	opts options

	mu     sync.Mutex
	table  stats.Tolerances
	closed bool
	sub    feed.Subscription

	closeOnce sync.Once
}

// OpenTolerances subscribes to the full tolerance table.
func OpenTolerances(ctx context.Context, src feed.ToleranceFeed, opts ...Option) (*ToleranceHandle, error) {
	h := &ToleranceHandle{
		opts:  resolve(opts),
		table: stats.Tolerances{},
	}

	sub, err := src.SubscribeTolerances(ctx, h.onUpdate, h.onError)
	if err != nil {
		h.opts.telemetry.Publish(telemetry.NewFeedError(err, "tolerance_subscribe", telemetry.ErrorSeverityError))
		return nil, fmt.Errorf("failed to subscribe to tolerances: %w", err)
	}

	h.mu.Lock()
	h.sub = sub
	h.mu.Unlock()

	h.opts.telemetry.Publish(telemetry.NewSubscriptionChanged(telemetry.StreamTolerances, true, 0))
	return h, nil
}

// Tolerances returns a copy of the current table.
func (h *ToleranceHandle) Tolerances() stats.Tolerances {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.table.Clone()
}

// Lookup returns the tolerance for key or the unloaded sentinel.
func (h *ToleranceHandle) Lookup(key string) stats.Tolerance {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.table.Lookup(key)
}

// Close releases the subscription. Calling it again is a no-op.
func (h *ToleranceHandle) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		sub := h.sub
		h.sub = nil
		h.mu.Unlock()

		if sub != nil {
			sub.Unsubscribe()
		}
		h.opts.telemetry.Publish(telemetry.NewSubscriptionChanged(telemetry.StreamTolerances, false, 0))
	})
}

// onUpdate replaces the table wholesale; keys absent from the push are gone.
func (h *ToleranceHandle) onUpdate(table stats.Tolerances) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.table = table.Clone()
	n := len(h.table)
	h.mu.Unlock()

	h.opts.debugf("tolerance table updated: %d metrics", n)
	h.opts.telemetry.Publish(telemetry.NewTolerancesUpdated(n))
}

func (h *ToleranceHandle) onError(err error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return
	}

	h.opts.logger.Printf("tolerance feed error: %v", err)
	h.opts.telemetry.Publish(telemetry.NewFeedError(err, "tolerance_subscription", telemetry.ErrorSeverityWarning))
}
