// Package feed defines the contracts between the windowed cache and the
// push-based source that feeds it.
package feed

import (
	"context"

	"aquawatch/pkg/stats"
)

// Subscription is a live feed subscription.
type Subscription interface {
	// Unsubscribe stops delivery. Safe to call more than once.
	Unsubscribe()
}

// Query narrows a snapshot subscription. Only snapshots with a timestamp
// strictly greater than Since are delivered, ordered by ascending timestamp.
type Query struct {
	Since int64
}

// SnapshotFeed pushes snapshot batches. Each onData call carries the whole
// current result set and replaces whatever the consumer held before.
type SnapshotFeed interface {
	SubscribeSnapshots(ctx context.Context, q Query, onData func([]stats.Snapshot), onError func(error)) (Subscription, error)
}

// ToleranceFeed pushes complete tolerance tables.
type ToleranceFeed interface {
	SubscribeTolerances(ctx context.Context, onData func(stats.Tolerances), onError func(error)) (Subscription, error)
}

// BatchFetcher retrieves a historical range once, without live updates.
type BatchFetcher interface {
	FetchRange(ctx context.Context, start, end int64) ([]stats.Snapshot, error)
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }
