package testutil

import (
	"context"
	"sync"

	"aquawatch/pkg/feed"
	"aquawatch/pkg/stats"
)

// MockSubscription records one subscription made against a mock feed and
// lets tests push data through its callbacks. Deliveries are not gated on
// Unsubscribe, so tests can simulate callbacks already in flight.
type MockSubscription struct {
	Query feed.Query
	// ActiveAtSubscribe is how many other subscriptions were still live
	// when this one was made.
	ActiveAtSubscribe int

	onSnapshots  func([]stats.Snapshot)
	onTolerances func(stats.Tolerances)
	onError      func(error)

	mu           sync.Mutex
	unsubscribes int
}

func (s *MockSubscription) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribes++
}

// Unsubscribes returns how many times Unsubscribe was called.
func (s *MockSubscription) Unsubscribes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribes
}

func (s *MockSubscription) Active() bool { return s.Unsubscribes() == 0 }

func (s *MockSubscription) DeliverSnapshots(batch []stats.Snapshot) {
	if s.onSnapshots != nil {
		s.onSnapshots(batch)
	}
}

func (s *MockSubscription) DeliverTolerances(table stats.Tolerances) {
	if s.onTolerances != nil {
		s.onTolerances(table)
	}
}

func (s *MockSubscription) Fail(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

// MockFeed implements feed.SnapshotFeed, feed.ToleranceFeed and
// feed.BatchFetcher.
type MockFeed struct {
	SubscribeError error
	FetchReturn    []stats.Snapshot
	FetchError     error

	mu            sync.Mutex
	snapshotSubs  []*MockSubscription
	toleranceSubs []*MockSubscription
	FetchCalls    [][2]int64
}

func (m *MockFeed) SubscribeSnapshots(ctx context.Context, q feed.Query, onData func([]stats.Snapshot), onError func(error)) (feed.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscribeError != nil {
		return nil, m.SubscribeError
	}
	sub := &MockSubscription{
		Query:             q,
		ActiveAtSubscribe: countActive(m.snapshotSubs),
		onSnapshots:       onData,
		onError:           onError,
	}
	m.snapshotSubs = append(m.snapshotSubs, sub)
	return sub, nil
}

func (m *MockFeed) SubscribeTolerances(ctx context.Context, onData func(stats.Tolerances), onError func(error)) (feed.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscribeError != nil {
		return nil, m.SubscribeError
	}
	sub := &MockSubscription{
		ActiveAtSubscribe: countActive(m.toleranceSubs),
		onTolerances:      onData,
		onError:           onError,
	}
	m.toleranceSubs = append(m.toleranceSubs, sub)
	return sub, nil
}

func (m *MockFeed) FetchRange(ctx context.Context, start, end int64) ([]stats.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls = append(m.FetchCalls, [2]int64{start, end})
	return m.FetchReturn, m.FetchError
}

// SnapshotSubscriptions returns every snapshot subscription made so far.
func (m *MockFeed) SnapshotSubscriptions() []*MockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockSubscription(nil), m.snapshotSubs...)
}

func (m *MockFeed) ToleranceSubscriptions() []*MockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockSubscription(nil), m.toleranceSubs...)
}

// LastSnapshotSubscription returns the newest snapshot subscription or nil.
func (m *MockFeed) LastSnapshotSubscription() *MockSubscription {
	subs := m.SnapshotSubscriptions()
	if len(subs) == 0 {
		return nil
	}
	return subs[len(subs)-1]
}

func (m *MockFeed) LastToleranceSubscription() *MockSubscription {
	subs := m.ToleranceSubscriptions()
	if len(subs) == 0 {
		return nil
	}
	return subs[len(subs)-1]
}

// ActiveSnapshotSubscriptions counts snapshot subscriptions not yet released.
func (m *MockFeed) ActiveSnapshotSubscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return countActive(m.snapshotSubs)
}

func countActive(subs []*MockSubscription) int {
	n := 0
	for _, s := range subs {
		if s.Active() {
			n++
		}
	}
	return n
}
