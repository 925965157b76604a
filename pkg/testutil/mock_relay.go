package testutil

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// MockRelay is a reusable mock that implements relay.Relay for tests.
//
// Subscribe hands out subscriptions whose channels stay open; tests drive
// them through MockRelaySubscription. SubscribeEvents are queued on every new
// subscription followed by EOSE unless HoldEOSE is set.
type MockRelay struct {
	QuerySyncReturn []*nostr.Event
	QuerySyncError  error
	SubscribeEvents []*nostr.Event
	SubscribeError  error
	HoldEOSE        bool
	PublishError    error
	CloseError      error

	mu               sync.Mutex
	QuerySyncCalls   []nostr.Filter
	QueryEventsCalls []nostr.Filter
	SubscribeCalls   []nostr.Filters
	PublishCalls     []nostr.Event
	CloseCalled      bool
	subs             []*MockRelaySubscription
}

// MockRelaySubscription exposes the channels behind a mock subscription.
type MockRelaySubscription struct {
	Sub    *nostr.Subscription
	Ctx    context.Context
	events chan *nostr.Event
	eose   chan struct{}
	closed chan string
}

func (s *MockRelaySubscription) Send(ev *nostr.Event) { s.events <- ev }
func (s *MockRelaySubscription) EOSE()                { s.eose <- struct{}{} }
func (s *MockRelaySubscription) CloseWith(reason string) {
	s.closed <- reason
}

// Done reports whether the subscriber cancelled the subscription context.
func (s *MockRelaySubscription) Done() bool {
	select {
	case <-s.Ctx.Done():
		return true
	default:
		return false
	}
}

func (m *MockRelay) QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QuerySyncCalls = append(m.QuerySyncCalls, filter)
	return m.QuerySyncReturn, m.QuerySyncError
}

func (m *MockRelay) QueryEvents(ctx context.Context, filter nostr.Filter) (chan *nostr.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryEventsCalls = append(m.QueryEventsCalls, filter)
	if m.QuerySyncError != nil {
		return nil, m.QuerySyncError
	}
	ch := make(chan *nostr.Event, len(m.QuerySyncReturn))
	for _, event := range m.QuerySyncReturn {
		ch <- event
	}
	close(ch)
	return ch, nil
}

func (m *MockRelay) Subscribe(ctx context.Context, filters nostr.Filters, opts ...nostr.SubscriptionOption) (*nostr.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SubscribeCalls = append(m.SubscribeCalls, filters)
	if m.SubscribeError != nil {
		return nil, m.SubscribeError
	}

	ms := &MockRelaySubscription{
		Ctx:    ctx,
		events: make(chan *nostr.Event, len(m.SubscribeEvents)+64),
		eose:   make(chan struct{}, 1),
		closed: make(chan string, 1),
	}
	ms.Sub = &nostr.Subscription{
		Events:            ms.events,
		EndOfStoredEvents: ms.eose,
		ClosedReason:      ms.closed,
	}
	for _, ev := range m.SubscribeEvents {
		ms.events <- ev
	}
	if !m.HoldEOSE {
		ms.eose <- struct{}{}
	}
	m.subs = append(m.subs, ms)
	return ms.Sub, nil
}

func (m *MockRelay) Publish(ctx context.Context, event nostr.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishCalls = append(m.PublishCalls, event)
	return m.PublishError
}

func (m *MockRelay) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalled = true
	return m.CloseError
}

// Subscriptions returns every subscription handed out so far.
func (m *MockRelay) Subscriptions() []*MockRelaySubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockRelaySubscription(nil), m.subs...)
}

func (m *MockRelay) Published() []nostr.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]nostr.Event(nil), m.PublishCalls...)
}

func (m *MockRelay) Filters() []nostr.Filters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]nostr.Filters(nil), m.SubscribeCalls...)
}

// Closed reports whether Close was called.
func (m *MockRelay) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CloseCalled
}
