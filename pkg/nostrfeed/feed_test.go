package nostrfeed

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquawatch/pkg/feed"
	"aquawatch/pkg/relay"
	"aquawatch/pkg/stats"
	"aquawatch/pkg/telemetry"
	"aquawatch/pkg/testutil"
)

func signed(t *testing.T, event nostr.Event) *nostr.Event {
	t.Helper()
	event.PubKey = testutil.TestPKHex
	require.NoError(t, event.Sign(testutil.TestSKHex))
	return &event
}

func snapshotEvent(t *testing.T, ts int64, ph float64) *nostr.Event {
	return signed(t, EncodeSnapshot(stats.Snapshot{
		Timestamp: ts,
		Readings:  stats.Readings{{Key: "pH", Value: ph}},
	}))
}

func toleranceEvent(t *testing.T, createdAt int64, table stats.Tolerances) *nostr.Event {
	event := EncodeTolerances(table)
	event.CreatedAt = nostr.Timestamp(createdAt)
	return signed(t, event)
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	var zero T
	return zero
}

func stamps(snaps []stats.Snapshot) []int64 {
	out := make([]int64, len(snaps))
	for i, s := range snaps {
		out[i] = s.Timestamp
	}
	return out
}

func subscribeSnapshots(t *testing.T, f *Feed, since int64) (feed.Subscription, chan []stats.Snapshot, chan error) {
	t.Helper()
	data := make(chan []stats.Snapshot, 16)
	errs := make(chan error, 4)
	sub, err := f.SubscribeSnapshots(context.Background(), feed.Query{Since: since},
		func(b []stats.Snapshot) { data <- b },
		func(err error) { errs <- err })
	require.NoError(t, err)
	t.Cleanup(sub.Unsubscribe)
	return sub, data, errs
}

func TestSubscribeSnapshotsFilter(t *testing.T) {
	mr := &testutil.MockRelay{}
	f := New(mr, testutil.TestPKHex, Options{MaxBatch: 250})

	subscribeSnapshots(t, f, 6400)

	filters := mr.Filters()
	require.Len(t, filters, 1)
	filter := filters[0][0]
	assert.Equal(t, []int{StatsEventKind}, filter.Kinds)
	assert.Equal(t, []string{testutil.TestPKHex}, filter.Authors)
	assert.Equal(t, 250, filter.Limit)
	require.NotNil(t, filter.Since)
	assert.Equal(t, nostr.Timestamp(6401), *filter.Since)
}

func TestSubscribeSnapshotsUnboundedHasNoSince(t *testing.T) {
	mr := &testutil.MockRelay{}
	f := New(mr, testutil.TestPKHex, Options{})

	subscribeSnapshots(t, f, 0)

	assert.Nil(t, mr.Filters()[0][0].Since)
}

func TestSubscribeSnapshotsDeliversSortedBatchAtEOSE(t *testing.T) {
	dup := snapshotEvent(t, 200, 7)
	mr := &testutil.MockRelay{SubscribeEvents: []*nostr.Event{
		snapshotEvent(t, 300, 7.1),
		snapshotEvent(t, 100, 6.9),
		dup,
		dup,
		snapshotEvent(t, 50, 6.5), // at or before since
	}}
	f := New(mr, testutil.TestPKHex, Options{})

	_, data, _ := subscribeSnapshots(t, f, 50)

	assert.Equal(t, []int64{100, 200, 300}, stamps(receive(t, data)))
}

func TestSubscribeSnapshotsPushesFullSetOnLiveEvents(t *testing.T) {
	mr := &testutil.MockRelay{SubscribeEvents: []*nostr.Event{snapshotEvent(t, 100, 7)}}
	f := New(mr, testutil.TestPKHex, Options{})
	_, data, _ := subscribeSnapshots(t, f, 0)

	assert.Equal(t, []int64{100}, stamps(receive(t, data)))

	mr.Subscriptions()[0].Send(snapshotEvent(t, 150, 7.2))
	assert.Equal(t, []int64{100, 150}, stamps(receive(t, data)))
}

func TestSubscribeSnapshotsCapsToNewest(t *testing.T) {
	mr := &testutil.MockRelay{SubscribeEvents: []*nostr.Event{
		snapshotEvent(t, 10, 7),
		snapshotEvent(t, 30, 7),
		snapshotEvent(t, 20, 7),
	}}
	f := New(mr, testutil.TestPKHex, Options{MaxBatch: 2})

	_, data, _ := subscribeSnapshots(t, f, 0)

	assert.Equal(t, []int64{20, 30}, stamps(receive(t, data)))
}

func TestSubscribeSnapshotsEmptyAtEOSE(t *testing.T) {
	mr := &testutil.MockRelay{}
	f := New(mr, testutil.TestPKHex, Options{})

	_, data, _ := subscribeSnapshots(t, f, 0)

	batch := receive(t, data)
	assert.NotNil(t, batch)
	assert.Empty(t, batch)
}

func TestSubscribeSnapshotsClosedByRelay(t *testing.T) {
	capture := testutil.NewCapturingPublisher()
	mr := &testutil.MockRelay{HoldEOSE: true}
	f := New(mr, testutil.TestPKHex, Options{Emit: capture.Publish})
	_, _, errs := subscribeSnapshots(t, f, 0)

	mr.Subscriptions()[0].CloseWith("auth-required: nope")

	err := receive(t, errs)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
	assert.Contains(t, err.Error(), "auth-required")
	assert.Len(t, capture.OfType("feed_error"), 1)
}

func TestSubscribeSnapshotsResubscribesAfterRelayClose(t *testing.T) {
	mr := &testutil.MockRelay{SubscribeEvents: []*nostr.Event{snapshotEvent(t, 100, 7)}}
	f := New(mr, testutil.TestPKHex, Options{})
	_, data, errs := subscribeSnapshots(t, f, 50)

	assert.Equal(t, []int64{100}, stamps(receive(t, data)))

	mr.Subscriptions()[0].CloseWith("relay connection closed")
	assert.ErrorIs(t, receive(t, errs), ErrSubscriptionClosed)

	require.Eventually(t, func() bool { return len(mr.Subscriptions()) == 2 }, 2*time.Second, 5*time.Millisecond)
	filters := mr.Filters()
	assert.Equal(t, filters[0], filters[1], "same query after resubscribe")

	// stored events replayed by the new subscription are already held
	mr.Subscriptions()[1].Send(snapshotEvent(t, 150, 7.2))
	assert.Equal(t, []int64{100, 150}, stamps(receive(t, data)))
}

func TestSubscribeSnapshotsRedialsAfterDrop(t *testing.T) {
	capture := testutil.NewCapturingPublisher()
	first := &testutil.MockRelay{HoldEOSE: true}
	second := &testutil.MockRelay{SubscribeEvents: []*nostr.Event{snapshotEvent(t, 200, 7)}}

	var mu sync.Mutex
	dials := 0
	redial := func(ctx context.Context) (relay.Relay, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials == 1 {
			return nil, errors.New("connection refused")
		}
		return second, nil
	}
	f := New(first, testutil.TestPKHex, Options{
		Emit:     capture.Publish,
		RelayURL: "wss://relay.test",
		Redial:   redial,
		Backoff:  Backoff{Initial: time.Millisecond},
	})
	_, data, errs := subscribeSnapshots(t, f, 0)

	first.Subscriptions()[0].CloseWith("relay connection closed")
	receive(t, errs)

	assert.Equal(t, []int64{200}, stamps(receive(t, data)), "first delivery comes from the new relay")
	assert.True(t, first.Closed())
	require.Len(t, second.Subscriptions(), 1)

	var disconnected bool
	for _, e := range capture.OfType("connection_status_changed") {
		if !e.(telemetry.ConnectionStatusChanged).Connected {
			disconnected = true
		}
	}
	assert.True(t, disconnected)

	var contexts []string
	for _, e := range capture.OfType("feed_error") {
		contexts = append(contexts, e.(telemetry.FeedError).Context)
	}
	assert.Contains(t, contexts, "snapshot_subscription")
	assert.Contains(t, contexts, "snapshot_resubscribe")
}

func TestFeedLogsErrorsWithoutDebug(t *testing.T) {
	var buf bytes.Buffer
	mr := &testutil.MockRelay{HoldEOSE: true}
	f := New(mr, testutil.TestPKHex, Options{Logger: log.New(&buf, "", 0)})
	_, _, errs := subscribeSnapshots(t, f, 0)

	mr.Subscriptions()[0].CloseWith("rate-limited")
	receive(t, errs)

	assert.Contains(t, buf.String(), "snapshot subscription lost")
	assert.Contains(t, buf.String(), "rate-limited")

	_, err := f.FetchRange(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "fetched")
}

func TestUnsubscribeStopsResubscribing(t *testing.T) {
	mr := &testutil.MockRelay{HoldEOSE: true}
	redial := func(ctx context.Context) (relay.Relay, error) {
		return nil, errors.New("connection refused")
	}
	f := New(mr, testutil.TestPKHex, Options{Redial: redial, Backoff: Backoff{Initial: time.Millisecond}})
	sub, _, errs := subscribeSnapshots(t, f, 0)

	mr.Subscriptions()[0].CloseWith("relay connection closed")
	receive(t, errs)
	sub.Unsubscribe()

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, mr.Subscriptions(), 1)
	assert.False(t, mr.Closed(), "the relay is only replaced after a successful redial")
}

func TestSubscribeSnapshotsUnsubscribeCancels(t *testing.T) {
	mr := &testutil.MockRelay{HoldEOSE: true}
	f := New(mr, testutil.TestPKHex, Options{})
	sub, _, errs := subscribeSnapshots(t, f, 0)

	sub.Unsubscribe()
	sub.Unsubscribe()

	assert.True(t, mr.Subscriptions()[0].Done())
	select {
	case err := <-errs:
		t.Fatalf("unexpected error after unsubscribe: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSubscribeSnapshotsError(t *testing.T) {
	mr := &testutil.MockRelay{SubscribeError: errors.New("not connected")}
	f := New(mr, testutil.TestPKHex, Options{})

	_, err := f.SubscribeSnapshots(context.Background(), feed.Query{}, func([]stats.Snapshot) {}, func(error) {})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestSubscribeTolerancesNewestWins(t *testing.T) {
	mr := &testutil.MockRelay{SubscribeEvents: []*nostr.Event{
		toleranceEvent(t, 200, stats.Tolerances{"pH": {Min: 6.5, Max: 7.5}}),
		toleranceEvent(t, 100, stats.Tolerances{"pH": {Min: 6, Max: 8}, "TDS": {Min: 1, Max: 2}}),
	}}
	f := New(mr, testutil.TestPKHex, Options{})
	data := make(chan stats.Tolerances, 4)
	sub, err := f.SubscribeTolerances(context.Background(), func(tt stats.Tolerances) { data <- tt }, func(error) {})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.Equal(t, stats.Tolerances{"pH": {Min: 6.5, Max: 7.5}}, receive(t, data))

	filter := mr.Filters()[0][0]
	assert.Equal(t, []int{ToleranceEventKind}, filter.Kinds)
	assert.Equal(t, []string{ToleranceDTag}, filter.Tags["d"])

	mr.Subscriptions()[0].Send(toleranceEvent(t, 300, stats.Tolerances{"TDS": {Min: 100, Max: 400}}))
	assert.Equal(t, stats.Tolerances{"TDS": {Min: 100, Max: 400}}, receive(t, data))
}

func TestSubscribeTolerancesSameSecondTieGoesToLowerID(t *testing.T) {
	a := toleranceEvent(t, 500, stats.Tolerances{"pH": {Min: 6, Max: 7}})
	b := toleranceEvent(t, 500, stats.Tolerances{"pH": {Min: 7, Max: 8}})
	low, high := a, b
	if b.ID < a.ID {
		low, high = b, a
	}
	wantLow, err := DecodeTolerances(low)
	require.NoError(t, err)

	mr := &testutil.MockRelay{SubscribeEvents: []*nostr.Event{high}}
	f := New(mr, testutil.TestPKHex, Options{})
	data := make(chan stats.Tolerances, 4)
	sub, err := f.SubscribeTolerances(context.Background(), func(tt stats.Tolerances) { data <- tt }, func(error) {})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	receive(t, data)

	mr.Subscriptions()[0].Send(low)
	assert.Equal(t, wantLow, receive(t, data))

	mr.Subscriptions()[0].Send(high)
	select {
	case tt := <-data:
		t.Fatalf("higher id replaced the table: %v", tt)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestReplaces(t *testing.T) {
	ev := &nostr.Event{CreatedAt: 10, ID: "bb"}
	assert.True(t, replaces(ev, 9, "zz"))
	assert.False(t, replaces(ev, 11, "00"))
	assert.True(t, replaces(ev, 10, "cc"))
	assert.False(t, replaces(ev, 10, "aa"))
	assert.False(t, replaces(ev, 10, "bb"))
}

func TestSubscribeTolerancesEmptyAtEOSE(t *testing.T) {
	mr := &testutil.MockRelay{}
	f := New(mr, testutil.TestPKHex, Options{})
	data := make(chan stats.Tolerances, 1)
	sub, err := f.SubscribeTolerances(context.Background(), func(tt stats.Tolerances) { data <- tt }, func(error) {})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	table := receive(t, data)
	assert.NotNil(t, table)
	assert.Empty(t, table)
}

func TestFetchRange(t *testing.T) {
	mr := &testutil.MockRelay{QuerySyncReturn: []*nostr.Event{
		snapshotEvent(t, 30, 7),
		snapshotEvent(t, 10, 7),
		snapshotEvent(t, 99, 7), // outside the range
		snapshotEvent(t, 20, 7),
	}}
	f := New(mr, testutil.TestPKHex, Options{ExportLimit: 10})

	snaps, err := f.FetchRange(context.Background(), 10, 30)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, stamps(snaps))

	filter := mr.QuerySyncCalls[0]
	assert.Equal(t, nostr.Timestamp(10), *filter.Since)
	assert.Equal(t, nostr.Timestamp(30), *filter.Until)
	assert.Equal(t, 10, filter.Limit)
}

func TestFetchRangeErrors(t *testing.T) {
	mr := &testutil.MockRelay{QuerySyncError: errors.New("timeout")}
	f := New(mr, testutil.TestPKHex, Options{})

	_, err := f.FetchRange(context.Background(), 0, 10)
	assert.Error(t, err)

	_, err = f.FetchRange(context.Background(), 10, 0)
	assert.Error(t, err)
}
