package cache

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquawatch/pkg/stats"
	"aquawatch/pkg/testutil"
)

func startTracker(t *testing.T, horizon int64, opts ...Option) (*Tracker, *testutil.MockFeed) {
	t.Helper()
	src := &testutil.MockFeed{}
	tr := NewTracker(src, src, opts...)
	require.NoError(t, tr.Start(context.Background(), horizon))
	t.Cleanup(tr.Close)
	return tr, src
}

func TestTrackerSameHorizonDoesNotResubscribe(t *testing.T) {
	tr, src := startTracker(t, 3600)

	require.NoError(t, tr.SetHorizon(context.Background(), 3600))
	require.NoError(t, tr.SetHorizon(context.Background(), 3600))

	assert.Len(t, src.SnapshotSubscriptions(), 1)
	assert.Equal(t, 1, src.ActiveSnapshotSubscriptions())
}

func TestTrackerNewHorizonTearsDownFirst(t *testing.T) {
	tr, src := startTracker(t, 3600)
	first := src.LastSnapshotSubscription()

	require.NoError(t, tr.SetHorizon(context.Background(), 86400))

	subs := src.SnapshotSubscriptions()
	require.Len(t, subs, 2)
	assert.Equal(t, 1, first.Unsubscribes())
	assert.Zero(t, subs[1].ActiveAtSubscribe)
	assert.Equal(t, 1, src.ActiveSnapshotSubscriptions())

	h, ok := tr.Horizon()
	assert.True(t, ok)
	assert.Equal(t, int64(86400), h)
}

func TestTrackerStaleHandleCannotWrite(t *testing.T) {
	tr, src := startTracker(t, 3600, WithClock(testutil.NewMockClock(10_000)))
	old := src.LastSnapshotSubscription()

	require.NoError(t, tr.SetHorizon(context.Background(), 60))
	fresh := src.LastSnapshotSubscription()

	fresh.DeliverSnapshots([]stats.Snapshot{snap(9_990)})
	old.DeliverSnapshots([]stats.Snapshot{snap(7_000), snap(8_000)})

	assert.Equal(t, []int64{9_990}, timestamps(tr.State().Snapshots))
}

func TestTrackerToleranceSubscriptionOpenedOnce(t *testing.T) {
	tr, src := startTracker(t, 3600)

	require.NoError(t, tr.Start(context.Background(), 60))
	require.NoError(t, tr.SetHorizon(context.Background(), 120))

	assert.Len(t, src.ToleranceSubscriptions(), 1)
}

func TestTrackerStateAndDegraded(t *testing.T) {
	tr, src := startTracker(t, 3600, WithClock(testutil.NewMockClock(10)))

	state := tr.State()
	assert.True(t, state.Loading)
	assert.False(t, state.Degraded())
	assert.NotNil(t, state.Tolerances)

	src.LastToleranceSubscription().DeliverTolerances(stats.Tolerances{"pH": {Min: 6, Max: 8}})
	src.LastSnapshotSubscription().DeliverSnapshots([]stats.Snapshot{{
		Timestamp: 5,
		Readings:  stats.Readings{{Key: "pH", Value: math.NaN()}, {Key: "temp", Value: 25}},
	}})

	state = tr.State()
	assert.False(t, state.Loading)
	assert.True(t, state.Degraded())
	assert.True(t, tr.Degraded())
	assert.Equal(t, stats.Tolerance{Min: 6, Max: 8}, state.Tolerances.Lookup("pH"))
}

func TestTrackerClose(t *testing.T) {
	src := &testutil.MockFeed{}
	tr := NewTracker(src, src)
	require.NoError(t, tr.Start(context.Background(), 60))

	tr.Close()
	tr.Close()

	assert.Zero(t, src.ActiveSnapshotSubscriptions())
	assert.Equal(t, 1, src.LastToleranceSubscription().Unsubscribes())
	assert.ErrorIs(t, tr.SetHorizon(context.Background(), 30), ErrClosed)
	assert.ErrorIs(t, tr.Start(context.Background(), 30), ErrClosed)

	_, ok := tr.Horizon()
	assert.False(t, ok)
	assert.False(t, tr.State().Loading)
}
