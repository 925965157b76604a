package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquawatch/pkg/cache"
	"aquawatch/pkg/config"
	"aquawatch/pkg/stats"
	"aquawatch/pkg/telemetry"
	"aquawatch/pkg/testutil"
)

type fakeSource struct {
	mu       sync.Mutex
	state    cache.State
	horizons []int64
	err      error
}

func (f *fakeSource) State() cache.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSource) SetHorizon(ctx context.Context, horizonSeconds int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.horizons = append(f.horizons, horizonSeconds)
	return nil
}

func (f *fakeSource) set(state cache.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
}

type fakeReader struct{ snapshot telemetry.Snapshot }

func (f *fakeReader) Snapshot() telemetry.Snapshot { return f.snapshot }

func newTestWatcher(source StateSource) (*Watcher, *fakeReader, *testutil.CapturingPublisher, *bytes.Buffer) {
	reader := &fakeReader{}
	pub := testutil.NewCapturingPublisher()
	out := &bytes.Buffer{}
	cfg := &config.Config{Catalog: stats.DefaultCatalog()}
	cfg.Window.StatusIntervalSeconds = 1
	w := NewWatcher(source, reader, pub, cfg, log.New(io.Discard, "", 0), out)
	return w, reader, pub, out
}

func snapshot(ts int64, ph float64) stats.Snapshot {
	return stats.Snapshot{Timestamp: ts, Readings: stats.Readings{{Key: "pH", Value: ph}}}
}

func TestWatcherNoData(t *testing.T) {
	source := &fakeSource{}
	w, _, pub, out := newTestWatcher(source)

	w.Tick()

	assert.Contains(t, out.String(), "Data not retrieved.")
	assert.Contains(t, out.String(), "WARNING", "an empty window after loading is degraded")
	require.Len(t, pub.OfType("degraded_changed"), 1)
	assert.True(t, pub.OfType("degraded_changed")[0].(telemetry.DegradedChanged).Degraded)
}

func TestWatcherLoadingIsNotDegraded(t *testing.T) {
	source := &fakeSource{state: cache.State{Loading: true}}
	w, _, pub, out := newTestWatcher(source)

	w.Tick()

	assert.Contains(t, out.String(), "Loading...")
	assert.NotContains(t, out.String(), "WARNING")
	assert.Empty(t, pub.OfType("degraded_changed"))
}

func TestWatcherDegradedTransitions(t *testing.T) {
	source := &fakeSource{state: cache.State{Snapshots: []stats.Snapshot{snapshot(100, math.NaN())}}}
	w, _, pub, out := newTestWatcher(source)

	w.Tick()
	w.Tick()
	assert.Equal(t, 1, strings.Count(out.String(), "WARNING"), "banner prints once per transition")

	source.set(cache.State{Snapshots: []stats.Snapshot{snapshot(100, math.NaN()), snapshot(200, 7)}})
	w.Tick()
	assert.Contains(t, out.String(), "Sensor readings recovered")

	events := pub.OfType("degraded_changed")
	require.Len(t, events, 2)
	assert.True(t, events[0].(telemetry.DegradedChanged).Degraded)
	assert.False(t, events[1].(telemetry.DegradedChanged).Degraded)
}

func TestWatcherViolations(t *testing.T) {
	tolerances := stats.Tolerances{"pH": {Min: 6.5, Max: 7.5}}
	source := &fakeSource{state: cache.State{
		Snapshots:  []stats.Snapshot{snapshot(100, 8.2)},
		Tolerances: tolerances,
	}}
	w, _, _, out := newTestWatcher(source)

	w.Tick()
	w.Tick()
	assert.Equal(t, 1, strings.Count(out.String(), "ALERT: pH is above tolerance: 8.2 (range 6.5 to 7.5)"))

	source.set(cache.State{Snapshots: []stats.Snapshot{snapshot(200, 7)}, Tolerances: tolerances})
	w.Tick()
	assert.Contains(t, out.String(), "All metrics within tolerance")
}

func TestWatcherStatusOnlyOnChange(t *testing.T) {
	source := &fakeSource{state: cache.State{Snapshots: []stats.Snapshot{snapshot(100, 7)}}}
	w, reader, _, out := newTestWatcher(source)

	reader.snapshot = telemetry.Snapshot{BatchesReceived: 1, HorizonSeconds: 3600}
	w.Tick()
	w.Tick()
	assert.Equal(t, 1, strings.Count(out.String(), "Status - "))
	assert.Contains(t, out.String(), "window=1h")

	reader.snapshot = telemetry.Snapshot{
		BatchesReceived: 1,
		HorizonSeconds:  3600,
		ErrorsTotal:     2,
		ErrorsByContext: map[string]uint64{"stats_subscription": 2},
		RecentErrors:    []string{"subscription closed by relay: shutting down"},
	}
	w.Tick()
	assert.Equal(t, 2, strings.Count(out.String(), "Status - "))
	assert.Contains(t, out.String(), "Errors - total=2 stats_subscription=2")
	assert.Contains(t, out.String(), "Last error: subscription closed by relay: shutting down")
}

func TestReadHorizons(t *testing.T) {
	source := &fakeSource{}
	w, _, _, out := newTestWatcher(source)

	w.ReadHorizons(context.Background(), strings.NewReader("1h\n\nbogus\n7d\nall\n"))

	assert.Equal(t, []int64{3600, 7 * 86400, 0}, source.horizons)
	assert.Contains(t, out.String(), "Horizon set to 1h")
	assert.Contains(t, out.String(), "Horizon set to all time")
	assert.Contains(t, out.String(), `ERROR: invalid horizon "bogus"`)
}

func TestReadHorizonsSetError(t *testing.T) {
	source := &fakeSource{err: errors.New("cache: closed")}
	w, _, _, out := newTestWatcher(source)

	w.ReadHorizons(context.Background(), strings.NewReader("24h\n"))

	assert.Contains(t, out.String(), "ERROR: cache: closed")
}

func TestParseHorizon(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"all", 0, false},
		{"0", 0, false},
		{"90", 90, false},
		{"30s", 30, false},
		{"5m", 300, false},
		{"24h", 86400, false},
		{"7D", 7 * 86400, false},
		{"2w", 14 * 86400, false},
		{"", 0, true},
		{"-1h", 0, true},
		{"h", 0, true},
		{"1.5h", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseHorizon(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTolerances(t *testing.T) {
	table, err := parseTolerances([]string{"pH=6.5:7.5", "TDS=100:400"})
	require.NoError(t, err)
	assert.Equal(t, stats.Tolerances{"pH": {Min: 6.5, Max: 7.5}, "TDS": {Min: 100, Max: 400}}, table)

	for _, bad := range [][]string{nil, {"pH"}, {"pH=6.5"}, {"pH=x:7"}, {"pH=6:y"}, {"pH=8:7"}, {"=1:2"}} {
		_, err := parseTolerances(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestParseSnapshot(t *testing.T) {
	snap, err := parseSnapshot(42, []string{"pH=7", "TDS=nan"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), snap.Timestamp)
	require.Len(t, snap.Readings, 2)
	assert.Equal(t, "pH", snap.Readings[0].Key)
	assert.True(t, snap.Readings[1].Failed())

	for _, bad := range [][]string{nil, {"pH"}, {"pH=abc"}, {"pH=1", "pH=2"}} {
		_, err := parseSnapshot(42, bad)
		assert.Error(t, err, "%v", bad)
	}
}
