// Package stats holds the telemetry domain types shared by the feed, the
// cache and everything that reads from it.
package stats

import (
	"math"
	"time"
)

// Reading is one named sensor value. NaN marks a failed read.
type Reading struct {
	Key   string
	Value float64
}

// Failed reports whether the sensor read behind this reading failed.
func (r Reading) Failed() bool { return math.IsNaN(r.Value) }

// Readings is ordered; export relies on the order of the first snapshot.
type Readings []Reading

// Get returns the value stored for key.
func (rs Readings) Get(key string) (float64, bool) {
	for _, r := range rs {
		if r.Key == key {
			return r.Value, true
		}
	}
	return 0, false
}

// Keys returns the metric keys in iteration order.
func (rs Readings) Keys() []string {
	keys := make([]string, len(rs))
	for i, r := range rs {
		keys[i] = r.Key
	}
	return keys
}

// HasFailed reports whether any reading is NaN.
func (rs Readings) HasFailed() bool {
	for _, r := range rs {
		if r.Failed() {
			return true
		}
	}
	return false
}

// Snapshot is one timestamped set of readings.
type Snapshot struct {
	Timestamp int64 // unix seconds
	Readings  Readings
}

// Time returns the snapshot timestamp as a time.Time.
func (s Snapshot) Time() time.Time { return time.Unix(s.Timestamp, 0) }

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	rs := make(Readings, len(s.Readings))
	copy(rs, s.Readings)
	return Snapshot{Timestamp: s.Timestamp, Readings: rs}
}

// CloneAll copies a snapshot sequence. Readings slices are shared since
// snapshots are never mutated after creation.
func CloneAll(in []Snapshot) []Snapshot {
	if in == nil {
		return nil
	}
	out := make([]Snapshot, len(in))
	copy(out, in)
	return out
}

// Degraded is the bad-reading predicate: once loading has finished, the
// window is either empty or its newest snapshot carries a failed read.
func Degraded(loading bool, snapshots []Snapshot) bool {
	if loading {
		return false
	}
	if len(snapshots) == 0 {
		return true
	}
	return snapshots[len(snapshots)-1].Readings.HasFailed()
}

// LastRetrieved returns the time of the newest snapshot.
func LastRetrieved(snapshots []Snapshot) (time.Time, bool) {
	if len(snapshots) == 0 {
		return time.Time{}, false
	}
	return snapshots[len(snapshots)-1].Time(), true
}
