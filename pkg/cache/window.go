package cache

import "aquawatch/pkg/stats"

// Window is an ordered run of snapshots bounded below by a horizon. It is
// not safe for concurrent use; handles guard it with their own lock.
type Window struct {
	snapshots []stats.Snapshot
}

// Replace swaps the whole sequence for batch.
func (w *Window) Replace(batch []stats.Snapshot) {
	w.snapshots = make([]stats.Snapshot, len(batch))
	copy(w.snapshots, batch)
}

// Prune drops every snapshot with a timestamp at or before now-horizon and
// returns how many were removed. A horizon of zero means unbounded.
func (w *Window) Prune(now, horizon int64) int {
	if horizon <= 0 || len(w.snapshots) == 0 {
		return 0
	}
	cutoff := now - horizon
	kept := w.snapshots[:0]
	for _, s := range w.snapshots {
		if s.Timestamp > cutoff {
			kept = append(kept, s)
		}
	}
	removed := len(w.snapshots) - len(kept)
	// zero the tail so pruned readings can be collected
	for i := len(kept); i < len(w.snapshots); i++ {
		w.snapshots[i] = stats.Snapshot{}
	}
	w.snapshots = kept
	return removed
}

// Snapshots returns a copy of the sequence.
func (w *Window) Snapshots() []stats.Snapshot {
	out := make([]stats.Snapshot, len(w.snapshots))
	copy(out, w.snapshots)
	return out
}

func (w *Window) Len() int { return len(w.snapshots) }

// Bounds returns the first and last timestamps.
func (w *Window) Bounds() (from, to int64, ok bool) {
	if len(w.snapshots) == 0 {
		return 0, 0, false
	}
	return w.snapshots[0].Timestamp, w.snapshots[len(w.snapshots)-1].Timestamp, true
}
