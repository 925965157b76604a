package stats

import "math"

// Tolerance is the acceptable operating range of a metric.
type Tolerance struct {
	Min float64
	Max float64
}

// Unloaded is returned for metrics missing from the table. It means "not
// loaded yet", not "must equal zero".
var Unloaded = Tolerance{}

// Loaded reports whether t is a real range rather than the sentinel.
func (t Tolerance) Loaded() bool { return t != Unloaded }

// Contains reports whether v falls inside the range, bounds included.
func (t Tolerance) Contains(v float64) bool {
	return !math.IsNaN(v) && v >= t.Min && v <= t.Max
}

// Tolerances maps metric keys to their ranges.
type Tolerances map[string]Tolerance

// Lookup returns the tolerance for key or the Unloaded sentinel.
func (ts Tolerances) Lookup(key string) Tolerance {
	if t, ok := ts[key]; ok {
		return t
	}
	return Unloaded
}

// Clone returns a copy of the table.
func (ts Tolerances) Clone() Tolerances {
	out := make(Tolerances, len(ts))
	for k, v := range ts {
		out[k] = v
	}
	return out
}

// ViolationKind classifies a Violation.
type ViolationKind int

const (
	ViolationBelow ViolationKind = iota
	ViolationAbove
	ViolationFailed
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationBelow:
		return "below"
	case ViolationAbove:
		return "above"
	case ViolationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Violation is a catalog metric that needs attention.
type Violation struct {
	Metric    Metric
	Value     float64
	Tolerance Tolerance
	Kind      ViolationKind
}

// Evaluate checks the catalog metrics of snap against the tolerance table.
// Failed reads are always reported; range checks are skipped for metrics
// whose tolerance has not loaded.
func Evaluate(snap Snapshot, tolerances Tolerances, catalog Catalog) []Violation {
	var out []Violation
	for _, m := range catalog {
		v, ok := snap.Readings.Get(m.Key)
		if !ok {
			continue
		}
		tol := tolerances.Lookup(m.Key)
		switch {
		case math.IsNaN(v):
			out = append(out, Violation{Metric: m, Value: v, Tolerance: tol, Kind: ViolationFailed})
		case !tol.Loaded():
		case v < tol.Min:
			out = append(out, Violation{Metric: m, Value: v, Tolerance: tol, Kind: ViolationBelow})
		case v > tol.Max:
			out = append(out, Violation{Metric: m, Value: v, Tolerance: tol, Kind: ViolationAbove})
		}
	}
	return out
}
