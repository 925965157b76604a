package nostrfeed

import (
	"fmt"
	"math"
	"strconv"

	"github.com/nbd-wtf/go-nostr"

	"aquawatch/pkg/stats"
	"aquawatch/pkg/utils"
)

const (
	// StatsEventKind carries one sensor snapshot per event.
	StatsEventKind = 4078
	// ToleranceEventKind is the NIP-78 application data kind. The tolerance
	// table lives in a single replaceable event addressed by ToleranceDTag.
	ToleranceEventKind = 30078
	ToleranceDTag      = "aquawatch/tolerances"
)

const (
	tagUnixTime  = "unix_time"
	tagStat      = "stat"
	tagTolerance = "tolerance"
)

// EncodeSnapshot builds the unsigned event for snap.
func EncodeSnapshot(snap stats.Snapshot) nostr.Event {
	tags := make(nostr.Tags, 0, len(snap.Readings)+1)
	tags = append(tags, nostr.Tag{tagUnixTime, strconv.FormatInt(snap.Timestamp, 10)})
	for _, r := range snap.Readings {
		tags = append(tags, nostr.Tag{tagStat, r.Key, formatValue(r.Value)})
	}
	return nostr.Event{
		CreatedAt: nostr.Timestamp(snap.Timestamp),
		Kind:      StatsEventKind,
		Tags:      tags,
		Content:   "",
	}
}

// DecodeSnapshot reads a snapshot event. With a catalog the readings are
// shaped to it; without one they keep the event's tag order. Values that do
// not parse become NaN so the failed read stays visible.
func DecodeSnapshot(event *nostr.Event, catalog stats.Catalog) (stats.Snapshot, error) {
	if event.Kind != StatsEventKind {
		return stats.Snapshot{}, fmt.Errorf("unexpected event kind %d", event.Kind)
	}

	ts := int64(event.CreatedAt)
	var raw stats.Readings
	for _, tag := range event.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case tagUnixTime:
			if v, err := strconv.ParseInt(tag[1], 10, 64); err == nil {
				ts = v
			}
		case tagStat:
			value := math.NaN()
			if len(tag) >= 3 {
				if v, err := strconv.ParseFloat(tag[2], 64); err == nil {
					value = v
				}
			}
			raw = append(raw, stats.Reading{Key: tag[1], Value: value})
		}
	}

	if len(catalog) == 0 {
		return stats.Snapshot{Timestamp: ts, Readings: raw}, nil
	}
	return catalog.Shape(ts, raw.Get), nil
}

// EncodeTolerances builds the unsigned tolerance table event. Tags are
// sorted by metric key.
func EncodeTolerances(table stats.Tolerances) nostr.Event {
	keys := utils.SortedKeys(table)

	tags := make(nostr.Tags, 0, len(keys)+1)
	tags = append(tags, nostr.Tag{"d", ToleranceDTag})
	for _, k := range keys {
		t := table[k]
		tags = append(tags, nostr.Tag{tagTolerance, k, formatValue(t.Min), formatValue(t.Max)})
	}
	return nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      ToleranceEventKind,
		Tags:      tags,
		Content:   "",
	}
}

// DecodeTolerances reads the full table. Malformed rows are skipped.
func DecodeTolerances(event *nostr.Event) (stats.Tolerances, error) {
	if event.Kind != ToleranceEventKind {
		return nil, fmt.Errorf("unexpected event kind %d", event.Kind)
	}
	if !hasDTag(event.Tags) {
		return nil, fmt.Errorf("missing d tag %q", ToleranceDTag)
	}

	table := stats.Tolerances{}
	for _, tag := range event.Tags {
		if len(tag) < 4 || tag[0] != tagTolerance {
			continue
		}
		lo, err := strconv.ParseFloat(tag[2], 64)
		if err != nil {
			continue
		}
		hi, err := strconv.ParseFloat(tag[3], 64)
		if err != nil {
			continue
		}
		table[tag[1]] = stats.Tolerance{Min: lo, Max: hi}
	}
	return table, nil
}

func hasDTag(tags nostr.Tags) bool {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == "d" && tag[1] == ToleranceDTag {
			return true
		}
	}
	return false
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
