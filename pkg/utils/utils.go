package utils

import (
	"fmt"
	"sort"
	"strconv"
)

type ContextCount struct {
	Context string
	Count   uint64
}

// SortContextsByCount sorts error contexts by count (descending), then by name (ascending)
func SortContextsByCount(byContext map[string]uint64) []ContextCount {
	var counts []ContextCount
	for ctx, count := range byContext {
		counts = append(counts, ContextCount{Context: ctx, Count: count})
	}

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count == counts[j].Count {
			return counts[i].Context < counts[j].Context
		}
		return counts[i].Count > counts[j].Count
	})

	return counts
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatNumber formats a number with comma separators for readability
func FormatNumber(n uint64) string {
	str := strconv.FormatUint(n, 10)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}

// HorizonLabel names a look-back horizon the way the dashboard range picker does.
func HorizonLabel(seconds int64) string {
	switch {
	case seconds <= 0:
		return "all time"
	case seconds%86400 == 0:
		return fmt.Sprintf("%dd", seconds/86400)
	case seconds%3600 == 0:
		return fmt.Sprintf("%dh", seconds/3600)
	case seconds%60 == 0:
		return fmt.Sprintf("%dm", seconds/60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
