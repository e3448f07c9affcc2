// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// DedupeFunc normalizes each value, drops empty results and keeps the first
// occurrence of each. Order is preserved.
func DedupeFunc(values []string, normalize func(string) string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		n := normalize(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	return result
}

// DedupeAndTrimLower trims and lowercases, for case-insensitive lists such as
// broker addresses.
//
//	DedupeAndTrimLower([]string{" Kafka-1:9092", "kafka-1:9092", ""})
//	// Returns: []string{"kafka-1:9092"}
func DedupeAndTrimLower(values []string) []string {
	return DedupeFunc(values, func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
}
