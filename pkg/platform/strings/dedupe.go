// Package strings provides string list helpers shared by configuration and validation.
package strings

import (
	"strings"
)

// DedupeAndTrimLower trims, lowercases and deduplicates values, dropping empty
// entries. Order is preserved.
//
// Example:
//
//	DedupeAndTrimLower([]string{"  FOO ", "bar", "Foo"})
//	// Returns: []string{"foo", "bar"}
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.ToLower(strings.TrimSpace(v))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// SplitList splits a comma-separated list and normalizes it with DedupeAndTrimLower.
// Returns nil when no entries remain.
func SplitList(raw string) []string {
	out := DedupeAndTrimLower(strings.Split(raw, ","))
	if len(out) == 0 {
		return nil
	}
	return out
}

// HasHostSuffix reports whether host equals one of suffixes or is a sub-domain of one.
// Comparison is case-insensitive.
func HasHostSuffix(host string, suffixes []string) bool {
	host = strings.ToLower(host)
	if host == "" {
		return false
	}
	for _, s := range suffixes {
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}
