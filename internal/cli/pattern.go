// Package cli provides shared utilities for CLI commands.
package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

// MatchItems returns the items whose label matches pattern. Patterns with
// glob characters (*?[) are matched case-insensitively against the whole
// label; anything else selects an item by exact id or label. An empty
// result is an error.
func MatchItems(pattern string, items []*vault.Item) ([]*vault.Item, error) {
	// Validate pattern syntax
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		var matches []*vault.Item
		for _, it := range items {
			if it.ID == pattern || it.Label == pattern {
				matches = append(matches, it)
			}
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("item '%s' not found", pattern)
		}
		return matches, nil
	}

	lower := strings.ToLower(pattern)
	var matches []*vault.Item
	for _, it := range items {
		matched, err := filepath.Match(lower, strings.ToLower(it.Label))
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, it)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no items match pattern '%s'", pattern)
	}
	return matches, nil
}

// MatchAll applies MatchItems for each pattern and returns the unique
// matches in order of first match.
func MatchAll(patterns []string, items []*vault.Item) ([]*vault.Item, error) {
	seen := make(map[string]bool)
	var result []*vault.Item

	for _, pattern := range patterns {
		matches, err := MatchItems(pattern, items)
		if err != nil {
			return nil, err
		}
		for _, it := range matches {
			if !seen[it.ID] {
				seen[it.ID] = true
				result = append(result, it)
			}
		}
	}

	return result, nil
}

// MapKeys extracts keys from a map and returns them sorted.
func MapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
