// Package diff computes minimal field-level change sets between two
// snapshots of an entity's state.
package diff

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Compute returns the fields that differ between before and after, plus a
// short human-readable summary. A field counts as changed when it is present
// on only one side or present on both with structurally unequal values.
// Either side may be nil (CREATE has no before, DELETE no after).
//
// Order follows the caller-supplied key order of after, then before's order
// for fields that only exist in before. When afterKeys/beforeKeys are nil
// the keys are walked in sorted order so the output stays deterministic.
func Compute(before, after map[string]any, beforeKeys, afterKeys []string) ([]string, string) {
	if before == nil {
		before = map[string]any{}
	}
	if after == nil {
		after = map[string]any{}
	}

	changed := make([]string, 0, len(after))
	seen := make(map[string]struct{}, len(after))

	for _, key := range orderedKeys(after, afterKeys) {
		afterValue := after[key]
		beforeValue, ok := before[key]
		if !ok || !reflect.DeepEqual(beforeValue, afterValue) {
			changed = append(changed, key)
			seen[key] = struct{}{}
		}
	}

	// Fields removed in after keep before's ordering.
	for _, key := range orderedKeys(before, beforeKeys) {
		if _, ok := after[key]; ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		changed = append(changed, key)
	}

	return changed, summarize(changed)
}

func orderedKeys(m map[string]any, keys []string) []string {
	if keys != nil {
		ordered := make([]string, 0, len(keys))
		for _, key := range keys {
			if _, ok := m[key]; ok {
				ordered = append(ordered, key)
			}
		}
		return ordered
	}
	ordered := make([]string, 0, len(m))
	for key := range m {
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)
	return ordered
}

func summarize(changed []string) string {
	switch len(changed) {
	case 0:
		return "no changes"
	case 1:
		return "changed " + changed[0]
	default:
		return fmt.Sprintf("changed %d fields: %s", len(changed), strings.Join(changed, ", "))
	}
}
