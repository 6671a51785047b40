// Package delta computes the set-difference classification of current
// source content against the last-synced cache snapshot.
//
// Diff is pure: no I/O, deterministic, and total over arbitrary key sets
// including empty content and an absent cache. The four result sets
// partition the union of current and cached keys with no overlap.
package delta

import (
	"sort"

	"github.com/TedyHub/langsync/kv"
)

// Change records a key whose value differs from the cached snapshot.
type Change struct {
	Key string
	Old string
	New string
}

// Delta classifies every key of current against cached.
type Delta struct {
	// New: present in current, absent from cached.
	New []string
	// Changed: present in both with differing values.
	Changed []Change
	// Unchanged: present in both with equal values.
	Unchanged []string
	// Removed: present in cached, absent from current. Sync planning
	// ignores removals — obsolete keys are pruned target-side, not via
	// the cache.
	Removed []string
}

// Diff classifies current against cached. A nil cached map (no cache file,
// or a cache recorded for a different source language) makes every current
// key new.
func Diff(current []kv.KeyValue, cached map[string]string) Delta {
	var d Delta

	seen := make(map[string]bool, len(current))
	for _, e := range current {
		if seen[e.Key] {
			continue
		}
		seen[e.Key] = true

		if cached == nil {
			d.New = append(d.New, e.Key)
			continue
		}
		old, ok := cached[e.Key]
		switch {
		case !ok:
			d.New = append(d.New, e.Key)
		case old != e.Value:
			d.Changed = append(d.Changed, Change{Key: e.Key, Old: old, New: e.Value})
		default:
			d.Unchanged = append(d.Unchanged, e.Key)
		}
	}

	for k := range cached {
		if !seen[k] {
			d.Removed = append(d.Removed, k)
		}
	}
	sort.Strings(d.Removed)

	return d
}

// ChangedKeys returns the keys of Changed in order.
func (d Delta) ChangedKeys() []string {
	keys := make([]string, len(d.Changed))
	for i, c := range d.Changed {
		keys[i] = c.Key
	}
	return keys
}

// ToSync returns the set of keys that need (re)translation: new plus
// changed.
func (d Delta) ToSync() map[string]bool {
	m := make(map[string]bool, len(d.New)+len(d.Changed))
	for _, k := range d.New {
		m[k] = true
	}
	for _, c := range d.Changed {
		m[c.Key] = true
	}
	return m
}

// Empty reports whether nothing needs syncing.
func (d Delta) Empty() bool {
	return len(d.New) == 0 && len(d.Changed) == 0
}
