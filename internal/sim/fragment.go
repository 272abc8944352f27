// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sim

// Fragment is an immutable record of one pending state mutation, staged
// during a tick and delivered to the commit callback exactly once. A keyed
// fragment replaces any earlier pending fragment with the same key; unkeyed
// fragments are always additive.
type Fragment struct {
	Key   string // dedup key, empty means additive
	Tick  uint64
	Value any

	apply func()
}

// NewFragment creates an additive fragment.
func NewFragment(tick uint64, value any) Fragment {
	return Fragment{Tick: tick, Value: value}
}

// NewKeyedFragment creates a fragment deduplicated by key within a tick.
func NewKeyedFragment(key string, tick uint64, value any) Fragment {
	return Fragment{Key: key, Tick: tick, Value: value}
}

// WithApply returns a copy of f carrying a commit action. The action runs
// when the frame driver harvests the fragment, making the staged value the
// owner's visible state.
func (f Fragment) WithApply(fn func()) Fragment {
	f.apply = fn
	return f
}

// Apply runs the fragment's commit action, if any.
func (f Fragment) Apply() {
	if f.apply != nil {
		f.apply()
	}
}

// Bucket holds the fragments staged during the current tick, in staging
// order. A Bucket has exactly one writer (its owning Engine or Entity) and is
// drained only by the frame driver between ticks.
type Bucket struct {
	frags []Fragment
	byKey map[string]int
}

// Add stages fragments. A keyed fragment removes the pending fragment with
// the same key before being appended, so the last write within a tick wins.
func (b *Bucket) Add(frags ...Fragment) {
	for _, f := range frags {
		if f.Key != "" {
			if b.byKey == nil {
				b.byKey = make(map[string]int)
			}
			if i, ok := b.byKey[f.Key]; ok {
				b.frags = append(b.frags[:i], b.frags[i+1:]...)
				for k, j := range b.byKey {
					if j > i {
						b.byKey[k] = j - 1
					}
				}
			}
			b.byKey[f.Key] = len(b.frags)
		}
		b.frags = append(b.frags, f)
	}
}

// Pending returns a copy of the staged fragments in staging order.
func (b *Bucket) Pending() []Fragment {
	out := make([]Fragment, len(b.frags))
	copy(out, b.frags)
	return out
}

// Len returns the number of staged fragments.
func (b *Bucket) Len() int {
	return len(b.frags)
}

// Clear empties the bucket.
func (b *Bucket) Clear() {
	b.frags = b.frags[:0]
	clear(b.byKey)
}
