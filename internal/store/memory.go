// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"sync"
)

// MemoryJournal is an in-memory Journal for tests and single-process runs.
type MemoryJournal struct {
	mu      sync.RWMutex
	batches []Batch
	byTick  map[uint64]struct{}
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		byTick: make(map[uint64]struct{}),
	}
}

// Append persists a batch in memory.
func (j *MemoryJournal) Append(_ context.Context, batch Batch) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.byTick[batch.Tick]; ok {
		return ErrDuplicateTick
	}
	j.byTick[batch.Tick] = struct{}{}
	j.batches = append(j.batches, batch)
	return nil
}

// Replay returns batches after the given tick in append order. Appends are
// tick-ordered because the frame driver is sequential, so append order is
// tick order.
func (j *MemoryJournal) Replay(_ context.Context, afterTick uint64, limit int) ([]Batch, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []Batch
	for _, b := range j.batches {
		if b.Tick <= afterTick {
			continue
		}
		out = append(out, b)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// LastTick returns the highest journaled tick.
func (j *MemoryJournal) LastTick(_ context.Context) (uint64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if len(j.batches) == 0 {
		return 0, ErrJournalEmpty
	}
	return j.batches[len(j.batches)-1].Tick, nil
}
