// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store provides the fragment journal: per-tick batches of committed
// fragments, persisted by the commit callback for replay and audit.
package store

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/holosim/internal/sim"
)

// ErrJournalEmpty is returned when the journal holds no batches.
var ErrJournalEmpty = errors.New("journal is empty")

// ErrDuplicateTick is returned when a batch for an already journaled tick is
// appended. Ticks are the journal's uniqueness key; at-most-once delivery
// upstream means a duplicate indicates a restarted driver reusing a counter.
var ErrDuplicateTick = errors.New("tick already journaled")

// Batch is one tick's harvested fragments.
type Batch struct {
	ID        ulid.ULID
	Tick      uint64
	Fragments []sim.Fragment
}

// NewBatch creates a batch with a fresh identity.
func NewBatch(tick uint64, fragments []sim.Fragment) Batch {
	return Batch{ID: sim.NewULID(), Tick: tick, Fragments: fragments}
}

// Journal persists and replays per-tick fragment batches.
type Journal interface {
	// Append persists a batch. Appending a batch for an already journaled
	// tick fails with ErrDuplicateTick.
	Append(ctx context.Context, batch Batch) error

	// Replay returns up to limit batches with tick greater than afterTick,
	// in ascending tick order.
	Replay(ctx context.Context, afterTick uint64, limit int) ([]Batch, error)

	// LastTick returns the highest journaled tick, or ErrJournalEmpty.
	LastTick(ctx context.Context) (uint64, error)
}
