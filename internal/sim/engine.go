// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sim contains the deterministic tick engine: the entity update
// cycle, the deferred-mutation fragment model, per-entity trigger dispatch,
// and the interpolation-driven movement schedule. The frame driver in
// internal/turn is the only caller of Update on these types.
package sim

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Engine owns the entity registry, the monotonic tick counter, and its own
// fragment bucket for engine-level staged mutations.
//
// The simulation runs on a single logical thread: the frame driver alone
// calls Update, and registry mutation belongs between ticks. No locking here;
// concurrent callers get no guarantees.
type Engine struct {
	time         uint64
	previousTime uint64
	entities     map[ulid.ULID]*Entity
	bucket       Bucket
	log          *slog.Logger
}

// NewEngine creates an engine at tick zero with an empty registry.
func NewEngine(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		entities: make(map[ulid.ULID]*Entity),
		log:      log,
	}
}

// Time returns the current tick.
func (e *Engine) Time() uint64 { return e.time }

// PreviousTime returns the tick before the most recent successful update.
func (e *Engine) PreviousTime() uint64 { return e.previousTime }

// AddEntity registers an entity. Adding an already registered entity is a
// no-op. Intended to be called between ticks, never from behavior code.
func (e *Engine) AddEntity(ent *Entity) {
	if ent == nil {
		return
	}
	if _, ok := e.entities[ent.ID()]; ok {
		return
	}
	e.entities[ent.ID()] = ent
}

// RemoveEntity unregisters the entity with the given identity. Removing an
// absent entity is a no-op. The entity's attributes are owned externally and
// survive removal; re-adding does not reset them.
func (e *Engine) RemoveEntity(id ulid.ULID) {
	delete(e.entities, id)
}

// Entity returns the registered entity with the given identity.
func (e *Engine) Entity(id ulid.ULID) (*Entity, bool) {
	ent, ok := e.entities[id]
	return ent, ok
}

// Entities returns the registered entities. Iteration order follows map
// order and is deliberately unspecified; behavior code must not rely on it.
func (e *Engine) Entities() []*Entity {
	out := make([]*Entity, 0, len(e.entities))
	for _, ent := range e.entities {
		out = append(out, ent)
	}
	return out
}

// Len returns the number of registered entities.
func (e *Engine) Len() int { return len(e.entities) }

// AddFragments stages engine-level fragments for the current tick.
func (e *Engine) AddFragments(frags ...Fragment) {
	e.bucket.Add(frags...)
}

// PendingFragments returns the engine's staged fragments.
func (e *Engine) PendingFragments() []Fragment {
	return e.bucket.Pending()
}

// ClearFragments empties the engine's bucket. Called once per tick by the
// frame driver after harvest, never by behavior code.
func (e *Engine) ClearFragments() {
	e.bucket.Clear()
}

// Update advances the tick counter by one.
func (e *Engine) Update(ctx context.Context) error {
	return e.UpdateBy(ctx, 1)
}

// UpdateBy advances the tick counter by the externally supplied delta. It
// fails when the engine's fragment bucket still holds entries, which means
// the driver skipped the harvest/clear cycle for the previous tick.
func (e *Engine) UpdateBy(_ context.Context, delta uint64) error {
	if delta == 0 {
		return oops.
			Code(CodeConfigurationError).
			Errorf("tick delta must be at least 1")
	}
	if e.bucket.Len() > 0 {
		return oops.
			Code(CodeInvariantViolation).
			With("pending_fragments", e.bucket.Len()).
			With("tick", e.time).
			Errorf("engine updated with non-empty fragment bucket")
	}
	e.previousTime = e.time
	e.time += delta
	return nil
}
