// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sim

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holosim/internal/geom"
)

// AttrSleepUntil is the attribute holding the tick an entity sleeps until.
// While engine time is below it, the entity's update is a no-op; the
// attribute is cleared the first tick at or past it.
const AttrSleepUntil = "sleepUntil"

// Loop is externally supplied per-tick behavior run against an entity. Loops
// mutate entity state only through the staging setters; direct mutation of
// engine or entity internals is not part of the contract.
type Loop func(ctx context.Context, ent *Entity, clk Clock) error

// Entity is one autonomous simulation participant. It owns its fragment
// bucket, trigger table, pending event queue, and at most one Movement.
// Exactly one writer (the entity itself, driven by the frame driver) touches
// that private state; cross-entity effects go through staged fragments and
// queued events.
type Entity struct {
	id          ulid.ULID
	location    geom.Vector
	orientation geom.Orientation
	attrs       map[string]float64
	loops       []Loop
	bucket      Bucket
	triggers    *TriggerTable
	events      []Event
	movement    *Movement
}

// NewEntity creates an entity with the given identity and empty state. A nil
// logger defaults to slog.Default().
func NewEntity(id ulid.ULID, log *slog.Logger) *Entity {
	return &Entity{
		id:       id,
		attrs:    make(map[string]float64),
		triggers: NewTriggerTable(log),
	}
}

// ID returns the entity's stable identity.
func (ent *Entity) ID() ulid.ULID { return ent.id }

// Place sets the committed position and orientation directly. Construction
// time only, before the entity enters a turn sequence; during a run all
// moves go through the staging setters.
func (ent *Entity) Place(v geom.Vector, o geom.Orientation) {
	ent.location = v
	ent.orientation = o
}

// InitAttribute sets a committed attribute directly. Construction time only,
// like Place.
func (ent *Entity) InitAttribute(name string, value float64) {
	ent.attrs[name] = value
}

// Location returns the committed position. Value semantics: the caller never
// observes a live alias, and staged moves stay invisible until harvest.
func (ent *Entity) Location() geom.Vector { return ent.location }

// Orientation returns the committed facing direction.
func (ent *Entity) Orientation() geom.Orientation { return ent.orientation }

// Attribute returns the committed value of a named attribute.
func (ent *Entity) Attribute(name string) (float64, bool) {
	v, ok := ent.attrs[name]
	return v, ok
}

// Attributes returns a copy of the committed attribute map.
func (ent *Entity) Attributes() map[string]float64 {
	out := make(map[string]float64, len(ent.attrs))
	for k, v := range ent.attrs {
		out[k] = v
	}
	return out
}

// SetLocation stages a move to v. The committed location changes only when
// the frame driver harvests the fragment.
func (ent *Entity) SetLocation(clk Clock, v geom.Vector) {
	ent.bucket.Add(
		NewKeyedFragment(ent.fragmentKey("location"), clk.Time(), v).
			WithApply(func() { ent.location = v }),
	)
}

// SetOrientation stages a facing change to o.
func (ent *Entity) SetOrientation(clk Clock, o geom.Orientation) {
	ent.bucket.Add(
		NewKeyedFragment(ent.fragmentKey("orientation"), clk.Time(), o).
			WithApply(func() { ent.orientation = o }),
	)
}

// SetAttribute stages a change to a named attribute.
func (ent *Entity) SetAttribute(clk Clock, name string, value float64) {
	ent.bucket.Add(
		NewKeyedFragment(ent.fragmentKey("attr:"+name), clk.Time(), value).
			WithApply(func() { ent.attrs[name] = value }),
	)
}

// Sleep stages a sleepUntil attribute. Starting the tick after harvest, the
// entity's update is a no-op until engine time reaches the given tick.
func (ent *Entity) Sleep(clk Clock, until uint64) {
	ent.SetAttribute(clk, AttrSleepUntil, float64(until))
}

func (ent *Entity) fragmentKey(field string) string {
	return "entity:" + ent.id.String() + ":" + field
}

// AddFragments stages arbitrary fragments into the entity's bucket.
func (ent *Entity) AddFragments(frags ...Fragment) {
	ent.bucket.Add(frags...)
}

// PendingFragments returns the entity's staged fragments.
func (ent *Entity) PendingFragments() []Fragment {
	return ent.bucket.Pending()
}

// ClearFragments empties the entity's bucket. Frame driver use only.
func (ent *Entity) ClearFragments() {
	ent.bucket.Clear()
}

// AddLoop registers a per-tick behavior callback. Loops run in registration
// order during the entity's update.
func (ent *Entity) AddLoop(fn Loop) {
	ent.loops = append(ent.loops, fn)
}

// AddTrigger registers a listener for the named event and returns its
// removal handle.
func (ent *Entity) AddTrigger(name string, fn Listener) Handle {
	return ent.triggers.Add(name, fn)
}

// RemoveTrigger unregisters a listener. Removal during a dispatch round only
// affects future rounds.
func (ent *Entity) RemoveTrigger(h Handle) {
	ent.triggers.Remove(h)
}

// RunTrigger synchronously dispatches the named event to the entity's
// listeners. Listener errors are isolated and never propagate.
func (ent *Entity) RunTrigger(name string, args ...any) {
	ent.triggers.Run(name, args...)
}

// QueueEvent stages a named event for dispatch during event drain.
func (ent *Entity) QueueEvent(name string, args ...any) {
	ent.events = append(ent.events, Event{Name: name, Args: args})
}

// PendingEvents returns a copy of the queued events.
func (ent *Entity) PendingEvents() []Event {
	out := make([]Event, len(ent.events))
	copy(out, ent.events)
	return out
}

// ClearEvents empties the event queue. Frame driver use only.
func (ent *Entity) ClearEvents() {
	ent.events = ent.events[:0]
}

// SetMovement attaches a movement schedule. At most one Movement is owned at
// a time; attaching while one is active replaces it.
func (ent *Entity) SetMovement(m *Movement) {
	ent.movement = m
}

// CurrentMovement returns the attached movement, or nil.
func (ent *Entity) CurrentMovement() *Movement {
	return ent.movement
}

// Update runs the entity's per-tick state machine: sleep gate, movement
// advance, loop callbacks, event drain. Precondition: the fragment bucket and
// event queue were drained by the frame driver since the previous tick.
//
// Loop and movement errors propagate raw; the frame driver aggregates them.
// Trigger-listener errors never escape the drain.
func (ent *Entity) Update(ctx context.Context, clk Clock) error {
	if n := ent.bucket.Len(); n > 0 {
		return oops.
			Code(CodeInvariantViolation).
			With("entity_id", ent.id.String()).
			With("pending_fragments", n).
			Errorf("entity updated with non-empty fragment bucket")
	}
	if n := len(ent.events); n > 0 {
		return oops.
			Code(CodeInvariantViolation).
			With("entity_id", ent.id.String()).
			With("pending_events", n).
			Errorf("entity updated with non-empty event queue")
	}

	if until, ok := ent.attrs[AttrSleepUntil]; ok {
		if float64(clk.Time()) < until {
			return nil
		}
		delete(ent.attrs, AttrSleepUntil)
	}

	if mv := ent.movement; mv != nil && clk.Time() >= mv.StartTick() {
		done, err := mv.Update(clk, ent)
		if err != nil {
			return err
		}
		if done {
			ent.movement = nil
		}
	}

	for _, loop := range ent.loops {
		if err := loop(ctx, ent, clk); err != nil {
			return err
		}
	}

	// Drain the events the loops queued this tick. The queue itself is
	// cleared by the frame driver after harvest, not here.
	drained := ent.PendingEvents()
	for _, ev := range drained {
		ent.triggers.Run(ev.Name, ev.Args...)
	}

	return nil
}
