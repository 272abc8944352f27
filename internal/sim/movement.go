// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sim

import (
	"sort"

	"github.com/samber/oops"

	"github.com/holomush/holosim/internal/geom"
)

// Step is one time-boxed interpolation segment of a Movement.
type Step struct {
	StartTick   uint64
	EndTick     uint64
	From        geom.Vector
	To          geom.Vector
	Orientation geom.Orientation
}

// Movement is a bounded, ordered schedule of interpolation steps driving an
// entity's position and orientation across a tick range. A Movement is owned
// by exactly one entity; the owner detaches it the tick it reports
// completion, and a detached Movement is never reused.
type Movement struct {
	steps     []Step
	cancelled bool
}

// NewMovement builds a movement from the given steps, sorted ascending by
// StartTick. Zero steps, or a step whose EndTick is not past its StartTick,
// is a configuration error.
func NewMovement(steps []Step) (*Movement, error) {
	if len(steps) == 0 {
		return nil, oops.
			Code(CodeConfigurationError).
			Errorf("movement requires at least one step")
	}
	sorted := make([]Step, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTick < sorted[j].StartTick
	})
	for i, s := range sorted {
		if s.EndTick <= s.StartTick {
			return nil, oops.
				Code(CodeConfigurationError).
				With("step", i).
				With("start_tick", s.StartTick).
				With("end_tick", s.EndTick).
				Errorf("step end tick must be past its start tick")
		}
	}
	return &Movement{steps: sorted}, nil
}

// StartTick returns the smallest step start tick.
func (m *Movement) StartTick() uint64 {
	return m.steps[0].StartTick
}

// EndTick returns the largest step end tick.
func (m *Movement) EndTick() uint64 {
	end := m.steps[0].EndTick
	for _, s := range m.steps[1:] {
		if s.EndTick > end {
			end = s.EndTick
		}
	}
	return end
}

// Steps returns a copy of the schedule in ascending StartTick order.
func (m *Movement) Steps() []Step {
	out := make([]Step, len(m.steps))
	copy(out, m.steps)
	return out
}

// CurrentStep returns the step whose [StartTick, EndTick] range contains t.
func (m *Movement) CurrentStep(t uint64) (Step, bool) {
	for _, s := range m.steps {
		if s.StartTick <= t && t <= s.EndTick {
			return s, true
		}
	}
	return Step{}, false
}

// NextStep returns the first step starting after t.
func (m *Movement) NextStep(t uint64) (Step, bool) {
	for _, s := range m.steps {
		if s.StartTick > t {
			return s, true
		}
	}
	return Step{}, false
}

// PreviousStep returns the last step that ended before t.
func (m *Movement) PreviousStep(t uint64) (Step, bool) {
	prev := m.PreviousSteps(t)
	if len(prev) == 0 {
		return Step{}, false
	}
	return prev[len(prev)-1], true
}

// PreviousSteps returns all steps that ended before t.
func (m *Movement) PreviousSteps(t uint64) []Step {
	var out []Step
	for _, s := range m.steps {
		if s.EndTick < t {
			out = append(out, s)
		}
	}
	return out
}

// FutureSteps returns all steps starting after t.
func (m *Movement) FutureSteps(t uint64) []Step {
	var out []Step
	for _, s := range m.steps {
		if s.StartTick > t {
			out = append(out, s)
		}
	}
	return out
}

// Cancel marks the movement cancelled. Cancellation is sticky: every later
// Update fails rather than silently doing nothing.
func (m *Movement) Cancel() {
	m.cancelled = true
}

// Cancelled reports whether Cancel has been called.
func (m *Movement) Cancelled() bool {
	return m.cancelled
}

// Complete reports whether the schedule is exhausted at tick t: no future
// steps remain and the final step has reached its last running tick.
func (m *Movement) Complete(t uint64) bool {
	return t+1 >= m.EndTick()
}

// Update advances the movement one tick. It interpolates the current step at
// the start-relative fraction
//
//	f = clamp((t - step.StartTick) / (step.EndTick - step.StartTick), 0, 1)
//
// and stages the entity's position and orientation through its setters; the
// movement never mutates entity state directly. The orientation eases from
// the previous step's target (or the entity's committed orientation for the
// first step) toward the current step's target.
//
// It fails with an invalid-state error when cancelled, already completed
// (t >= EndTick), or not yet running (t < StartTick). If t falls in a gap
// between steps, nothing is staged for this tick.
//
// The returned bool reports completion; the owning entity detaches the
// movement when true.
func (m *Movement) Update(clk Clock, ent *Entity) (bool, error) {
	if m.cancelled {
		return false, oops.
			Code(CodeInvalidState).
			Errorf("movement has been cancelled")
	}
	t := clk.Time()
	if t >= m.EndTick() {
		return false, oops.
			Code(CodeInvalidState).
			With("tick", t).
			With("end_tick", m.EndTick()).
			Errorf("movement has already completed")
	}
	if t < m.StartTick() {
		return false, oops.
			Code(CodeInvalidState).
			With("tick", t).
			With("start_tick", m.StartTick()).
			Errorf("movement is not running yet")
	}

	if step, ok := m.CurrentStep(t); ok {
		f := clampFraction(t, step)
		ent.SetLocation(clk, step.From.Lerp(step.To, f))

		base := ent.Orientation()
		if prev, ok := m.PreviousStep(t); ok {
			base = prev.Orientation
		}
		ent.SetOrientation(clk, base.Lerp(step.Orientation, f))
	}

	return m.Complete(t), nil
}

func clampFraction(t uint64, step Step) float64 {
	f := float64(t-step.StartTick) / float64(step.EndTick-step.StartTick)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
