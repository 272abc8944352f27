// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package turn drives the simulation: a cancellable, strictly sequential
// tick generator that orchestrates engine update, entity updates, fragment
// harvest, and the external commit callback, one tick at a time.
package turn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/holosim/internal/sim"
)

// Stage identifies the pipeline stage a tick failure is attributed to.
type Stage string

const (
	// StageEngine covers the engine's own tick advance.
	StageEngine Stage = "engine"
	// StageEntity covers the per-entity update pass.
	StageEntity Stage = "entity"
	// StageFrame covers the external commit callback.
	StageFrame Stage = "frame"
)

// StagedError aggregates one or more underlying causes attributed to a
// pipeline stage. Causes are carried un-flattened and reachable through
// errors.Is/As via Unwrap.
type StagedError struct {
	Stage  Stage
	Causes []error
}

func (e *StagedError) Error() string {
	msgs := make([]string, len(e.Causes))
	for i, cause := range e.Causes {
		msgs[i] = cause.Error()
	}
	return fmt.Sprintf("turn stage %q failed: %s", e.Stage, strings.Join(msgs, "; "))
}

// Unwrap exposes the underlying causes.
func (e *StagedError) Unwrap() []error {
	return e.Causes
}

func stageFailed(stage Stage, causes ...error) *StagedError {
	return &StagedError{Stage: stage, Causes: causes}
}

// Result is what one successful tick produces: the new tick number and the
// fragment batch that was committed for it.
type Result struct {
	Tick      uint64
	Fragments []sim.Fragment
}

// CommitFunc receives each tick's harvested fragments. It owns persistence,
// broadcast, and UI concerns. By the time it runs, the buckets are already
// cleared: delivery is at-most-once, and callers needing replay-on-failure
// must buffer outside the core.
type CommitFunc func(ctx context.Context, fragments []sim.Fragment) error

// Sequence is the frame driver. Each call to Next produces at most one tick;
// two ticks never overlap because Next runs every stage to completion before
// returning. Cancellation is cooperative and sampled only at the start of an
// iteration; a mid-tick cancel never unwinds the tick in progress.
type Sequence struct {
	engine    *sim.Engine
	commit    CommitFunc
	log       *slog.Logger
	tracer    trace.Tracer
	cancelled atomic.Bool
	exhausted bool
}

// Option configures a Sequence.
type Option func(*Sequence)

// WithLogger sets the sequence logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sequence) { s.log = log }
}

// NewSequence creates a frame driver over the given engine. The commit
// callback is required; pass a no-op if the caller has no committer.
func NewSequence(engine *sim.Engine, commit CommitFunc, opts ...Option) *Sequence {
	s := &Sequence{
		engine: engine,
		commit: commit,
		log:    slog.Default(),
		tracer: otel.Tracer("holosim/turn"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cancel requests termination. The request takes effect at the next
// iteration boundary; an in-flight tick completes normally.
func (s *Sequence) Cancel() {
	s.cancelled.Store(true)
}

// Exhausted reports whether the sequence terminated, either by cancellation
// or by a failed tick.
func (s *Sequence) Exhausted() bool {
	return s.exhausted
}

// Next runs one tick. It returns ok=false with a nil error once the sequence
// is exhausted; a non-nil error is always a *StagedError, terminates the
// sequence, and produces no Result for that iteration.
func (s *Sequence) Next(ctx context.Context) (Result, bool, error) {
	if s.exhausted {
		return Result{}, false, nil
	}
	if s.cancelled.Load() || ctx.Err() != nil {
		s.exhausted = true
		return Result{}, false, nil
	}

	ctx, span := s.tracer.Start(ctx, "turn.tick")
	defer span.End()
	started := time.Now()

	result, err := s.runTick(ctx)
	if err != nil {
		s.exhausted = true
		recordTick(err.Stage, time.Since(started))
		s.log.Error("tick failed",
			"stage", string(err.Stage),
			"tick", s.engine.Time(),
			"error", err,
		)
		return Result{}, false, err
	}

	span.SetAttributes(
		attribute.Int64("tick", int64(result.Tick)),
		attribute.Int("fragments", len(result.Fragments)),
	)
	recordTick("", time.Since(started))
	recordHarvest(len(result.Fragments))
	return result, true, nil
}

func (s *Sequence) runTick(ctx context.Context) (Result, *StagedError) {
	if err := s.engine.Update(ctx); err != nil {
		return Result{}, stageFailed(StageEngine, err)
	}

	entities := s.engine.Entities()
	var entityErrs []error
	for _, ent := range entities {
		if err := ent.Update(ctx, s.engine); err != nil {
			entityErrs = append(entityErrs, err)
		}
	}
	if len(entityErrs) > 0 {
		return Result{}, stageFailed(StageEntity, entityErrs...)
	}

	// Harvest. Applying each fragment here is what makes the staged values
	// the entities' visible state before the committer sees them.
	batch := s.engine.PendingFragments()
	for _, ent := range entities {
		batch = append(batch, ent.PendingFragments()...)
	}
	for _, frag := range batch {
		frag.Apply()
	}

	// Clear unconditionally before the commit callback runs, so fragments
	// are delivered at most once no matter what the committer does.
	s.engine.ClearFragments()
	for _, ent := range entities {
		ent.ClearFragments()
		ent.ClearEvents()
	}

	if err := s.commit(ctx, batch); err != nil {
		return Result{}, stageFailed(StageFrame, err)
	}

	return Result{Tick: s.engine.Time(), Fragments: batch}, nil
}
