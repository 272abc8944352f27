// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package simulation_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/holosim/internal/broadcast"
	"github.com/holomush/holosim/internal/geom"
	"github.com/holomush/holosim/internal/scenario"
	"github.com/holomush/holosim/internal/script"
	"github.com/holomush/holosim/internal/sim"
	"github.com/holomush/holosim/internal/store"
	"github.com/holomush/holosim/internal/turn"
)

const patrolScenario = `
format_version: "1.0"
name: integration patrol
entities:
  - location: {x: 0, y: 0, z: 0}
    orientation: {x: 1, y: 0, z: 0}
    path: "0..10 (0,0,0)->(10,0,0) @ (0,1,0)"
  - location: {x: 5, y: 5, z: 5}
    orientation: {x: 0, y: 0, z: 1}
    script: |
      function loop(entity, clock)
        entity.setAttr("count", (entity.attr("count") or 0) + 1)
        if clock.time == 3 then
          entity.emit("checkpoint", clock.time)
        end
      end
`

// buildRun assembles the full pipeline the way cmd/holosim does: scenario
// into entities, Lua scripts into loops, journal plus broadcaster behind the
// commit callback.
func buildRun(yamlSrc string) (*sim.Engine, *turn.Sequence, *store.MemoryJournal, *broadcast.Broadcaster, []scenario.BuiltEntity) {
	s, err := scenario.Parse([]byte(yamlSrc))
	Expect(err).NotTo(HaveOccurred())

	built, err := s.Build(nil)
	Expect(err).NotTo(HaveOccurred())

	engine := sim.NewEngine(nil)
	for _, be := range built {
		if be.Script != "" {
			ls, err := script.NewLoopScript(be.Entity.ID().String(), be.Script)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(ls.Close)
			be.Entity.AddLoop(ls.Loop())
		}
		engine.AddEntity(be.Entity)
	}

	journal := store.NewMemoryJournal()
	bcast := broadcast.NewBroadcaster(nil)
	commit := func(ctx context.Context, frags []sim.Fragment) error {
		batch := store.NewBatch(engine.Time(), frags)
		if err := journal.Append(ctx, batch); err != nil {
			return err
		}
		bcast.Publish(batch)
		return nil
	}

	return engine, turn.NewSequence(engine, commit), journal, bcast, built
}

func drive(seq *turn.Sequence, ticks int) []turn.Result {
	ctx := context.Background()
	var results []turn.Result
	for i := 0; i < ticks; i++ {
		result, ok, err := seq.Next(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		results = append(results, result)
	}
	return results
}

var _ = Describe("Scenario-driven run", func() {
	var (
		seq     *turn.Sequence
		journal *store.MemoryJournal
		bcast   *broadcast.Broadcaster
		built   []scenario.BuiltEntity
	)

	BeforeEach(func() {
		_, seq, journal, bcast, built = buildRun(patrolScenario)
	})

	It("interpolates the scheduled movement tick by tick", func() {
		mover := built[0].Entity

		drive(seq, 1)
		Expect(mover.Location()).To(Equal(geom.Vector{X: 1}))

		drive(seq, 4)
		Expect(mover.Location()).To(Equal(geom.Vector{X: 5}))
	})

	It("eases the orientation toward the step target", func() {
		mover := built[0].Entity

		drive(seq, 9)

		// Re-easing from the committed orientation every tick converges on
		// the target by the end of the step.
		Expect(mover.Orientation().Y).To(BeNumerically("~", 1.0, 0.01))
		Expect(mover.Orientation().X).To(BeNumerically("~", 0.0, 0.01))
	})

	It("detaches the movement on its final running tick", func() {
		mover := built[0].Entity

		drive(seq, 9)
		Expect(mover.CurrentMovement()).To(BeNil())
		Expect(mover.Location()).To(Equal(geom.Vector{X: 9}))

		// Later ticks leave the final interpolated position untouched.
		drive(seq, 3)
		Expect(mover.Location()).To(Equal(geom.Vector{X: 9}))
	})

	It("runs scripted loops every tick", func() {
		drive(seq, 10)

		count, ok := built[1].Entity.Attribute("count")
		Expect(ok).To(BeTrue())
		Expect(count).To(Equal(10.0))
	})

	It("dispatches scripted events to triggers", func() {
		var got []any
		built[1].Entity.AddTrigger("checkpoint", func(args ...any) error {
			got = append(got, args...)
			return nil
		})

		drive(seq, 5)
		Expect(got).To(Equal([]any{3.0}))
	})

	It("journals one batch per tick and replays them in order", func() {
		drive(seq, 10)

		last, err := journal.LastTick(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(last).To(Equal(uint64(10)))

		replayed, err := journal.Replay(context.Background(), 5, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(replayed).To(HaveLen(5))
		Expect(replayed[0].Tick).To(Equal(uint64(6)))
		Expect(replayed[4].Tick).To(Equal(uint64(10)))
	})

	It("broadcasts committed fragments filtered by key pattern", func() {
		ch, unsub, err := bcast.Subscribe("entity:*:location")
		Expect(err).NotTo(HaveOccurred())
		defer unsub()

		drive(seq, 10)

		// The mover stages a location on each of its nine running ticks;
		// the counter entity's attribute fragments never match.
		Expect(ch).To(HaveLen(9))
		batch := <-ch
		Expect(batch.Tick).To(Equal(uint64(1)))
		Expect(batch.Fragments).To(HaveLen(1))
		Expect(batch.Fragments[0].Key).To(HaveSuffix(":location"))
	})

	It("reports each tick's committed fragments in the result", func() {
		results := drive(seq, 1)

		// Location and orientation from the mover, count from the script.
		Expect(results[0].Tick).To(Equal(uint64(1)))
		Expect(results[0].Fragments).To(HaveLen(3))
	})
})

var _ = Describe("Sequence termination", func() {
	It("stops at the iteration boundary after Cancel", func() {
		engine, seq, _, _, _ := buildRun(patrolScenario)

		drive(seq, 3)
		seq.Cancel()

		_, ok, err := seq.Next(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(seq.Exhausted()).To(BeTrue())
		Expect(engine.Time()).To(Equal(uint64(3)))
	})

	It("terminates with a staged error when a scripted loop fails", func() {
		const crashScenario = `
format_version: "1.0"
name: crashing loop
entities:
  - location: {x: 0, y: 0, z: 0}
    orientation: {x: 0, y: 0, z: 0}
    script: |
      function loop(entity, clock)
        if clock.time >= 2 then
          error("scripted failure")
        end
      end
`
		_, seq, journal, _, _ := buildRun(crashScenario)

		drive(seq, 1)

		_, ok, err := seq.Next(context.Background())
		Expect(ok).To(BeFalse())

		var staged *turn.StagedError
		Expect(err).To(BeAssignableToTypeOf(staged))
		staged = err.(*turn.StagedError)
		Expect(staged.Stage).To(Equal(turn.StageEntity))
		Expect(staged.Error()).To(ContainSubstring("scripted failure"))

		// The failed tick committed nothing and the sequence is done.
		last, jerr := journal.LastTick(context.Background())
		Expect(jerr).NotTo(HaveOccurred())
		Expect(last).To(Equal(uint64(1)))
		Expect(seq.Exhausted()).To(BeTrue())
	})

	It("sleeping entities skip their loops until the wake tick", func() {
		const napScenario = `
format_version: "1.0"
name: napping entity
entities:
  - location: {x: 0, y: 0, z: 0}
    orientation: {x: 0, y: 0, z: 0}
    script: |
      function loop(entity, clock)
        local awake = (entity.attr("awake") or 0) + 1
        entity.setAttr("awake", awake)
        if awake == 1 then
          entity.sleep(4)
        end
      end
`
		_, seq, _, _, built := buildRun(napScenario)

		// Awake at tick 1, gated at 2 and 3, awake again from tick 4.
		drive(seq, 5)

		awake, ok := built[0].Entity.Attribute("awake")
		Expect(ok).To(BeTrue())
		Expect(awake).To(Equal(3.0))
	})
})
