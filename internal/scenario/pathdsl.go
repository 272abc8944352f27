// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package scenario

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/samber/oops"

	"github.com/holomush/holosim/internal/geom"
	"github.com/holomush/holosim/internal/sim"
)

// The path expression is the compact form of a movement schedule:
//
//	0..10 (0,0,0)->(10,0,0) @ (0,1,0); 10..30 (10,0,0)->(10,0,20)
//
// Each segment is a tick range, a from->to position pair, and an optional
// target orientation after "@". Segments are separated by semicolons.

type pathSchedule struct {
	Segments []*pathSegment `parser:"@@ ( ';' @@ )* ';'?"`
}

type pathSegment struct {
	Start  uint64      `parser:"@Number"`
	End    uint64      `parser:"Range @Number"`
	From   *pathTriple `parser:"@@"`
	To     *pathTriple `parser:"Arrow @@"`
	Facing *pathTriple `parser:"( At @@ )?"`
}

type pathTriple struct {
	X float64 `parser:"'(' @Number"`
	Y float64 `parser:"',' @Number"`
	Z float64 `parser:"',' @Number ')'"`
}

var pathLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Range", Pattern: `\.\.`},
	{Name: "Arrow", Pattern: `->`},
	{Name: "At", Pattern: `@`},
	{Name: "Number", Pattern: `-?\d+(\.\d+)?`},
	{Name: "Punct", Pattern: `[(),;]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var pathParser = participle.MustBuild[pathSchedule](
	participle.Lexer(pathLexer),
	participle.Elide("Whitespace"),
)

// ParsePath parses a path expression into movement steps. The steps are not
// yet validated; sim.NewMovement applies the schedule invariants.
func ParsePath(expr string) ([]sim.Step, error) {
	schedule, err := pathParser.ParseString("", expr)
	if err != nil {
		return nil, oops.Code("SCENARIO_BAD_PATH").With("path", expr).Wrap(err)
	}

	steps := make([]sim.Step, len(schedule.Segments))
	for i, seg := range schedule.Segments {
		step := sim.Step{
			StartTick: seg.Start,
			EndTick:   seg.End,
			From:      seg.From.vector(),
			To:        seg.To.vector(),
		}
		if seg.Facing != nil {
			step.Orientation = seg.Facing.orientation()
		}
		steps[i] = step
	}
	return steps, nil
}

func (t *pathTriple) vector() geom.Vector {
	return geom.Vector{X: t.X, Y: t.Y, Z: t.Z}
}

func (t *pathTriple) orientation() geom.Orientation {
	return geom.Orientation{X: t.X, Y: t.Y, Z: t.Z}
}
