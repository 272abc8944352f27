// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package scenario loads declarative simulation setup files: the entities a
// run starts with, their attributes, movement schedules, and behavior
// scripts.
package scenario

import (
	"log/slog"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/holomush/holosim/internal/geom"
	"github.com/holomush/holosim/internal/sim"
)

// SupportedFormat is the semver constraint a scenario's format_version must
// satisfy.
const SupportedFormat = "^1.0"

// Scenario describes one simulation run's starting population.
type Scenario struct {
	FormatVersion string       `yaml:"format_version" json:"format_version" jsonschema:"required,description=Scenario format version (semver)"`
	Name          string       `yaml:"name" json:"name" jsonschema:"required,description=Human-readable scenario name"`
	Entities      []EntitySpec `yaml:"entities" json:"entities" jsonschema:"description=Entities present at tick zero"`
}

// EntitySpec describes one entity at tick zero.
type EntitySpec struct {
	// ID is the entity's ULID. Generated when empty.
	ID          string             `yaml:"id,omitempty" json:"id,omitempty" jsonschema:"description=Entity ULID (generated when omitted)"`
	Location    Coord              `yaml:"location" json:"location"`
	Orientation Coord              `yaml:"orientation" json:"orientation"`
	Attributes  map[string]float64 `yaml:"attributes,omitempty" json:"attributes,omitempty"`

	// Path is a compact movement schedule expression, for example
	// "0..10 (0,0,0)->(10,0,0) @ (0,1,0); 10..30 (10,0,0)->(10,0,20)".
	// Mutually exclusive with Steps.
	Path string `yaml:"path,omitempty" json:"path,omitempty" jsonschema:"description=Movement schedule path expression"`

	// Steps is the explicit form of a movement schedule.
	Steps []StepSpec `yaml:"steps,omitempty" json:"steps,omitempty"`

	// Script is an inline Lua chunk defining the entity's per-tick loop.
	Script string `yaml:"script,omitempty" json:"script,omitempty" jsonschema:"description=Inline Lua behavior loop"`
}

// StepSpec is the explicit YAML form of one movement step.
type StepSpec struct {
	Start       uint64 `yaml:"start" json:"start" jsonschema:"required"`
	End         uint64 `yaml:"end" json:"end" jsonschema:"required"`
	From        Coord  `yaml:"from" json:"from"`
	To          Coord  `yaml:"to" json:"to"`
	Orientation Coord  `yaml:"orientation,omitempty" json:"orientation,omitempty"`
}

// Coord is a YAML/JSON-friendly 3-component tuple.
type Coord struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	Z float64 `yaml:"z" json:"z"`
}

// Vector converts the coordinate to a geom.Vector.
func (c Coord) Vector() geom.Vector {
	return geom.Vector{X: c.X, Y: c.Y, Z: c.Z}
}

// Orientation converts the coordinate to a geom.Orientation.
func (c Coord) Orientation() geom.Orientation {
	return geom.Orientation{X: c.X, Y: c.Y, Z: c.Z}
}

// Load reads, schema-validates, and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, oops.Code("SCENARIO_READ_FAILED").With("path", path).Wrap(err)
	}
	return Parse(data)
}

// Parse schema-validates and decodes scenario YAML.
func Parse(data []byte) (*Scenario, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, oops.Code("SCENARIO_PARSE_FAILED").Wrap(err)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	version, err := semver.NewVersion(s.FormatVersion)
	if err != nil {
		return oops.Code("SCENARIO_BAD_VERSION").
			With("format_version", s.FormatVersion).
			Wrap(err)
	}
	constraint, err := semver.NewConstraint(SupportedFormat)
	if err != nil {
		return oops.Code("SCENARIO_BAD_VERSION").Wrap(err)
	}
	if !constraint.Check(version) {
		return oops.Code("SCENARIO_UNSUPPORTED_VERSION").
			With("format_version", s.FormatVersion).
			With("supported", SupportedFormat).
			Errorf("scenario format %s does not satisfy %s", s.FormatVersion, SupportedFormat)
	}

	for i, spec := range s.Entities {
		if spec.Path != "" && len(spec.Steps) > 0 {
			return oops.Code("SCENARIO_INVALID").
				With("entity", i).
				Errorf("path and steps are mutually exclusive")
		}
	}
	return nil
}

// BuiltEntity pairs a constructed entity with its behavior script, if any.
// Attaching the script is the caller's concern, which keeps this package
// free of the Lua runtime.
type BuiltEntity struct {
	Entity *sim.Entity
	Script string
}

// Build constructs the scenario's entities with their initial placement,
// attributes, and movement schedules.
func (s *Scenario) Build(log *slog.Logger) ([]BuiltEntity, error) {
	built := make([]BuiltEntity, 0, len(s.Entities))
	for i, spec := range s.Entities {
		id := sim.NewULID()
		if spec.ID != "" {
			parsed, err := ulid.Parse(spec.ID)
			if err != nil {
				return nil, oops.Code("SCENARIO_INVALID").
					With("entity", i).
					With("id", spec.ID).
					Wrap(err)
			}
			id = parsed
		}

		ent := sim.NewEntity(id, log)
		ent.Place(spec.Location.Vector(), spec.Orientation.Orientation())
		for name, value := range spec.Attributes {
			ent.InitAttribute(name, value)
		}

		steps, err := spec.movementSteps()
		if err != nil {
			return nil, oops.Code("SCENARIO_INVALID").With("entity", i).Wrap(err)
		}
		if len(steps) > 0 {
			mv, err := sim.NewMovement(steps)
			if err != nil {
				return nil, oops.Code("SCENARIO_INVALID").With("entity", i).Wrap(err)
			}
			ent.SetMovement(mv)
		}

		built = append(built, BuiltEntity{Entity: ent, Script: spec.Script})
	}
	return built, nil
}

func (spec EntitySpec) movementSteps() ([]sim.Step, error) {
	if spec.Path != "" {
		return ParsePath(spec.Path)
	}
	if len(spec.Steps) == 0 {
		return nil, nil
	}
	steps := make([]sim.Step, len(spec.Steps))
	for i, st := range spec.Steps {
		steps[i] = sim.Step{
			StartTick:   st.Start,
			EndTick:     st.End,
			From:        st.From.Vector(),
			To:          st.To.Vector(),
			Orientation: st.Orientation.Orientation(),
		}
	}
	return steps, nil
}
