// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package geom provides the immutable 3-component value types used by the
// simulation core for positions and orientations.
package geom

import "fmt"

// Vector is an immutable 3D position or displacement. All operations return
// new values; a Vector is never mutated in place.
type Vector struct {
	X, Y, Z float64
}

// Add returns the component-wise sum v + o.
func (v Vector) Add(o Vector) Vector {
	return Vector{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns the component-wise difference v - o.
func (v Vector) Sub(o Vector) Vector {
	return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v with every component multiplied by s.
func (v Vector) Scale(s float64) Vector {
	return Vector{v.X * s, v.Y * s, v.Z * s}
}

// Lerp returns the linear interpolation between v and o at fraction t.
// t is not clamped; callers clamp before interpolating.
func (v Vector) Lerp(o Vector, t float64) Vector {
	return v.Add(o.Sub(v).Scale(t))
}

func (v Vector) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

// Orientation is an immutable 3D facing direction. Component-wise equality
// applies; normalization is the caller's concern.
type Orientation struct {
	X, Y, Z float64
}

// Dot returns the dot product of o and p.
func (o Orientation) Dot(p Orientation) float64 {
	return o.X*p.X + o.Y*p.Y + o.Z*p.Z
}

// Lerp returns the linear interpolation between o and p at fraction t.
func (o Orientation) Lerp(p Orientation, t float64) Orientation {
	return Orientation{
		X: o.X + (p.X-o.X)*t,
		Y: o.Y + (p.Y-o.Y)*t,
		Z: o.Z + (p.Z-o.Z)*t,
	}
}

func (o Orientation) String() string {
	return fmt.Sprintf("(%g, %g, %g)", o.X, o.Y, o.Z)
}
