// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sim

// Event is a named reactive notification queued against an entity during a
// tick and dispatched to that entity's trigger listeners during event drain.
type Event struct {
	Name string
	Args []any
}
