// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sim

import "context"

// Clock is the narrow tick-reading capability handed to behavior code.
// Loops and Movements depend on Clock, never on the concrete Engine.
type Clock interface {
	// Time returns the current tick.
	Time() uint64
	// PreviousTime returns the tick before the most recent engine update.
	PreviousTime() uint64
}

// Updatable is anything the frame driver advances once per tick.
type Updatable interface {
	Update(ctx context.Context, clk Clock) error
}
