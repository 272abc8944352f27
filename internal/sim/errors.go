// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sim

// Error codes used across the simulation core. Checked by callers via
// oops.AsOops(err).Code().
const (
	// CodeInvariantViolation marks driver misuse: an Engine or Entity was
	// updated while its fragment bucket or event queue still held entries
	// from the previous tick.
	CodeInvariantViolation = "INVARIANT_VIOLATION"

	// CodeConfigurationError marks invalid construction input, such as a
	// Movement built from zero steps.
	CodeConfigurationError = "CONFIGURATION_ERROR"

	// CodeInvalidState marks an operation against a Movement that has
	// already completed, been cancelled, or has not started yet.
	CodeInvalidState = "INVALID_STATE"
)
