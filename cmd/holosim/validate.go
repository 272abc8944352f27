// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holosim/internal/scenario"
	"github.com/holomush/holosim/pkg/errutil"
)

// NewValidateScenarioCmd creates the validate-scenario subcommand.
func NewValidateScenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-scenario [files...]",
		Short: "Validate scenario files without running them",
		Long: `Validate scenario files against the schema and format constraints.
Does NOT start a simulation or require a database connection.
Exits with code 0 on success, non-zero on failure.

Useful in CI pipelines to catch scenario errors early:
  holosim validate-scenario scenarios/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runValidateScenarios(args)
		},
	}
}

func runValidateScenarios(paths []string) error {
	failed := 0
	for _, path := range paths {
		if _, err := scenario.Load(path); err != nil {
			errutil.LogError(slog.With("path", path), "scenario validation failed", err)
			failed++
			continue
		}
		slog.Info("scenario valid", "path", path)
	}

	if failed > 0 {
		return oops.Code("SCENARIO_INVALID").
			Errorf("validation failed: %d of %d scenario files invalid", failed, len(paths))
	}
	return nil
}
