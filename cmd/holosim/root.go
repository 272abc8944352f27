// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the holosim CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holosim",
		Short: "HoloSim - a deterministic tick engine for simulation entities",
		Long: `HoloSim advances a population of autonomous simulation entities through
discrete, deterministic ticks, journaling each tick's state changes as a
batch of deferred fragments.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewValidateScenarioCmd())

	return cmd
}
