// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holosim/internal/broadcast"
	"github.com/holomush/holosim/internal/config"
	"github.com/holomush/holosim/internal/logging"
	"github.com/holomush/holosim/internal/observability"
	"github.com/holomush/holosim/internal/scenario"
	"github.com/holomush/holosim/internal/script"
	"github.com/holomush/holosim/internal/sim"
	"github.com/holomush/holosim/internal/store"
	"github.com/holomush/holosim/internal/turn"
)

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation scenario",
		Long: `Load a scenario, build its entities, and drive the tick sequence until
the tick limit is reached or the process is signalled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runSimulation(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("scenario", "", "scenario file path")
	cmd.Flags().Duration("tick_interval", config.Default().TickInterval, "wall-clock pacing between ticks")
	cmd.Flags().Int("ticks", 0, "tick limit (0 = run until signalled)")
	cmd.Flags().String("journal", config.Default().Journal, "batch journal backend (memory or postgres)")
	cmd.Flags().String("database_url", "", "PostgreSQL DSN for the postgres journal")
	cmd.Flags().String("metrics_addr", config.Default().MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log_format", config.Default().LogFormat, "log format (json or text)")

	return cmd
}

func runSimulation(parent context.Context, cfg config.Config) error {
	logging.SetDefault("holosim", version, cfg.LogFormat)
	log := slog.Default()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	journal, closeJournal, err := openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeJournal()

	var obs *observability.Server
	if cfg.MetricsAddr != "" {
		obs = observability.NewServer(cfg.MetricsAddr, nil)
		if _, err := obs.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = obs.Stop(shutdownCtx) //nolint:errcheck // best-effort shutdown on exit
		}()
	}

	sc, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return err
	}
	built, err := sc.Build(log)
	if err != nil {
		return err
	}

	engine := sim.NewEngine(log)
	for _, b := range built {
		if b.Script != "" {
			ls, err := script.NewLoopScript(b.Entity.ID().String(), b.Script)
			if err != nil {
				return err
			}
			defer ls.Close()
			b.Entity.AddLoop(ls.Loop())
		}
		engine.AddEntity(b.Entity)
	}
	log.Info("scenario loaded",
		"scenario", sc.Name,
		"entities", engine.Len(),
		"journal", cfg.Journal,
	)

	broadcaster := broadcast.NewBroadcaster(log)
	commit := func(ctx context.Context, fragments []sim.Fragment) error {
		batch := store.NewBatch(engine.Time(), fragments)
		if err := journal.Append(ctx, batch); err != nil {
			return err
		}
		broadcaster.Publish(batch)
		return nil
	}

	seq := turn.NewSequence(engine, commit, turn.WithLogger(log))
	return driveSequence(ctx, seq, cfg, log)
}

// driveSequence paces the frame driver until the tick limit, exhaustion, or
// cancellation.
func driveSequence(ctx context.Context, seq *turn.Sequence, cfg config.Config, log *slog.Logger) error {
	go func() {
		<-ctx.Done()
		seq.Cancel()
	}()

	ticks := 0
	for {
		result, ok, err := seq.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			log.Info("sequence exhausted", "ticks", ticks)
			return nil
		}

		log.Debug("tick committed",
			"tick", result.Tick,
			"fragments", len(result.Fragments),
		)

		ticks++
		if cfg.Ticks > 0 && ticks >= cfg.Ticks {
			log.Info("tick limit reached", "ticks", ticks)
			return nil
		}

		if cfg.TickInterval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(cfg.TickInterval):
			}
		}
	}
}

func openJournal(ctx context.Context, cfg config.Config) (store.Journal, func(), error) {
	switch cfg.Journal {
	case config.JournalPostgres:
		pool, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		j := store.NewPostgresJournal(pool)
		return j, j.Close, nil
	case config.JournalMemory:
		return store.NewMemoryJournal(), func() {}, nil
	default:
		return nil, nil, oops.Code("CONFIG_INVALID").
			With("journal", cfg.Journal).
			Errorf("unknown journal backend")
	}
}
