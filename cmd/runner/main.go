// Command runner is a deterministic boundary: it wires up the runtime root,
// queue, journal, and logger, then hands control to internal/runner for
// exactly the work a single subcommand invocation asks for.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/NicolasGomez1117/regime-admission-control/internal/config"
	"github.com/NicolasGomez1117/regime-admission-control/internal/journal"
	"github.com/NicolasGomez1117/regime-admission-control/internal/runner"
)

// Exit codes (spec §6): 0 for a clean pass (including zero work done), 1 for
// a fatal environmental failure (e.g. the queue file itself can't be read),
// 2 for invocation errors.
const (
	exitSuccess           = 0
	exitFatalEnvironment  = 1
	exitInvalidInvocation = 2
)

var version = "dev"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitInvalidInvocation)
	}
}

func newRootCmd() *cobra.Command {
	var runtimeRoot string

	root := &cobra.Command{
		Use:   "runner",
		Short: "Deterministic task queue runner",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Help()
			os.Exit(exitInvalidInvocation)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&runtimeRoot, "runtime-root", "", "override the runtime root directory (default: $AAH_RUNNER_RUNTIME_ROOT or ./.aah-runner)")

	root.AddCommand(newRunCmd(&runtimeRoot))
	root.AddCommand(newLoopCmd(&runtimeRoot))
	root.AddCommand(newVersionCmd())
	return root
}

func newRunCmd(runtimeRoot *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process one batch of queued tasks and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, log, err := buildRunner(*runtimeRoot)
			if err != nil {
				log.Error().Err(err).Msg("failed to initialize runner")
				os.Exit(exitFatalEnvironment)
			}
			defer r.Journal.Close()

			n, err := r.RunOnce(cmd.Context())
			if err != nil {
				log.Error().Err(err).Msg("run pass failed")
				os.Exit(exitFatalEnvironment)
			}
			log.Info().Int("processed", n).Msg("run pass complete")
			os.Exit(exitSuccess)
			return nil
		},
	}
}

func newLoopCmd(runtimeRoot *string) *cobra.Command {
	var intervalSeconds float64
	cmd := &cobra.Command{
		Use:   "loop",
		Short: "Run passes forever, sleeping interval seconds between each",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, log, err := buildRunner(*runtimeRoot)
			if err != nil {
				log.Error().Err(err).Msg("failed to initialize runner")
				os.Exit(exitFatalEnvironment)
			}
			defer r.Journal.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			interval := time.Duration(intervalSeconds * float64(time.Second))
			for {
				select {
				case <-ctx.Done():
					log.Info().Msg("loop received shutdown signal, exiting cleanly")
					os.Exit(exitSuccess)
				default:
				}

				// The signal context is only checked between passes; the
				// pass itself, and any harness subprocess it starts, is not
				// cancelled by it.
				n, err := r.RunOnce(context.WithoutCancel(ctx))
				if err != nil {
					log.Error().Err(err).Msg("run pass failed")
					os.Exit(exitFatalEnvironment)
				}
				if n > 0 {
					log.Info().Int("processed", n).Msg("run pass complete")
				}

				select {
				case <-ctx.Done():
					log.Info().Msg("loop received shutdown signal, exiting cleanly")
					os.Exit(exitSuccess)
				case <-time.After(interval):
				}
			}
		},
	}
	cmd.Flags().Float64Var(&intervalSeconds, "interval", 2.0, "seconds to sleep between passes")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the runner version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func buildRunner(runtimeRootFlag string) (*runner.Runner, zerolog.Logger, error) {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	runtimeRoot := runtimeRootFlag
	if runtimeRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, log, err
		}
		runtimeRoot = config.RuntimeRoot(filepath.Join(cwd, ".aah-runner"))
	}

	queuePath := filepath.Join(runtimeRoot, "queue", "tasks.jsonl")
	configPath := filepath.Join(runtimeRoot, "config.json")
	journalPath := filepath.Join(runtimeRoot, "logs", "events.jsonl")

	runID := journal.NewRunID()
	log = log.With().Str("run_id", runID).Logger()

	j, err := journal.NewWriter(journalPath, runID, log)
	if err != nil {
		return nil, log, err
	}

	r := runner.New(runtimeRoot, queuePath, configPath, journalPath, j, log)
	return r, log, nil
}
