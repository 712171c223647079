package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FadiShak3r/rag-system/internal/app"
	"github.com/FadiShak3r/rag-system/internal/config"
	"github.com/FadiShak3r/rag-system/internal/logger"
)

func main() {
	handler := logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(slog.New(handler))

	rootCmd := &cobra.Command{
		Use:   "ragsys",
		Short: "Index relational rows into a vector store and answer questions over them",
	}

	rootCmd.AddCommand(createIndexCommand())
	rootCmd.AddCommand(createSyncCommand())
	rootCmd.AddCommand(createServeCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads config, bootstraps dependencies and wires the application.
// The returned cleanup must run before exit.
func setup(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(cfg, deps)
	if err != nil {
		deps.Close()
		return nil, nil, err
	}
	return a, deps.Close, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func createIndexCommand() *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run one pass of the indexing pipeline and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, cleanup, err := setup(ctx)
			if err != nil {
				slog.Error("failed to start", "error", err)
				return err
			}
			defer cleanup()

			if _, err := a.Orchestrator.RunOnce(ctx, clear); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "Drop the vector collection before indexing")
	cmd.SilenceUsage = true

	return cmd
}

func createSyncCommand() *cobra.Command {
	var runOnce bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the daily full-reindex scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, cleanup, err := setup(ctx)
			if err != nil {
				slog.Error("failed to start", "error", err)
				return err
			}
			defer cleanup()

			if runOnce {
				_, err := a.Orchestrator.RunOnce(ctx, true)
				return err
			}

			if err := a.Scheduler.Run(ctx); err != context.Canceled {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&runOnce, "run-once", false, "Run a single full reindex instead of scheduling")
	cmd.SilenceUsage = true

	return cmd
}

func createServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the daily sync scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, cleanup, err := setup(ctx)
			if err != nil {
				slog.Error("failed to start", "error", err)
				return err
			}
			defer cleanup()

			go func() {
				if err := a.Scheduler.Run(ctx); err != nil && err != context.Canceled {
					slog.Error("scheduler stopped", "error", err)
				}
			}()

			return a.Run(ctx)
		},
	}

	cmd.SilenceUsage = true

	return cmd
}
