package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidingest/internal/daemon"
	"vidingest/internal/logging"
	"vidingest/internal/preflight"
	"vidingest/internal/workflow"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the queue daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, cancel := signalContext(cmd.Context())
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !skipPreflight {
				if blocking := preflight.Blocking(preflight.RunAll(runCtx, cfg)); len(blocking) > 0 {
					details := make([]string, 0, len(blocking))
					for _, result := range blocking {
						details = append(details, fmt.Sprintf("%s: %s", result.Name, result.Detail))
					}
					return fmt.Errorf("preflight failed: %s", strings.Join(details, "; "))
				}
			}

			app, err := ctx.build(runCtx)
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}

			manager := workflow.NewManager(cfg, store, app.pipeline, app.storage, app.sink, app.logger)
			d, err := daemon.New(cfg, store, app.logger, manager, app.storage)
			if err != nil {
				return err
			}
			if err := d.Start(runCtx); err != nil {
				return err
			}
			defer d.Stop()

			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					app.logger.Info("shutdown requested")
					return nil
				case <-ticker.C:
					logStatus(runCtx, app.logger, d)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start without running readiness checks")
	return cmd
}

func logStatus(ctx context.Context, logger *slog.Logger, d *daemon.Daemon) {
	status := d.Status(ctx)
	logger.Debug("daemon status",
		logging.Args(
			logging.Int("active_items", status.Workflow.ActiveItems),
			logging.Int("workers", status.Workflow.Workers),
			logging.Any("queue", status.Workflow.QueueStats),
		)...,
	)
}
