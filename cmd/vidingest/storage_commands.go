package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vidingest/internal/services/youtube"
)

func newStorageCommand(ctx *commandContext) *cobra.Command {
	storageCmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect and clean temporary artifacts",
	}
	storageCmd.AddCommand(newStorageStatsCommand(ctx))
	storageCmd.AddCommand(newStorageSweepCommand(ctx))
	storageCmd.AddCommand(newStoragePurgeCommand(ctx))
	return storageCmd
}

func newStorageStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show artifact usage under the storage root",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, _, err := ctx.storageManager()
			if err != nil {
				return err
			}
			stats, err := manager.Stats()
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, stats)
			}
			oldest := "-"
			if stats.OldestArtifactAge > 0 {
				oldest = stats.OldestArtifactAge.Round(time.Minute).String()
			}
			rows := [][]string{
				{"Root", stats.Root},
				{"Videos", fmt.Sprint(stats.DirectoryCount)},
				{"Files", fmt.Sprint(stats.TotalFiles)},
				{"Used", humanize.Bytes(uint64(stats.TotalBytes))},
				{"Free", humanize.Bytes(stats.AvailableBytes)},
				{"Oldest artifact", oldest},
			}
			writeTable(cmd.OutOrStdout(), []string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
			return nil
		},
	}
}

func newStorageSweepCommand(ctx *commandContext) *cobra.Command {
	var hours float64

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete artifacts older than the configured age",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, _, err := ctx.storageManager()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than-hours") {
				hours = ctx.config.Storage.MaxAgeHours
			}
			deleted, err := manager.CleanupOlderThan(hours)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d file(s) older than %g hour(s)\n", deleted, hours)
			return nil
		},
	}
	cmd.Flags().Float64Var(&hours, "older-than-hours", 0, "Age threshold in hours (defaults to storage.max_age_hours)")
	return cmd
}

func newStoragePurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <video-url-or-id>",
		Short: "Delete every artifact of one video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := youtube.ParseVideoID(args[0])
			if err != nil {
				return err
			}
			manager, _, err := ctx.storageManager()
			if err != nil {
				return err
			}
			removed, err := manager.DeleteArtifacts(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d file(s) for %s\n", removed, id)
			return nil
		},
	}
}
