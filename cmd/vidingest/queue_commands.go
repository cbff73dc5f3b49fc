package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidingest/internal/queue"
	"vidingest/internal/services/youtube"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var filePath string
	var priority int
	var userID string
	var allowDuplicate bool

	cmd := &cobra.Command{
		Use:   "add [video-url-or-id]",
		Short: "Queue a video or local file for processing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			req := queue.EnqueueRequest{
				UploadedFilePath: filePath,
				Priority:         priority,
				UserID:           userID,
			}
			if len(args) == 1 {
				id, err := youtube.ParseVideoID(args[0])
				if err != nil {
					return err
				}
				req.ExternalVideoID = id
				if !allowDuplicate {
					existing, err := store.FindActiveByVideo(cmd.Context(), id)
					if err != nil {
						return err
					}
					if existing != nil {
						return fmt.Errorf("video %s is already queued as item %d (use --allow-duplicate to queue it again)", id, existing.ID)
					}
				}
			}
			item, err := store.Enqueue(cmd.Context(), req)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, itemView(item))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued item %d (%s)\n", item.ID, item.Source())
			return nil
		},
	}
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Queue a local video file")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Higher priorities are processed first")
	cmd.Flags().StringVar(&userID, "user", "", "Requesting user identifier")
	cmd.Flags().BoolVar(&allowDuplicate, "allow-duplicate", false, "Queue even if the video is already pending or in progress")
	return cmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			health, err := store.Health(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, health)
			}
			if health.Total == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			rows := [][]string{
				{"Pending", strconv.Itoa(health.Pending)},
				{"Processing", strconv.Itoa(health.Processing)},
				{"Review", strconv.Itoa(health.Review)},
				{"Failed", strconv.Itoa(health.Failed)},
				{"Completed", strconv.Itoa(health.Completed)},
				{"Total", strconv.Itoa(health.Total)},
			}
			writeTable(cmd.OutOrStdout(), []string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			return nil
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]queue.Status, 0, len(listStatuses))
			for _, raw := range listStatuses {
				status, ok := queue.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				statuses = append(statuses, status)
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			items, err := store.List(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				views := make([]queueItemView, 0, len(items))
				for _, item := range items {
					views = append(views, itemView(item))
				}
				return writeJSON(cmd, views)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			writeTable(cmd.OutOrStdout(),
				[]string{"ID", "Source", "Title", "Status", "Progress", "Created"},
				buildQueueListRows(items),
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by queue status (repeatable)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one queue item in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			item, err := store.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			if item == nil {
				return fmt.Errorf("item %d not found", id)
			}
			view := itemView(item)
			if ctx.jsonOutput() {
				return writeJSON(cmd, view)
			}
			rows := [][]string{
				{"ID", strconv.FormatInt(view.ID, 10)},
				{"Source", view.Source},
				{"Title", view.Title},
				{"Status", view.Status},
				{"Stage", view.Stage},
				{"Progress", fmt.Sprintf("%.0f%%", view.Percent)},
				{"Message", view.Message},
				{"Model", view.ModelTier},
				{"Audio", view.AudioPath},
				{"Error", view.Error},
				{"Review", view.ReviewReason},
				{"Correlation", view.CorrelationID},
				{"Created", view.CreatedAt},
				{"Updated", view.UpdatedAt},
			}
			writeTable(cmd.OutOrStdout(), []string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
			return nil
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Retry failed items (all failed items when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			count, err := store.RetryFailed(cmd.Context(), ids...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Retried %d item(s)\n", count)
			return nil
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id...>",
		Short: "Remove items from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			count, err := store.Remove(cmd.Context(), ids...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d item(s)\n", count)
			return nil
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove completed items, or every item with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted == clearAll {
				return errors.New("choose exactly one of --completed or --all")
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			var count int64
			if clearAll {
				count, err = store.Clear(cmd.Context())
			} else {
				count, err = store.ClearCompleted(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d item(s)\n", count)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed items")
	cmd.Flags().BoolVar(&clearAll, "all", false, "Remove every item")
	return cmd
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid item id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
