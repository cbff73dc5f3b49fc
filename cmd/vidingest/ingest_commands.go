package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vidingest/internal/metadata"
	"vidingest/internal/models"
	"vidingest/internal/pipeline"
)

type ingestOutput struct {
	CorrelationID string                  `json:"correlation_id"`
	ModelTier     string                  `json:"model_tier,omitempty"`
	ModelPath     string                  `json:"model_path,omitempty"`
	AudioPath     string                  `json:"audio_path,omitempty"`
	ElapsedMS     int64                   `json:"elapsed_ms"`
	Metadata      *metadata.VideoMetadata `json:"metadata,omitempty"`
}

// signalContext cancels on SIGINT/SIGTERM so in-flight tools are killed and
// partial files are removed.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "ingest [video-url-or-id]",
		Short: "Run the full pipeline for one video or uploaded file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := pipeline.Job{UploadedFilePath: strings.TrimSpace(filePath)}
			if len(args) == 1 {
				job.ExternalVideoID = strings.TrimSpace(args[0])
			}
			if err := job.Validate(); err != nil {
				return err
			}

			runCtx, cancel := signalContext(cmd.Context())
			defer cancel()
			app, err := ctx.build(runCtx)
			if err != nil {
				return err
			}

			errOut := cmd.ErrOrStderr()
			hooks := pipeline.Hooks{Sink: app.sink}
			if !ctx.jsonOutput() {
				hooks.OnStage = func(_ context.Context, stage pipeline.Stage) {
					fmt.Fprintf(errOut, "-> %s\n", stage)
				}
			}
			result, err := app.pipeline.Run(runCtx, job, hooks)
			if err != nil {
				return err
			}

			out := ingestOutput{
				CorrelationID: result.CorrelationID,
				ModelTier:     result.ModelTier.String(),
				ModelPath:     result.ModelPath,
				AudioPath:     result.AudioPath,
				ElapsedMS:     result.Elapsed.Milliseconds(),
				Metadata:      result.Metadata,
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, out)
			}
			w := cmd.OutOrStdout()
			if result.Metadata != nil {
				fmt.Fprintf(w, "Title:      %s\n", result.Metadata.Title)
				fmt.Fprintf(w, "Duration:   %s\n", result.Metadata.Duration)
			}
			fmt.Fprintf(w, "Model:      %s (%s)\n", out.ModelTier, out.ModelPath)
			fmt.Fprintf(w, "Audio:      %s\n", out.AudioPath)
			fmt.Fprintf(w, "Elapsed:    %s\n", result.Elapsed.Round(time.Millisecond))
			fmt.Fprintf(w, "Correlation: %s\n", out.CorrelationID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Process a local video file instead of a remote video")
	return cmd
}

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "extract [video-url-or-id]",
		Short: "Download a video (or read a local file) and extract Whisper audio",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath = strings.TrimSpace(filePath)
			if (len(args) == 1) == (filePath != "") {
				return errors.New("provide exactly one of a video reference or --file")
			}
			runCtx, cancel := signalContext(cmd.Context())
			defer cancel()
			app, err := ctx.build(runCtx)
			if err != nil {
				return err
			}

			var path string
			if filePath != "" {
				path, err = app.engine.ExtractFromVideoFile(runCtx, filePath)
			} else {
				path, err = app.engine.ExtractFromURL(runCtx, args[0], app.sink)
			}
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]string{"audio_path": path})
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Local video file to transcode")
	return cmd
}

func newMetadataCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "metadata <video-url-or-id>",
		Short: "Resolve and print video metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.build(cmd.Context())
			if err != nil {
				return err
			}
			meta, err := app.resolver.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, meta)
			}
			rows := [][]string{
				{"ID", meta.ExternalID},
				{"Title", meta.Title},
				{"Channel", meta.ChannelTitle},
				{"Duration", meta.Duration.String()},
				{"Published", formatTime(meta.PublishedAt)},
				{"Views", formatCount(meta.ViewCount)},
				{"Likes", formatCount(meta.LikeCount)},
				{"Category", derefString(meta.Category)},
				{"Source", string(meta.Source)},
			}
			writeTable(cmd.OutOrStdout(), []string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
			return nil
		},
	}
}

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <video-url-or-id>",
		Short: "Check availability and the best audio stream of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.build(cmd.Context())
			if err != nil {
				return err
			}
			if !app.acquirer.IsAvailable(cmd.Context(), args[0]) {
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"available": false})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Video is not available")
				return nil
			}
			stream, err := app.acquirer.BestAudioStream(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{"available": true, "stream": stream})
			}
			size := "unknown"
			if stream.Size > 0 {
				size = humanize.Bytes(uint64(stream.Size))
			}
			rows := [][]string{
				{"Format", stream.FormatID},
				{"Container", stream.Container},
				{"Codec", stream.Codec},
				{"Bitrate", fmt.Sprintf("%.0f kbps", stream.Bitrate)},
				{"Size", size},
			}
			writeTable(cmd.OutOrStdout(), []string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
			return nil
		},
	}
}

func newSelectModelCommand(ctx *commandContext) *cobra.Command {
	var videoRef string
	var fetch bool

	cmd := &cobra.Command{
		Use:   "select-model [duration-seconds]",
		Short: "Show the model tier chosen for a duration or video",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.build(cmd.Context())
			if err != nil {
				return err
			}
			var seconds float64
			switch {
			case videoRef != "" && len(args) == 0:
				meta, err := app.resolver.Resolve(cmd.Context(), videoRef)
				if err != nil {
					return err
				}
				seconds = meta.DurationSeconds()
			case videoRef == "" && len(args) == 1:
				seconds, err = strconv.ParseFloat(args[0], 64)
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
			default:
				return errors.New("provide exactly one of a duration or --video")
			}

			tier, err := app.selector.SelectModel(seconds)
			if err != nil {
				return err
			}
			var path string
			if fetch {
				if path, err = app.selector.ModelPath(cmd.Context(), tier); err != nil {
					return err
				}
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{"duration_seconds": seconds, "tier": tier, "path": path})
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatTier(tier, path))
			return nil
		},
	}
	cmd.Flags().StringVar(&videoRef, "video", "", "Resolve the duration from a video reference")
	cmd.Flags().BoolVar(&fetch, "fetch", false, "Download the model if it is not present")
	return cmd
}

func formatTier(tier models.Tier, path string) string {
	if path == "" {
		return tier.String()
	}
	return fmt.Sprintf("%s\t%s", tier, path)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatCount(value *int64) string {
	if value == nil {
		return ""
	}
	return humanize.Comma(*value)
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
