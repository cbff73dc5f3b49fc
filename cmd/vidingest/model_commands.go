package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vidingest/internal/models"
)

func newModelCommand(ctx *commandContext) *cobra.Command {
	modelCmd := &cobra.Command{
		Use:   "model",
		Short: "Manage transcription model artifacts",
	}
	modelCmd.AddCommand(newModelListCommand(ctx))
	modelCmd.AddCommand(newModelFetchCommand(ctx))
	modelCmd.AddCommand(newModelImportCommand(ctx))
	return modelCmd
}

func (c *commandContext) modelSelector() (*models.Selector, error) {
	store, logger, err := c.storageManager()
	if err != nil {
		return nil, err
	}
	return models.NewFromConfig(c.config, store, logger), nil
}

func parseTierArg(value string) (models.Tier, error) {
	tier, ok := models.ParseTier(value)
	if !ok {
		return "", fmt.Errorf("unknown tier %q (expected one of %v)", value, models.AllTiers())
	}
	return tier, nil
}

func newModelListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List model tiers and whether each is present locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, err := ctx.modelSelector()
			if err != nil {
				return err
			}
			present, err := selector.Refresh()
			if err != nil {
				return err
			}
			have := make(map[models.Tier]bool, len(present))
			for _, tier := range present {
				have[tier] = true
			}

			type entry struct {
				Tier    models.Tier `json:"tier"`
				Present bool        `json:"present"`
				Path    string      `json:"path"`
				Bytes   int64       `json:"bytes,omitempty"`
			}
			var entries []entry
			rows := make([][]string, 0, len(models.AllTiers()))
			for _, tier := range models.AllTiers() {
				e := entry{Tier: tier, Present: have[tier], Path: filepath.Join(ctx.config.Paths.ModelDir, tier.FileName())}
				size := ""
				if e.Present {
					if info, err := os.Stat(e.Path); err == nil {
						e.Bytes = info.Size()
						size = humanize.Bytes(uint64(info.Size()))
					}
				}
				entries = append(entries, e)
				rows = append(rows, []string{tier.String(), yesNo(e.Present), size, e.Path})
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, entries)
			}
			writeTable(cmd.OutOrStdout(), []string{"Tier", "Present", "Size", "Path"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft})
			return nil
		},
	}
}

func newModelFetchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <tier>",
		Short: "Download a model tier if it is not already present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := parseTierArg(args[0])
			if err != nil {
				return err
			}
			selector, err := ctx.modelSelector()
			if err != nil {
				return err
			}
			runCtx, cancel := signalContext(cmd.Context())
			defer cancel()
			path, err := selector.ModelPath(runCtx, tier)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newModelImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <tier> <file>",
		Short: "Install a locally obtained model file for a tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := parseTierArg(args[0])
			if err != nil {
				return err
			}
			selector, err := ctx.modelSelector()
			if err != nil {
				return err
			}
			path, err := selector.Import(tier, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s model to %s\n", tier, path)
			return nil
		},
	}
}
