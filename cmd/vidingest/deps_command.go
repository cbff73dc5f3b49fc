package main

import (
	"errors"

	"github.com/spf13/cobra"

	"vidingest/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external tools, directories, and services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			if ctx.jsonOutput() {
				return writeJSON(cmd, results)
			}
			rows := make([][]string, 0, len(results))
			for _, result := range results {
				state := "ok"
				switch {
				case !result.Passed && result.Optional:
					state = "warn"
				case !result.Passed:
					state = "fail"
				}
				rows = append(rows, []string{result.Name, state, yesNo(!result.Optional), result.Detail})
			}
			writeTable(cmd.OutOrStdout(), []string{"Check", "State", "Required", "Detail"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft})
			if blocking := preflight.Blocking(results); len(blocking) > 0 {
				return errDepsMissing
			}
			return nil
		},
	}
}

var errDepsMissing = errors.New("required dependencies are missing")
