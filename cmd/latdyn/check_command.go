package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"latdyn/internal/preflight"
	"latdyn/internal/services"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the working directory, document store and external programs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, ctx.workDirPath())

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{checkMark(r, colorize), r.Name, r.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"", "Check", "Detail"}, rows, nil))

			if preflight.Failed(results) {
				return services.Wrap(services.ErrConfiguration, "check", "", "one or more required checks failed", nil)
			}
			return nil
		},
	}
}

func checkMark(r preflight.Result, colorize bool) string {
	mark, attr := "✗", color.FgRed
	switch {
	case r.Passed:
		mark, attr = "✓", color.FgGreen
	case r.Optional:
		mark, attr = "!", color.FgYellow
	}
	if !colorize {
		return mark
	}
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(mark)
}
