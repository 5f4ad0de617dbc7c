package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"latdyn/internal/artifacts"
	"latdyn/internal/services"
	"latdyn/internal/shengbte"
	"latdyn/internal/store"
)

func newResultsCommand(ctx *commandContext) *cobra.Command {
	resultsCmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect task outputs in the working directory",
	}
	resultsCmd.AddCommand(newResultsKappaCommand(ctx))
	resultsCmd.AddCommand(newResultsDocumentCommand(ctx))
	return resultsCmd
}

func newResultsKappaCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "kappa",
		Short: "Show the lattice thermal conductivity table",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := artifacts.Open(ctx.workDirPath())
			if err != nil {
				return err
			}
			points, name, err := shengbte.LoadKappa(dir)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, points)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Source: %s\n", dir.Path(name))
			fmt.Fprintln(out, renderKappaTable(points))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the table as JSON")
	return cmd
}

type documentOutput struct {
	ID         int64           `json:"id"`
	Collection string          `json:"collection"`
	CreatedAt  time.Time       `json:"created_at"`
	Body       json.RawMessage `json:"body"`
}

func newResultsDocumentCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "document <id>",
		Short: "Print a stored result document as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return services.Wrap(services.ErrValidation, "results", "document", fmt.Sprintf("invalid document id %q", args[0]), nil)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := store.Open(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			runCtx := cmd.Context()
			if runCtx == nil {
				runCtx = context.Background()
			}
			doc, err := st.GetDocument(runCtx, id)
			if err != nil {
				return err
			}
			return writeJSON(cmd, documentOutput{
				ID:         doc.ID,
				Collection: doc.Collection,
				CreatedAt:  doc.CreatedAt,
				Body:       doc.Body,
			})
		},
	}
}
