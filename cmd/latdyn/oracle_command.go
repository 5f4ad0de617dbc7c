package main

import (
	"github.com/spf13/cobra"

	"latdyn/internal/oracle"
)

func newOracleCommand() *cobra.Command {
	oracleCmd := &cobra.Command{
		Use:   "oracle",
		Short: "Oracle protocol utilities",
	}
	oracleCmd.AddCommand(&cobra.Command{
		Use:         "schema",
		Short:       "Print JSON Schemas for every oracle request and response",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := oracle.SchemaJSON()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := out.Write(data); err != nil {
				return err
			}
			_, err = out.Write([]byte("\n"))
			return err
		},
	})
	return oracleCmd
}
