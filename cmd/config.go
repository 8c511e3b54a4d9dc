package cmd

import (
	"github.com/spf13/cobra"
)

func init() {
	pkbenchCmd.AddCommand(
		&cobra.Command{
			Use:   "config",
			Short: "List the config variables, their values, and where they were set",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				rw, err := newWriter(cmd)
				if err != nil {
					return err
				}

				settings := cfg.Settings()
				var rows [][]string
				for _, s := range settings {
					rows = append(rows, []string{s.Name, s.By, s.Value})
				}
				return rw.Table([]string{"name", "by", "value"}, rows, settings)
			},
		})
}
