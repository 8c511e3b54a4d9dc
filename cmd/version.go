package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "pkbench 0.1.0"

func init() {
	pkbenchCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of pkbench",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		})
}
