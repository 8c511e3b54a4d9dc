package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/leftmike/pkbench/console"
)

var (
	consoleCmd = &cobra.Command{
		Use:   "console",
		Short: "Run an interactive console session",
		Args:  cobra.NoArgs,
		RunE:  consoleRun,
	}

	pageSize *int
)

func init() {
	pageSize = cfg.Var(new(int), "page-size").
		Flags(consoleCmd.Flags()).
		Usage("rows per page when browsing").
		Int(20)

	pkbenchCmd.AddCommand(consoleCmd)
}

func consoleRun(cmd *cobra.Command, args []string) error {
	// Once connected, an interrupt stops only the running console command.
	cctx, cancel := runContext()
	c, err := openClient(cctx)
	cancel()
	if err != nil {
		return err
	}
	defer c.Close()

	l := console.NewLiner(console.HistoryFile)
	defer l.Close()

	con := &console.Console{
		Client:      c,
		Prompter:    l,
		Out:         cmd.OutOrStdout(),
		Format:      *format,
		PageSize:    *pageSize,
		BrowseLimit: *browseLimit,
		Iterations:  *iterations,
		Count:       *count,
		Concurrency: *concurrency,
		Save:        saveRecord,
	}
	return con.Run(context.Background())
}
