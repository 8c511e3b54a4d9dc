package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/pkbench/history"
)

var (
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List, show, or clear saved benchmark runs",
	}

	historyListCmd = &cobra.Command{
		Use:   "list",
		Short: "List saved benchmark runs, newest first",
		Args:  cobra.NoArgs,
		RunE:  historyListRun,
	}

	historyShowCmd = &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved benchmark run",
		Args:  cobra.ExactArgs(1),
		RunE:  historyShowRun,
	}

	historyClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete all saved benchmark runs",
		Args:  cobra.NoArgs,
		RunE:  historyClearRun,
	}

	historyFile *string
	noHistory   *bool

	historyLimit = 20
)

func initHistoryVars() {
	historyFile = cfg.Var(new(string), "history-file").
		Usage("`file` in which to save benchmark runs").
		Env("PKBENCH_HISTORY_FILE").
		String("pkbench.db")
	noHistory = cfg.Var(new(bool), "no-history").
		Usage("don't save benchmark runs").
		Bool(false)
}

func init() {
	historyListCmd.Flags().IntVar(&historyLimit, "limit", historyLimit,
		"maximum runs to list; 0 for all")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyClearCmd)
	pkbenchCmd.AddCommand(historyCmd)
}

func openHistory() (*history.Store, error) {
	if *historyFile == "" {
		return nil, fmt.Errorf("pkbench: no history file")
	}
	return history.Open(*historyFile)
}

// saveRecord saves a benchmark run; failing to save is logged rather than
// failing the benchmark.
func saveRecord(rec *history.Record) {
	if *noHistory || *historyFile == "" {
		return
	}

	st, err := openHistory()
	if err == nil {
		err = st.Put(rec)
		st.Close()
	}
	if err != nil {
		log.WithFields(log.Fields{
			"file":  *historyFile,
			"error": err.Error(),
		}).Error("save benchmark run")
		return
	}
	log.WithFields(log.Fields{
		"id":   rec.ID.String(),
		"kind": rec.Kind,
	}).Info("saved benchmark run")
}

func historyListRun(cmd *cobra.Command, args []string) error {
	st, err := openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.List(historyLimit)
	if err != nil {
		return err
	}
	rw, err := newWriter(cmd)
	if err != nil {
		return err
	}
	return rw.History(recs)
}

func historyShowRun(cmd *cobra.Command, args []string) error {
	st, err := openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.Get(args[0])
	if err != nil {
		return err
	}
	rw, err := newWriter(cmd)
	if err != nil {
		return err
	}
	return rw.Record(rec)
}

func historyClearRun(cmd *cobra.Command, args []string) error {
	st, err := openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	return st.Clear()
}
