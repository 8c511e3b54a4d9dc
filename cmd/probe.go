package cmd

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/pkbench/bench"
	"github.com/leftmike/pkbench/history"
	"github.com/leftmike/pkbench/pgwire"
)

var (
	probeCmd = &cobra.Command{
		Use:   "probe [sql]",
		Short: "Measure the PostgreSQL wire protocol round trip without a driver",
		Long: "Probe sends a simple query, SELECT 1 by default, over one PostgreSQL wire " +
			"protocol connection and reports its latency; compare with latency to see the " +
			"driver overhead.",
		Args: cobra.MaximumNArgs(1),
		RunE: probeRun,
	}
)

func init() {
	// Probe and latency share the iterations variable.
	probeCmd.Flags().AddFlag(latencyCmd.Flags().Lookup("iterations"))

	pkbenchCmd.AddCommand(probeCmd)
}

func probeRun(cmd *cobra.Command, args []string) error {
	sql := "SELECT 1"
	if len(args) > 0 {
		sql = args[0]
	}

	pcfg, err := pgwireConfig()
	if err != nil {
		return err
	}

	ctx, cancel := runContext()
	defer cancel()

	dctx, dcancel := context.WithTimeout(ctx, 30*time.Second)
	conn, err := pgwire.Dial(dctx, pcfg)
	dcancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	log.WithFields(log.Fields{
		"address":        pcfg.Address(),
		"server_version": conn.Parameter("server_version"),
	}).Info("probe connected")

	started := time.Now()
	rpt, err := bench.Latency(ctx, bench.LatencyConfig{Iterations: *iterations},
		func(ctx context.Context, seq int) (time.Duration, error) {
			res, err := conn.Exec(ctx, sql)
			if err != nil {
				return 0, err
			}
			return res.Latency, nil
		})
	if err != nil {
		return err
	}

	saveRecord(&history.Record{
		Kind:      "probe",
		Target:    "pgwire:" + pcfg.Address(),
		StartedAt: started,
		Params: map[string]interface{}{
			"sql":            sql,
			"iterations":     *iterations,
			"server_version": conn.Parameter("server_version"),
		},
		Results: rpt.Results(),
	})

	rw, err := newWriter(cmd)
	if err != nil {
		return err
	}
	rw.Message("Server Version: %s", conn.Parameter("server_version"))
	return rw.Latency(rpt)
}
