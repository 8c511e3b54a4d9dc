package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/pkbench/bench"
	"github.com/leftmike/pkbench/client"
	"github.com/leftmike/pkbench/form"
	"github.com/leftmike/pkbench/history"
)

var (
	latencyCmd = &cobra.Command{
		Use:   "latency <table> <key>",
		Short: "Measure the average latency of querying a row by primary key",
		Args:  cobra.ExactArgs(2),
		RunE:  latencyRun,
	}

	throughputCmd = &cobra.Command{
		Use:   "throughput <table> [key]",
		Short: "Measure how many queries or inserts complete per second",
		Long: "Throughput runs concurrent queries of a row by primary key, or inserts with " +
			"--op insert, and reports the completed operations per second. Insert values " +
			"are given with --set column=value and may contain {seq}, {uuid}, and {today}.",
		Args: cobra.RangeArgs(1, 2),
		RunE: throughputRun,
	}

	iterations  *int
	warmup      *int
	count       *int
	duration    *time.Duration
	concurrency *int
	throughOp   *string

	setValues []string
)

func init() {
	fs := latencyCmd.Flags()
	iterations = cfg.Var(new(int), "iterations").
		Flags(fs).
		Short("n").
		Usage("number of timed queries").
		Int(10)
	warmup = cfg.Var(new(int), "warmup").
		Flags(fs).
		Usage("number of untimed queries to run first").
		Int(0)

	fs = throughputCmd.Flags()
	count = cfg.Var(new(int), "count").
		Flags(fs).
		Short("c").
		Usage("number of operations; 0 to run for --duration").
		Int(100)
	duration = cfg.Var(new(time.Duration), "duration").
		Flags(fs).
		Usage("run operations for this long instead of a fixed count").
		Duration(0)
	concurrency = cfg.Var(new(int), "concurrency").
		Flags(fs).
		Usage("maximum operations in flight").
		Int(10)
	throughOp = cfg.Var(new(string), "op").
		Flags(fs).
		Usage("operation to measure: query or insert").
		String("query")
	fs.StringArrayVar(&setValues, "set", nil, "insert `column=value`; multiple allowed")

	pkbenchCmd.AddCommand(latencyCmd, throughputCmd)
}

func latencyRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	c, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	op, err := c.QueryOp(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	started := time.Now()
	rpt, err := bench.Latency(ctx,
		bench.LatencyConfig{Iterations: *iterations, Warmup: *warmup}, op)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"table":   args[0],
		"valid":   rpt.Valid,
		"failed":  rpt.Failed,
		"mean_ms": bench.Milliseconds(rpt.Mean),
	}).Info("latency done")

	saveRecord(&history.Record{
		Kind:      "latency",
		Target:    c.Target(),
		Table:     args[0],
		StartedAt: started,
		Params: map[string]interface{}{
			"key":        args[1],
			"iterations": *iterations,
			"warmup":     *warmup,
			"snapshot":   *snapshot,
		},
		Results: rpt.Results(),
	})

	rw, err := newWriter(cmd)
	if err != nil {
		return err
	}
	return rw.Latency(rpt)
}

func throughputOp(ctx context.Context, c *client.Client, args []string,
	params map[string]interface{}) (bench.Op, error) {

	switch strings.ToLower(*throughOp) {
	case "query":
		if len(args) != 2 {
			return nil, fmt.Errorf("pkbench: throughput of queries needs a key")
		}
		params["key"] = args[1]
		return c.QueryOp(ctx, args[0], args[1])
	case "insert":
		if len(args) != 1 {
			return nil, fmt.Errorf("pkbench: throughput of inserts takes values from --set")
		}
		vals, err := form.ParseAssignments(setValues)
		if err != nil {
			return nil, err
		}
		f, err := c.NewForm(ctx, args[0])
		if err != nil {
			return nil, err
		}
		err = f.SetAll(vals)
		if err != nil {
			return nil, err
		}
		params["set"] = strings.Join(setValues, " ")
		return c.InsertOp(form.NewTemplate(f)), nil
	}
	return nil, fmt.Errorf("pkbench: got %s for op; want query or insert", *throughOp)
}

func throughputRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	c, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	n := *count
	if *duration > 0 && !cfg.IsSet("count") {
		n = 0
	}
	params := map[string]interface{}{
		"op":          strings.ToLower(*throughOp),
		"count":       n,
		"duration":    duration.String(),
		"concurrency": *concurrency,
	}
	op, err := throughputOp(ctx, c, args, params)
	if err != nil {
		return err
	}

	started := time.Now()
	rpt, err := bench.Throughput(ctx,
		bench.ThroughputConfig{
			Count:       n,
			Duration:    *duration,
			Concurrency: *concurrency,
		}, op)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"table":       args[0],
		"completed":   rpt.Completed,
		"failed":      rpt.Failed,
		"ops_per_sec": rpt.OpsPerSec,
	}).Info("throughput done")

	saveRecord(&history.Record{
		Kind:      "throughput",
		Target:    c.Target(),
		Table:     args[0],
		StartedAt: started,
		Params:    params,
		Results:   rpt.Results(),
	})

	rw, err := newWriter(cmd)
	if err != nil {
		return err
	}
	return rw.Throughput(rpt)
}
