package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/pkbench/config"
	"github.com/leftmike/pkbench/report"
)

var (
	pkbenchCmd = &cobra.Command{
		Use:   "pkbench",
		Short: "Benchmark primary key lookups",
		Long: "Pkbench measures the latency and throughput of primary key lookups and inserts " +
			"against PostgreSQL, MySQL, and SQLite databases.",
		SilenceUsage: true,
	}

	cfg = config.NewConfig(pkbenchCmd.PersistentFlags())

	logFile   *string
	logLevel  *string
	logStderr *bool
	logWriter io.WriteCloser

	configFile *string
	noConfig   *bool
	envFile    *string

	format *string
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})

	pkbenchCmd.PersistentPreRunE = pkbenchPreRun
	pkbenchCmd.PersistentPostRun = pkbenchPostRun

	logFile = cfg.Var(new(string), "log-file").
		Usage("`file` to use for logging").
		String("pkbench.log")
	logLevel = cfg.Var(new(string), "log-level").
		Usage("log level: trace, debug, info, warn, error, fatal, or panic").
		Env("PKBENCH_LOG_LEVEL").
		String("info")
	logStderr = cfg.Var(new(bool), "log-stderr").
		Short("s").
		Usage("log to standard error").
		Bool(false)

	configFile = cfg.Var(new(string), "config-file").
		Usage("`file` to load config from").
		NoConfig().
		String("pkbench.hcl")
	noConfig = cfg.Var(new(bool), "no-config").
		Usage("don't load config file").
		NoConfig().
		Bool(false)
	envFile = cfg.Var(new(string), "env-file").
		Usage("`file` of environment variables to load").
		NoConfig().
		String(".env")

	format = cfg.Var(new(string), "format").
		Short("f").
		Usage("output format: table, json, or yaml").
		Env("PKBENCH_FORMAT").
		String(report.FormatTable)

	initConnectVars()
	initHistoryVars()
}

func Execute() error {
	return pkbenchCmd.Execute()
}

func pkbenchPreRun(cmd *cobra.Command, args []string) error {
	cfg.Visit(cmd.Flags())

	err := config.LoadEnvFile(*envFile, cfg.IsSet("env-file"))
	if err != nil {
		return fmt.Errorf("pkbench: %s", err)
	}
	err = cfg.Env()
	if err != nil {
		return fmt.Errorf("pkbench: %s", err)
	}

	if *configFile != "" && !*noConfig {
		err := cfg.Load(*configFile)
		if errors.Is(err, os.ErrNotExist) && !cfg.IsSet("config-file") {
			err = nil
		}
		if err != nil {
			return fmt.Errorf("pkbench: %s", err)
		}
	}

	if !*logStderr && *logFile != "" {
		var err error
		logWriter, err = os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logWriter = nil
			return fmt.Errorf("pkbench: %s", err)
		}
		log.SetOutput(logWriter)
	}

	ll, err := log.ParseLevel(*logLevel)
	if err != nil {
		return fmt.Errorf("pkbench: %s", err)
	}
	log.SetLevel(ll)

	err = report.ValidateFormat(*format)
	if err != nil {
		return fmt.Errorf("pkbench: %s", err)
	}

	log.WithFields(log.Fields{
		"pid":     os.Getpid(),
		"command": cmd.Name(),
	}).Info("pkbench starting")
	return nil
}

func pkbenchPostRun(cmd *cobra.Command, args []string) {
	log.WithField("pid", os.Getpid()).Info("pkbench done")

	if logWriter != nil {
		logWriter.Close()
	}
}

// runContext is cancelled by an interrupt, which stops a running benchmark.
func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func newWriter(cmd *cobra.Command) (*report.Writer, error) {
	return report.New(cmd.OutOrStdout(), *format)
}
