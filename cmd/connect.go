package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh/terminal"

	"github.com/leftmike/pkbench/client"
	"github.com/leftmike/pkbench/dialect"
	"github.com/leftmike/pkbench/pgwire"
)

var (
	driver         *string
	dsn            *string
	host           *string
	port           *string
	user           *string
	password       *string
	passwordPrompt *bool
	database       *string
	schemaName     *string
	connectRetries *int
	maxOpenConns   *int
	snapshot       *bool
)

func initConnectVars() {
	driver = cfg.Var(new(string), "driver").
		Usage("database driver: " + strings.Join(dialect.Drivers(), ", ")).
		Env("PKBENCH_DRIVER").
		String("postgres")
	dsn = cfg.Var(new(string), "dsn").
		Usage("driver specific data source name; overrides host, port, user, password, " +
			"and database").
		Env("PKBENCH_DSN").
		Secret().
		String("")
	host = cfg.Var(new(string), "host").
		Short("H").
		Usage("database server `host`").
		Env("PKBENCH_HOST").
		String("")
	port = cfg.Var(new(string), "port").
		Short("p").
		Usage("database server `port`").
		Env("PKBENCH_PORT").
		String("")
	user = cfg.Var(new(string), "user").
		Short("U").
		Usage("database `user`").
		Env("PKBENCH_USER").
		String("")
	password = cfg.Var(new(string), "password").
		Usage("database password").
		Env("PKBENCH_PASSWORD").
		Secret().
		String("")
	passwordPrompt = cfg.Var(new(bool), "password-prompt").
		Short("W").
		Usage("prompt for the database password").
		NoConfig().
		Bool(false)
	database = cfg.Var(new(string), "database").
		Short("d").
		Usage("`database` name; the file for sqlite3").
		Env("PKBENCH_DATABASE").
		String("")
	schemaName = cfg.Var(new(string), "schema").
		Usage("`schema` to search for tables; defaults to the driver's default").
		Env("PKBENCH_SCHEMA").
		String("")
	connectRetries = cfg.Var(new(int), "connect-retries").
		Usage("times to retry connecting to the database").
		Int(3)
	maxOpenConns = cfg.Var(new(int), "max-open-conns").
		Usage("maximum open connections to the database; 0 for no limit").
		Int(0)
	snapshot = cfg.Var(new(bool), "snapshot").
		Usage("run each lookup in a read only transaction").
		Bool(false)
}

func readPassword() error {
	if !*passwordPrompt {
		return nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	b, err := terminal.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("pkbench: password: %s", err)
	}
	*password = string(b)
	*passwordPrompt = false
	return nil
}

func connInfo() dialect.ConnInfo {
	return dialect.ConnInfo{
		Host:     *host,
		Port:     *port,
		User:     *user,
		Password: *password,
		Database: *database,
	}
}

func openClient(ctx context.Context) (*client.Client, error) {
	err := readPassword()
	if err != nil {
		return nil, err
	}

	return client.Open(ctx,
		client.Options{
			Driver:         *driver,
			DSN:            *dsn,
			ConnInfo:       connInfo(),
			Schema:         *schemaName,
			ConnectRetries: *connectRetries,
			MaxOpenConns:   *maxOpenConns,
			Snapshot:       *snapshot,
		})
}

func pgwireConfig() (pgwire.Config, error) {
	switch strings.ToLower(*driver) {
	case "postgres", "pgx":
	default:
		return pgwire.Config{}, fmt.Errorf("pkbench: probe needs a postgres or pgx driver; got %s",
			*driver)
	}
	if *dsn != "" {
		return pgwire.Config{}, fmt.Errorf("pkbench: probe needs host, port, user, and " +
			"database instead of a dsn")
	}

	err := readPassword()
	if err != nil {
		return pgwire.Config{}, err
	}
	ci := connInfo()
	return pgwire.Config{
		Host:     ci.Host,
		Port:     ci.Port,
		User:     ci.User,
		Password: ci.Password,
		Database: ci.Database,
	}, nil
}
