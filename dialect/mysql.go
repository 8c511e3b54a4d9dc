package dialect

import (
	"context"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

type mysqlDialect struct {
	schema string
}

func (my mysqlDialect) Name() string {
	return "mysql"
}

func (my mysqlDialect) DriverName() string {
	return "mysql"
}

func (my mysqlDialect) Placeholder(n int) string {
	return "?"
}

func (my mysqlDialect) QuoteIdent(id string) string {
	return quoteWith(id, "`")
}

func (my mysqlDialect) DSN(ci ConnInfo) string {
	cfg := mysql.NewConfig()
	cfg.User = ci.User
	cfg.Passwd = ci.Password
	cfg.DBName = ci.Database
	if ci.Host != "" {
		port := ci.Port
		if port == "" {
			port = "3306"
		}
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(ci.Host, port)
	}
	return cfg.FormatDSN()
}

func (my mysqlDialect) Tables(ctx context.Context, q sqlx.QueryerContext) ([]string, error) {
	var tables []string
	err := sqlx.SelectContext(ctx, q, &tables,
		`SELECT table_name AS table_name FROM information_schema.tables
WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_type = 'BASE TABLE'
ORDER BY table_name`, my.schema)
	if err != nil {
		return nil, fmt.Errorf("mysql: tables: %w", err)
	}
	return tables, nil
}

func (my mysqlDialect) Columns(ctx context.Context, q sqlx.QueryerContext,
	table string) ([]Column, error) {

	var infos []columnInfo
	err := sqlx.SelectContext(ctx, q, &infos,
		`SELECT column_name AS column_name, data_type AS data_type FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ?
ORDER BY ordinal_position`, my.schema, table)
	if err != nil {
		return nil, fmt.Errorf("mysql: columns of %s: %w", table, err)
	}
	return makeColumns(infos), nil
}

func (my mysqlDialect) PrimaryKey(ctx context.Context, q sqlx.QueryerContext,
	table string) ([]string, error) {

	var cols []string
	err := sqlx.SelectContext(ctx, q, &cols,
		`SELECT column_name AS column_name FROM information_schema.key_column_usage
WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ?
AND constraint_name = 'PRIMARY' ORDER BY ordinal_position`, my.schema, table)
	if err != nil {
		return nil, fmt.Errorf("mysql: primary key of %s: %w", table, err)
	}
	return cols, nil
}
