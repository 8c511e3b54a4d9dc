package dialect

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

type sqlite struct{}

func (_ sqlite) Name() string {
	return "sqlite3"
}

func (_ sqlite) DriverName() string {
	return "sqlite3"
}

func (_ sqlite) Placeholder(n int) string {
	return "?"
}

func (_ sqlite) QuoteIdent(id string) string {
	return quoteWith(id, `"`)
}

// DSN for sqlite is the database file; host, port, and credentials do not apply.
func (_ sqlite) DSN(ci ConnInfo) string {
	if ci.Database == "" {
		return ":memory:"
	}
	return ci.Database
}

func (_ sqlite) Tables(ctx context.Context, q sqlx.QueryerContext) ([]string, error) {
	var tables []string
	err := sqlx.SelectContext(ctx, q, &tables,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite3: tables: %w", err)
	}
	return tables, nil
}

func (_ sqlite) Columns(ctx context.Context, q sqlx.QueryerContext,
	table string) ([]Column, error) {

	var infos []columnInfo
	err := sqlx.SelectContext(ctx, q, &infos,
		`SELECT name AS column_name, type AS data_type FROM pragma_table_info(?) ORDER BY cid`,
		table)
	if err != nil {
		return nil, fmt.Errorf("sqlite3: columns of %s: %w", table, err)
	}
	return makeColumns(infos), nil
}

func (_ sqlite) PrimaryKey(ctx context.Context, q sqlx.QueryerContext,
	table string) ([]string, error) {

	var cols []string
	err := sqlx.SelectContext(ctx, q, &cols,
		`SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`, table)
	if err != nil {
		return nil, fmt.Errorf("sqlite3: primary key of %s: %w", table, err)
	}
	return cols, nil
}
