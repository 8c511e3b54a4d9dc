package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

type postgres struct {
	driver string
	schema string
}

type columnInfo struct {
	Name     string `db:"column_name"`
	DataType string `db:"data_type"`
}

func (pg postgres) Name() string {
	return "postgres"
}

func (pg postgres) DriverName() string {
	return pg.driver
}

func (pg postgres) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (pg postgres) QuoteIdent(id string) string {
	return quoteWith(id, `"`)
}

func (pg postgres) namespace() string {
	if pg.schema == "" {
		return "public"
	}
	return pg.schema
}

func dsnValue(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, `'`, `\'`) + "'"
}

func (pg postgres) DSN(ci ConnInfo) string {
	var parts []string
	add := func(key, val string) {
		if val != "" {
			parts = append(parts, key+"="+dsnValue(val))
		}
	}
	add("host", ci.Host)
	add("port", ci.Port)
	add("user", ci.User)
	add("password", ci.Password)
	add("dbname", ci.Database)
	parts = append(parts, "sslmode=disable")
	return strings.Join(parts, " ")
}

func (pg postgres) Tables(ctx context.Context, q sqlx.QueryerContext) ([]string, error) {
	var tables []string
	err := sqlx.SelectContext(ctx, q, &tables,
		`SELECT table_name FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`, pg.namespace())
	if err != nil {
		return nil, fmt.Errorf("postgres: tables: %w", err)
	}
	return tables, nil
}

func (pg postgres) Columns(ctx context.Context, q sqlx.QueryerContext,
	table string) ([]Column, error) {

	var infos []columnInfo
	err := sqlx.SelectContext(ctx, q, &infos,
		`SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position`, pg.namespace(), table)
	if err != nil {
		return nil, fmt.Errorf("postgres: columns of %s: %w", table, err)
	}
	return makeColumns(infos), nil
}

func (pg postgres) PrimaryKey(ctx context.Context, q sqlx.QueryerContext,
	table string) ([]string, error) {

	var cols []string
	err := sqlx.SelectContext(ctx, q, &cols,
		`SELECT kcu.column_name FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
AND tc.table_name = kcu.table_name
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1 AND tc.table_name = $2
ORDER BY kcu.ordinal_position`, pg.namespace(), table)
	if err != nil {
		return nil, fmt.Errorf("postgres: primary key of %s: %w", table, err)
	}
	return cols, nil
}

func makeColumns(infos []columnInfo) []Column {
	cols := make([]Column, 0, len(infos))
	for _, ci := range infos {
		cols = append(cols, Column{
			Name:     ci.Name,
			DataType: ci.DataType,
			Kind:     KindOf(ci.DataType),
		})
	}
	return cols
}
