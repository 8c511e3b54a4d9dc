package dialect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

type Kind int

const (
	Other Kind = iota
	Int
	Float
	Bool
	String
	Date
	Timestamp
	Bytes
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "INT"
	case Float:
		return "FLOAT"
	case Bool:
		return "BOOL"
	case String:
		return "STRING"
	case Date:
		return "DATE"
	case Timestamp:
		return "TIMESTAMP"
	case Bytes:
		return "BYTES"
	}
	return "OTHER"
}

// Column is one column of a table as reported by the database.
type Column struct {
	Name     string
	DataType string
	Kind     Kind
}

type ConnInfo struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// Dialect hides the differences between the supported drivers: placeholder
// syntax, identifier quoting, and where the schema metadata lives.
type Dialect interface {
	Name() string
	DriverName() string
	Placeholder(n int) string
	QuoteIdent(id string) string
	DSN(ci ConnInfo) string
	Tables(ctx context.Context, q sqlx.QueryerContext) ([]string, error)
	Columns(ctx context.Context, q sqlx.QueryerContext, table string) ([]Column, error)
	PrimaryKey(ctx context.Context, q sqlx.QueryerContext, table string) ([]string, error)
}

type makeDialect func(schema string) Dialect

var dialects = map[string]makeDialect{
	"postgres": func(schema string) Dialect {
		return postgres{driver: "postgres", schema: schema}
	},
	"pgx": func(schema string) Dialect {
		return postgres{driver: "pgx", schema: schema}
	},
	"mysql": func(schema string) Dialect {
		return mysqlDialect{schema: schema}
	},
	"sqlite3": func(schema string) Dialect {
		return sqlite{}
	},
}

// Lookup returns the dialect for a driver; schema is the namespace to search
// for tables, or empty for the driver's default.
func Lookup(driver, schema string) (Dialect, error) {
	md, ok := dialects[strings.ToLower(driver)]
	if !ok {
		return nil, fmt.Errorf("dialect: got %s for driver; want %s", driver,
			strings.Join(Drivers(), ", "))
	}
	return md(schema), nil
}

func Drivers() []string {
	var names []string
	for nam := range dialects {
		names = append(names, nam)
	}
	sort.Strings(names)
	return names
}

// KindOf normalizes a column type as reported by information_schema, sqlite,
// or Spanner (INT64, STRING(MAX), ...).
func KindOf(dataType string) Kind {
	t := strings.ToUpper(strings.TrimSpace(dataType))
	if idx := strings.IndexByte(t, '('); idx >= 0 {
		t = strings.TrimSpace(t[:idx])
	}
	t = strings.TrimSuffix(t, " UNSIGNED")

	switch t {
	case "INT", "INTEGER", "INT2", "INT4", "INT8", "INT64", "BIGINT", "SMALLINT", "TINYINT",
		"MEDIUMINT", "SERIAL", "BIGSERIAL", "SMALLSERIAL":
		return Int
	case "REAL", "FLOAT", "FLOAT4", "FLOAT8", "FLOAT64", "DOUBLE", "DOUBLE PRECISION",
		"NUMERIC", "DECIMAL":
		return Float
	case "BOOL", "BOOLEAN":
		return Bool
	case "TEXT", "CHAR", "CHARACTER", "VARCHAR", "CHARACTER VARYING", "STRING", "NVARCHAR",
		"NCHAR", "CLOB", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "ENUM", "UUID":
		return String
	case "DATE":
		return Date
	case "TIMESTAMP", "DATETIME", "TIMESTAMP WITHOUT TIME ZONE", "TIMESTAMP WITH TIME ZONE",
		"TIMESTAMPTZ":
		return Timestamp
	case "BYTEA", "BLOB", "BYTES", "BINARY", "VARBINARY", "LONGBLOB", "MEDIUMBLOB", "TINYBLOB":
		return Bytes
	}
	return Other
}

func quoteWith(id string, q string) string {
	return q + strings.ReplaceAll(id, q, q+q) + q
}
