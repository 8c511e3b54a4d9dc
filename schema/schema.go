package schema

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/pkbench/dialect"
)

var (
	ErrUnknownTable       = errors.New("unknown table")
	ErrNoPrimaryKey       = errors.New("table does not have a primary key")
	ErrUnsupportedKeyType = errors.New("unsupported primary key type")
)

type Table struct {
	Name       string
	Columns    []dialect.Column
	PrimaryKey []string
}

func (tbl *Table) Column(name string) (dialect.Column, bool) {
	for _, col := range tbl.Columns {
		if col.Name == name {
			return col, true
		}
	}
	for _, col := range tbl.Columns {
		if strings.EqualFold(col.Name, name) {
			return col, true
		}
	}
	return dialect.Column{}, false
}

// ColumnIndex returns the position of the named column or -1.
func (tbl *Table) ColumnIndex(name string) int {
	for idx, col := range tbl.Columns {
		if col.Name == name {
			return idx
		}
	}
	return -1
}

// KeyColumn returns the column used for point lookups: the first column of
// the primary key.
func (tbl *Table) KeyColumn() (dialect.Column, error) {
	if len(tbl.PrimaryKey) == 0 {
		return dialect.Column{}, fmt.Errorf("schema: %s: %w", tbl.Name, ErrNoPrimaryKey)
	}
	col, ok := tbl.Column(tbl.PrimaryKey[0])
	if !ok {
		return dialect.Column{},
			fmt.Errorf("schema: %s: primary key column %s not found", tbl.Name, tbl.PrimaryKey[0])
	}
	return col, nil
}

// Catalog discovers tables at runtime and caches what it finds; it is safe
// for concurrent use.
type Catalog struct {
	d      dialect.Dialect
	q      sqlx.QueryerContext
	mutex  sync.Mutex
	names  []string
	tables map[string]*Table
}

func NewCatalog(d dialect.Dialect, q sqlx.QueryerContext) *Catalog {
	return &Catalog{
		d:      d,
		q:      q,
		tables: map[string]*Table{},
	}
}

func (cat *Catalog) Reset() {
	cat.mutex.Lock()
	defer cat.mutex.Unlock()

	cat.names = nil
	cat.tables = map[string]*Table{}
}

func (cat *Catalog) tableNames(ctx context.Context) ([]string, error) {
	if cat.names == nil {
		names, err := cat.d.Tables(ctx, cat.q)
		if err != nil {
			return nil, err
		}
		if names == nil {
			names = []string{}
		}
		cat.names = names
	}
	return cat.names, nil
}

func (cat *Catalog) TableNames(ctx context.Context) ([]string, error) {
	cat.mutex.Lock()
	defer cat.mutex.Unlock()

	names, err := cat.tableNames(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), names...), nil
}

func (cat *Catalog) resolve(ctx context.Context, name string) (string, error) {
	names, err := cat.tableNames(ctx)
	if err != nil {
		return "", err
	}
	for _, n := range names {
		if n == name {
			return n, nil
		}
	}
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return n, nil
		}
	}
	return "", fmt.Errorf("schema: %s: %w", name, ErrUnknownTable)
}

// Table returns the named table, which must be one of the discovered tables.
func (cat *Catalog) Table(ctx context.Context, name string) (*Table, error) {
	cat.mutex.Lock()
	defer cat.mutex.Unlock()

	if tbl, ok := cat.tables[name]; ok {
		return tbl, nil
	}

	tn, err := cat.resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	if tbl, ok := cat.tables[tn]; ok {
		cat.tables[name] = tbl
		return tbl, nil
	}

	cols, err := cat.d.Columns(ctx, cat.q, tn)
	if err != nil {
		return nil, err
	}
	pk, err := cat.d.PrimaryKey(ctx, cat.q, tn)
	if err != nil {
		return nil, err
	}
	if len(pk) > 1 {
		log.WithFields(log.Fields{
			"table":       tn,
			"primary_key": strings.Join(pk, ","),
		}).Warn("composite primary key; lookups use the first column")
	}

	tbl := &Table{
		Name:       tn,
		Columns:    cols,
		PrimaryKey: pk,
	}
	cat.tables[tn] = tbl
	cat.tables[name] = tbl
	return tbl, nil
}

func (cat *Catalog) Discover(ctx context.Context) ([]*Table, error) {
	names, err := cat.TableNames(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]*Table, 0, len(names))
	for _, nam := range names {
		tbl, err := cat.Table(ctx, nam)
		if err != nil {
			return nil, err
		}
		tables = append(tables, tbl)
	}
	return tables, nil
}

// ParseKey converts a primary key value typed by the user into the type of
// the key column. Only integer and string keys are supported.
func ParseKey(col dialect.Column, s string) (interface{}, error) {
	switch col.Kind {
	case dialect.Int:
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("schema: key %q for %s column %s: %w", s, col.DataType,
				col.Name, err)
		}
		return i, nil
	case dialect.String:
		return s, nil
	}
	return nil, fmt.Errorf("schema: %s: %s: %w", col.Name, col.DataType, ErrUnsupportedKeyType)
}
