package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/pkbench/dialect"
	"github.com/leftmike/pkbench/form"
	"github.com/leftmike/pkbench/schema"
)

var ErrNotFound = errors.New("no results returned from the query")

type Options struct {
	Driver         string
	DSN            string
	ConnInfo       dialect.ConnInfo
	Schema         string
	ConnectRetries int
	MaxOpenConns   int
	Snapshot       bool
}

// Client is the one database handle shared by every operation; it is safe for
// concurrent use.
type Client struct {
	db       *sqlx.DB
	d        dialect.Dialect
	cat      *schema.Catalog
	snapshot bool
	target   string
}

type Result struct {
	Table   string
	Columns []string
	Rows    [][]string
	Latency time.Duration
}

func Open(ctx context.Context, opts Options) (*Client, error) {
	d, err := dialect.Lookup(opts.Driver, opts.Schema)
	if err != nil {
		return nil, err
	}

	dsn := opts.DSN
	if dsn == "" {
		dsn = d.DSN(opts.ConnInfo)
	}
	db, err := sqlx.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("client: %s", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}

	retries := opts.ConnectRetries
	if retries < 0 {
		retries = 0
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)), ctx)
	err = backoff.RetryNotify(
		func() error {
			return db.PingContext(ctx)
		}, bo,
		func(err error, next time.Duration) {
			log.WithFields(log.Fields{
				"driver":   d.DriverName(),
				"error":    err.Error(),
				"retry_in": next.String(),
			}).Warn("connect failed")
		})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("client: connect: %s", err)
	}

	c := New(db, d, opts.Snapshot)
	c.target = target(d, opts)
	log.WithFields(log.Fields{
		"driver": d.DriverName(),
		"target": c.target,
	}).Info("connected")
	return c, nil
}

func target(d dialect.Dialect, opts Options) string {
	ci := opts.ConnInfo
	if opts.DSN != "" || ci.Database == "" {
		return d.DriverName()
	}
	if ci.Host == "" {
		return fmt.Sprintf("%s:%s", d.DriverName(), ci.Database)
	}
	return fmt.Sprintf("%s:%s@%s", d.DriverName(), ci.Database, ci.Host)
}

func New(db *sqlx.DB, d dialect.Dialect, snapshot bool) *Client {
	return &Client{
		db:       db,
		d:        d,
		cat:      schema.NewCatalog(d, db),
		snapshot: snapshot,
		target:   d.DriverName(),
	}
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Catalog() *schema.Catalog {
	return c.cat
}

// Target names the database without credentials.
func (c *Client) Target() string {
	return c.target
}

func (c *Client) quoteIdent(id string) string {
	return c.d.QuoteIdent(id)
}

// LookupSQL returns the point lookup statement for a table and its key column.
func (c *Client) LookupSQL(ctx context.Context, table string) (string, *schema.Table,
	dialect.Column, error) {

	tbl, err := c.cat.Table(ctx, table)
	if err != nil {
		return "", nil, dialect.Column{}, err
	}
	col, err := tbl.KeyColumn()
	if err != nil {
		return "", nil, dialect.Column{}, err
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE %s = %s", c.quoteIdent(tbl.Name),
		c.quoteIdent(col.Name), c.d.Placeholder(1)), tbl, col, nil
}

// QueryByKey looks up the rows of table whose primary key equals key. The
// latency covers executing the statement and reading every row. When nothing
// matches, the result and its latency are returned along with ErrNotFound.
func (c *Client) QueryByKey(ctx context.Context, table, key string) (*Result, error) {
	query, tbl, col, err := c.LookupSQL(ctx, table)
	if err != nil {
		return nil, err
	}
	arg, err := schema.ParseKey(col, key)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"table":    tbl.Name,
		"column":   col.Name,
		"type":     col.DataType,
		"key":      key,
		"sql":      query,
		"snapshot": c.snapshot,
	}).Debug("query by primary key")

	return c.queryByKey(ctx, query, tbl.Name, key, arg)
}

func (c *Client) queryByKey(ctx context.Context, query, table, key string,
	arg interface{}) (*Result, error) {

	start := time.Now()
	res, err := c.query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("client: query %s: %w", table, err)
	}
	res.Latency = time.Since(start)
	res.Table = table

	if len(res.Rows) == 0 {
		return res, fmt.Errorf("client: %s key %s: %w", table, key, ErrNotFound)
	}
	return res, nil
}

// QueryOp checks that table and key can be queried and returns an operation
// which queries them; a query that finds nothing fails.
func (c *Client) QueryOp(ctx context.Context, table, key string) (func(context.Context,
	int) (time.Duration, error), error) {

	query, tbl, col, err := c.LookupSQL(ctx, table)
	if err != nil {
		return nil, err
	}
	arg, err := schema.ParseKey(col, key)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"table":  tbl.Name,
		"column": col.Name,
		"type":   col.DataType,
		"sql":    query,
	}).Debug("query operation")

	return func(ctx context.Context, seq int) (time.Duration, error) {
		res, err := c.queryByKey(ctx, query, tbl.Name, key, arg)
		if err != nil {
			return 0, err
		}
		return res.Latency, nil
	}, nil
}

// InsertOp returns an operation which inserts the row built from tpl for
// each sequence number.
func (c *Client) InsertOp(tpl *form.Template) func(context.Context, int) (time.Duration,
	error) {

	return func(ctx context.Context, seq int) (time.Duration, error) {
		return c.InsertRow(ctx, tpl.Instance(seq))
	}
}

func (c *Client) query(ctx context.Context, query string, args ...interface{}) (*Result,
	error) {

	if !c.snapshot {
		return readRows(ctx, c.db, query, args...)
	}

	tx, err := c.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return readRows(ctx, tx, query, args...)
}

func readRows(ctx context.Context, q sqlx.QueryerContext, query string,
	args ...interface{}) (*Result, error) {

	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{
		Columns: cols,
		Rows:    [][]string{},
	}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		row := make([]string, len(vals))
		for idx, v := range vals {
			row[idx] = FormatValue(v)
		}
		res.Rows = append(res.Rows, row)
	}
	return res, rows.Err()
}

// Browse returns up to limit rows of table; a limit of zero or less returns
// every row.
func (c *Client) Browse(ctx context.Context, table string, limit int) (*Result, error) {
	tbl, err := c.cat.Table(ctx, table)
	if err != nil {
		return nil, err
	}

	query := "SELECT * FROM " + c.quoteIdent(tbl.Name)
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}

	start := time.Now()
	res, err := readRows(ctx, c.db, query)
	if err != nil {
		return nil, fmt.Errorf("client: browse %s: %w", tbl.Name, err)
	}
	res.Latency = time.Since(start)
	res.Table = tbl.Name
	return res, nil
}

// NewForm returns an empty insert form for table.
func (c *Client) NewForm(ctx context.Context, table string) (*form.Form, error) {
	tbl, err := c.cat.Table(ctx, table)
	if err != nil {
		return nil, err
	}
	return form.New(tbl), nil
}

// InsertRow inserts the single row held by f and returns the latency of the
// statement. The form is validated before anything is sent to the database.
func (c *Client) InsertRow(ctx context.Context, f *form.Form) (time.Duration, error) {
	tbl, err := c.cat.Table(ctx, f.Table)
	if err != nil {
		return 0, err
	}
	cols, vals, err := f.Values()
	if err != nil {
		return 0, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (", c.quoteIdent(tbl.Name))
	for idx, col := range cols {
		if idx > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.quoteIdent(col))
	}
	b.WriteString(") VALUES (")
	for idx := range cols {
		if idx > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.d.Placeholder(idx + 1))
	}
	b.WriteString(")")

	start := time.Now()
	_, err = c.db.ExecContext(ctx, b.String(), vals...)
	if err != nil {
		return 0, fmt.Errorf("client: insert into %s: %w", tbl.Name, err)
	}
	return time.Since(start), nil
}

// Exec runs a statement that returns no rows. Cached schema is dropped since
// the statement may have changed it.
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := c.db.ExecContext(ctx, query, args...)
	c.cat.Reset()
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	return nil
}

func FormatValue(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	case string:
		return v
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format(form.DateLayout)
		}
		return v.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}
