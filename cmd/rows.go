package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leftmike/pkbench/bench"
	"github.com/leftmike/pkbench/client"
	"github.com/leftmike/pkbench/form"
)

var (
	tablesCmd = &cobra.Command{
		Use:   "tables [table]",
		Short: "List the tables, or the columns of a table",
		Args:  cobra.MaximumNArgs(1),
		RunE:  tablesRun,
	}

	browseCmd = &cobra.Command{
		Use:   "browse <table>",
		Short: "Show the rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE:  browseRun,
	}

	insertCmd = &cobra.Command{
		Use:   "insert <table> column=value ...",
		Short: "Insert a row and report its latency",
		Args:  cobra.MinimumNArgs(1),
		RunE:  insertRun,
	}

	queryCmd = &cobra.Command{
		Use:   "query <table> <key>",
		Short: "Query a row by primary key and report its latency",
		Args:  cobra.ExactArgs(2),
		RunE:  queryRun,
	}

	browseLimit *int
)

func init() {
	browseLimit = cfg.Var(new(int), "limit").
		Flags(browseCmd.Flags()).
		Usage("maximum rows to browse; 0 for all").
		Int(0)

	pkbenchCmd.AddCommand(tablesCmd, browseCmd, insertCmd, queryCmd)
}

func tablesRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	c, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	rw, err := newWriter(cmd)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		tables, err := c.Catalog().Discover(ctx)
		if err != nil {
			return err
		}

		var rows [][]string
		raw := []map[string]interface{}{}
		for _, tbl := range tables {
			pk := strings.Join(tbl.PrimaryKey, ", ")
			rows = append(rows, []string{tbl.Name, strconv.Itoa(len(tbl.Columns)), pk})
			raw = append(raw, map[string]interface{}{
				"table":       tbl.Name,
				"columns":     len(tbl.Columns),
				"primary_key": tbl.PrimaryKey,
			})
		}
		return rw.Table([]string{"table", "columns", "primary key"}, rows, raw)
	}

	tbl, err := c.Catalog().Table(ctx, args[0])
	if err != nil {
		return err
	}
	pk := map[string]bool{}
	for _, nam := range tbl.PrimaryKey {
		pk[nam] = true
	}

	var rows [][]string
	var raw []map[string]interface{}
	for _, col := range tbl.Columns {
		var key string
		if pk[col.Name] {
			key = "yes"
		}
		rows = append(rows, []string{col.Name, col.DataType, col.Kind.String(), key})
		raw = append(raw, map[string]interface{}{
			"name":        col.Name,
			"type":        col.DataType,
			"kind":        col.Kind.String(),
			"primary_key": pk[col.Name],
		})
	}
	return rw.Table([]string{"column", "type", "kind", "pk"}, rows, raw)
}

func browseRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	c, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.Browse(ctx, args[0], *browseLimit)
	if err != nil {
		return err
	}
	rw, err := newWriter(cmd)
	if err != nil {
		return err
	}
	return rw.Rows(res)
}

func insertRun(cmd *cobra.Command, args []string) error {
	vals, err := form.ParseAssignments(args[1:])
	if err != nil {
		return err
	}

	ctx, cancel := runContext()
	defer cancel()

	c, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	f, err := c.NewForm(ctx, args[0])
	if err != nil {
		return err
	}
	err = f.SetAll(vals)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, fld := range f.Fields {
		if fld.Value == "" {
			fld.Value = fld.Default(now)
		}
	}

	d, err := c.InsertRow(ctx, f)
	if err != nil {
		return err
	}
	rw, err := newWriter(cmd)
	if err != nil {
		return err
	}
	return rw.Insert(f.Table, d)
}

func queryRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	c, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.QueryByKey(ctx, args[0], args[1])
	if errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("pkbench: no results found for %s in %s (%.2f ms)", args[1],
			args[0], bench.Milliseconds(res.Latency))
	} else if err != nil {
		return err
	}
	rw, err := newWriter(cmd)
	if err != nil {
		return err
	}
	return rw.Query(res)
}
