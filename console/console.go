package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/pkbench/bench"
	"github.com/leftmike/pkbench/client"
	"github.com/leftmike/pkbench/dialect"
	"github.com/leftmike/pkbench/form"
	"github.com/leftmike/pkbench/history"
	"github.com/leftmike/pkbench/report"
	"github.com/leftmike/pkbench/rowcache"
)

const (
	prompt = "pkbench> "
)

type Prompter interface {
	Prompt(prompt string) (string, error)
}

type defaultPrompter interface {
	PromptDefault(prompt, def string) (string, error)
}

// Console runs commands typed at a prompt until quit or end of input. Errors
// are reported and the console keeps going.
type Console struct {
	Client      *client.Client
	Prompter    Prompter
	Out         io.Writer
	Format      string
	PageSize    int
	BrowseLimit int
	Iterations  int
	Count       int
	Concurrency int
	Save        func(rec *history.Record)
	Now         func() time.Time

	// Interrupt returns the context for one command; it defaults to a context
	// cancelled by an interrupt, which stops that command only.
	Interrupt func(ctx context.Context) (context.Context, context.CancelFunc)

	rw    *report.Writer
	cache *rowcache.Cache
	next  string
	more  bool
}

type command struct {
	args     string
	help     string
	min, max int
	run      func(con *Console, ctx context.Context, args []string) error
}

var commands map[string]*command

func init() {
	commands = map[string]*command{
		"tables": {
			help: "list the tables",
			run:  (*Console).tables,
		},
		"browse": {
			args: "<table> [limit]",
			help: "show the rows of a table a page at a time",
			min:  1,
			max:  2,
			run:  (*Console).browse,
		},
		"more": {
			help: "show the next page of rows",
			run:  (*Console).nextPage,
		},
		"insert": {
			args: "<table> [column=value ...]",
			help: "insert a row, prompting for each column not given",
			min:  1,
			max:  -1,
			run:  (*Console).insert,
		},
		"query": {
			args: "<table> <key>",
			help: "query a row by primary key",
			min:  2,
			max:  2,
			run:  (*Console).query,
		},
		"latency": {
			args: "<table> <key> [iterations]",
			help: "measure the average latency of querying a row by primary key",
			min:  2,
			max:  3,
			run:  (*Console).latency,
		},
		"throughput": {
			args: "<table> <key> [count]",
			help: "measure how many queries by primary key complete per second",
			min:  2,
			max:  3,
			run:  (*Console).throughput,
		},
		"help": {
			help: "list the commands",
			run:  (*Console).help,
		},
	}
}

func (con *Console) now() time.Time {
	if con.Now != nil {
		return con.Now()
	}
	return time.Now()
}

func (con *Console) Run(ctx context.Context) error {
	if con.Format == "" {
		con.Format = report.FormatTable
	}
	rw, err := report.New(con.Out, con.Format)
	if err != nil {
		return err
	}
	con.rw = rw

	for {
		s, err := con.Prompter.Prompt(prompt)
		if err == io.EOF || err == liner.ErrPromptAborted {
			fmt.Fprintln(con.Out)
			return nil
		} else if err != nil {
			return err
		}

		quit, err := con.execute(ctx, s)
		if err != nil {
			fmt.Fprintf(con.Out, "error: %s\n", err)
		}
		if quit || ctx.Err() != nil {
			return nil
		}
	}
}

func (con *Console) execute(ctx context.Context, line string) (bool, error) {
	interrupt := con.Interrupt
	if interrupt == nil {
		interrupt = func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		}
	}

	cctx, stop := interrupt(ctx)
	defer stop()

	quit, err := con.Execute(cctx, line)
	if cctx.Err() != nil && ctx.Err() == nil {
		log.WithField("command", line).Info("console command interrupted")
		return quit, errors.New("interrupted")
	}
	return quit, err
}

// Execute runs one command line and returns true if the console should quit.
func (con *Console) Execute(ctx context.Context, line string) (bool, error) {
	if con.rw == nil {
		rw, err := report.New(con.Out, report.FormatTable)
		if err != nil {
			return false, err
		}
		con.rw = rw
	}

	args, err := splitArgs(line)
	if err != nil {
		return false, err
	}
	if len(args) == 0 {
		return false, nil
	}

	nam := strings.ToLower(args[0])
	if nam == "quit" || nam == "exit" {
		return true, nil
	}
	cmd, ok := commands[nam]
	if !ok {
		return false, fmt.Errorf("unknown command %s; try help", args[0])
	}
	args = args[1:]
	if len(args) < cmd.min || (cmd.max >= 0 && len(args) > cmd.max) {
		return false, fmt.Errorf("usage: %s %s", nam, cmd.args)
	}

	log.WithFields(log.Fields{
		"command": nam,
		"args":    args,
	}).Debug("console command")
	return false, cmd.run(con, ctx, args)
}

// splitArgs splits a line into words; single or double quotes group words
// and may appear in the middle of one, as in name="Mary Ann".
func splitArgs(line string) ([]string, error) {
	var args []string
	var b strings.Builder
	var quote rune
	var inArg bool

	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				b.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, b.String())
				b.Reset()
				inArg = false
			}
		default:
			b.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("missing closing %c", quote)
	}
	if inArg {
		args = append(args, b.String())
	}
	return args, nil
}

func (con *Console) help(ctx context.Context, args []string) error {
	var names []string
	for nam := range commands {
		names = append(names, nam)
	}
	sort.Strings(names)

	for _, nam := range names {
		cmd := commands[nam]
		fmt.Fprintf(con.Out, "  %-40s %s\n", strings.TrimSpace(nam+" "+cmd.args), cmd.help)
	}
	fmt.Fprintf(con.Out, "  %-40s %s\n", "quit", "leave the console")
	return nil
}

func (con *Console) tables(ctx context.Context, args []string) error {
	names, err := con.Client.Catalog().TableNames(ctx)
	if err != nil {
		return err
	}

	var rows [][]string
	for _, nam := range names {
		rows = append(rows, []string{nam})
	}
	return con.rw.Table([]string{"table"}, rows, names)
}

func parseCount(s, what string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive number: %s", what, s)
	}
	return n, nil
}

func (con *Console) browse(ctx context.Context, args []string) error {
	limit := con.BrowseLimit
	if len(args) > 1 {
		var err error
		limit, err = parseCount(args[1], "limit")
		if err != nil {
			return err
		}
	}

	res, err := con.Client.Browse(ctx, args[0], limit)
	if err != nil {
		return err
	}

	keyCol := -1
	kind := dialect.Other
	tbl, err := con.Client.Catalog().Table(ctx, res.Table)
	if err != nil {
		return err
	}
	if col, err := tbl.KeyColumn(); err == nil {
		cdx := tbl.ColumnIndex(col.Name)
		if cdx >= 0 && cdx < len(res.Columns) && res.Columns[cdx] == col.Name {
			keyCol = cdx
			kind = col.Kind
		}
	}

	con.cache = rowcache.New(res.Columns, keyCol, kind)
	for _, row := range res.Rows {
		con.cache.Add(row)
	}
	return con.page(con.cache.First(con.pageSize()))
}

func (con *Console) nextPage(ctx context.Context, args []string) error {
	if con.cache == nil || !con.more {
		return errors.New("nothing more to browse")
	}
	return con.page(con.cache.Page(con.next, con.pageSize()))
}

func (con *Console) pageSize() int {
	if con.PageSize <= 0 {
		return 20
	}
	return con.PageSize
}

func (con *Console) page(rows [][]string, next string, more bool) error {
	con.next = next
	con.more = more

	err := con.rw.Rows(&client.Result{
		Columns: con.cache.Columns,
		Rows:    rows,
	})
	if err != nil {
		return err
	}
	if con.more {
		con.rw.Message("%d rows in all; type more to see the next page.", con.cache.Len())
	}
	return nil
}

func (con *Console) promptDefault(prompt, def string) (string, error) {
	if def == "" {
		return con.Prompter.Prompt(prompt)
	}
	if dp, ok := con.Prompter.(defaultPrompter); ok {
		return dp.PromptDefault(prompt, def)
	}
	s, err := con.Prompter.Prompt(fmt.Sprintf("%s[%s] ", prompt, def))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	return s, nil
}

func (con *Console) insert(ctx context.Context, args []string) error {
	f, err := con.Client.NewForm(ctx, args[0])
	if err != nil {
		return err
	}
	f.Now = con.now

	vals, err := form.ParseAssignments(args[1:])
	if err != nil {
		return err
	}
	err = f.SetAll(vals)
	if err != nil {
		return err
	}

	now := con.now()
	for _, fld := range f.Fields {
		if fld.Value != "" {
			continue
		}
		s, err := con.promptDefault(
			fmt.Sprintf("%s (%s): ", fld.Column.Name, fld.Column.DataType), fld.Default(now))
		if err != nil {
			return err
		}
		fld.Value = strings.TrimSpace(s)
	}

	d, err := con.Client.InsertRow(ctx, f)
	if err != nil {
		return err
	}
	f.Clear()
	return con.rw.Insert(f.Table, d)
}

func (con *Console) query(ctx context.Context, args []string) error {
	res, err := con.Client.QueryByKey(ctx, args[0], args[1])
	if errors.Is(err, client.ErrNotFound) {
		con.rw.Message("No results found. (%.2f ms)", bench.Milliseconds(res.Latency))
		return nil
	} else if err != nil {
		return err
	}
	return con.rw.Query(res)
}

func (con *Console) save(kind, table string, started time.Time,
	params map[string]interface{}, results map[string]float64) {

	if con.Save == nil {
		return
	}
	con.Save(&history.Record{
		Kind:      kind,
		Target:    con.Client.Target(),
		Table:     table,
		StartedAt: started,
		Params:    params,
		Results:   results,
	})
}

func (con *Console) latency(ctx context.Context, args []string) error {
	n := con.Iterations
	if len(args) > 2 {
		var err error
		n, err = parseCount(args[2], "iterations")
		if err != nil {
			return err
		}
	}
	if n <= 0 {
		n = 10
	}

	op, err := con.Client.QueryOp(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	started := con.now()
	rpt, err := bench.Latency(ctx, bench.LatencyConfig{Iterations: n}, op)
	if err != nil {
		return err
	}

	con.save("latency", args[0], started,
		map[string]interface{}{
			"key":        args[1],
			"iterations": n,
		}, rpt.Results())
	return con.rw.Latency(rpt)
}

func (con *Console) throughput(ctx context.Context, args []string) error {
	n := con.Count
	if len(args) > 2 {
		var err error
		n, err = parseCount(args[2], "count")
		if err != nil {
			return err
		}
	}
	if n <= 0 {
		n = 100
	}
	concurrency := con.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	op, err := con.Client.QueryOp(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	started := con.now()
	rpt, err := bench.Throughput(ctx,
		bench.ThroughputConfig{Count: n, Concurrency: concurrency}, op)
	if err != nil {
		return err
	}

	con.save("throughput", args[0], started,
		map[string]interface{}{
			"key":         args[1],
			"count":       n,
			"concurrency": concurrency,
		}, rpt.Results())
	return con.rw.Throughput(rpt)
}
