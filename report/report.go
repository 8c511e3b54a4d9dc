package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/leftmike/pkbench/bench"
	"github.com/leftmike/pkbench/client"
	"github.com/leftmike/pkbench/history"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

func ValidateFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON, FormatYAML:
		return nil
	}
	return fmt.Errorf("report: invalid format %q: expected table, json, or yaml", format)
}

type Writer struct {
	w      io.Writer
	format string
	Now    func() time.Time
}

func New(w io.Writer, format string) (*Writer, error) {
	err := ValidateFormat(format)
	if err != nil {
		return nil, err
	}
	return &Writer{
		w:      w,
		format: format,
	}, nil
}

func (rw *Writer) now() time.Time {
	if rw.Now != nil {
		return rw.Now()
	}
	return time.Now()
}

func (rw *Writer) encode(raw interface{}) error {
	if rw.format == FormatJSON {
		enc := json.NewEncoder(rw.w)
		enc.SetIndent("", "  ")
		return enc.Encode(raw)
	}

	enc := yaml.NewEncoder(rw.w)
	enc.SetIndent(2)
	err := enc.Encode(raw)
	if err != nil {
		return err
	}
	return enc.Close()
}

func (rw *Writer) table(header []string, rows [][]string) *tablewriter.Table {
	tw := tablewriter.NewWriter(rw.w)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	if header != nil {
		tw.SetHeader(header)
	}
	tw.AppendBulk(rows)
	return tw
}

// Table writes rows under header as a table; json and yaml output raw.
func (rw *Writer) Table(header []string, rows [][]string, raw interface{}) error {
	if rw.format != FormatTable {
		return rw.encode(raw)
	}
	rw.table(header, rows).Render()
	return nil
}

// Message writes a line of text in table format only.
func (rw *Writer) Message(format string, args ...interface{}) {
	if rw.format == FormatTable {
		fmt.Fprintf(rw.w, format+"\n", args...)
	}
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2f", bench.Milliseconds(d))
}

func rowsDoc(res *client.Result) []map[string]string {
	doc := []map[string]string{}
	for _, row := range res.Rows {
		m := map[string]string{}
		for cdx, col := range res.Columns {
			if cdx < len(row) {
				m[col] = row[cdx]
			}
		}
		doc = append(doc, m)
	}
	return doc
}

// Rows writes the rows of a query or browse.
func (rw *Writer) Rows(res *client.Result) error {
	if rw.format != FormatTable {
		return rw.encode(rowsDoc(res))
	}

	tw := rw.table(res.Columns, res.Rows)
	tw.Render()
	fmt.Fprintf(rw.w, "(%s rows)\n", humanize.Comma(int64(tw.NumLines())))
	return nil
}

// Query writes the result of a single query by key along with its latency.
func (rw *Writer) Query(res *client.Result) error {
	if rw.format != FormatTable {
		return rw.encode(map[string]interface{}{
			"table":      res.Table,
			"latency_ms": bench.Milliseconds(res.Latency),
			"rows":       rowsDoc(res),
		})
	}

	err := rw.Rows(res)
	if err != nil {
		return err
	}
	fmt.Fprintf(rw.w, "Query Latency: %s ms\n", ms(res.Latency))
	return nil
}

func (rw *Writer) Insert(table string, latency time.Duration) error {
	if rw.format != FormatTable {
		return rw.encode(map[string]interface{}{
			"table":      table,
			"latency_ms": bench.Milliseconds(latency),
		})
	}

	fmt.Fprintf(rw.w, "Inserted 1 row into %s in %s ms\n", table, ms(latency))
	return nil
}

func latencyRows(rpt bench.LatencyReport) [][]string {
	return [][]string{
		{"trials", humanize.Comma(int64(rpt.Trials))},
		{"valid", humanize.Comma(int64(rpt.Valid))},
		{"failed", humanize.Comma(int64(rpt.Failed))},
		{"mean (ms)", ms(rpt.Mean)},
		{"min (ms)", ms(rpt.Min)},
		{"p50 (ms)", ms(rpt.P50)},
		{"p90 (ms)", ms(rpt.P90)},
		{"p99 (ms)", ms(rpt.P99)},
		{"max (ms)", ms(rpt.Max)},
		{"stddev (ms)", ms(rpt.StdDev)},
	}
}

func (rw *Writer) Latency(rpt bench.LatencyReport) error {
	if rw.format != FormatTable {
		return rw.encode(rpt.Results())
	}

	if rpt.Valid == 0 {
		fmt.Fprintln(rw.w, "No valid query results were returned.")
		return nil
	}
	fmt.Fprintf(rw.w, "Average Query Latency over %d iterations: %s ms\n", rpt.Valid,
		ms(rpt.Mean))
	rw.table([]string{"statistic", "value"}, latencyRows(rpt)).Render()
	return nil
}

func (rw *Writer) Throughput(rpt bench.ThroughputReport) error {
	if rw.format != FormatTable {
		return rw.encode(rpt.Results())
	}

	fmt.Fprintf(rw.w,
		"Throughput: %.2f operations per second (%s completed, %s failed, %d concurrent, "+
			"%.2f seconds)\n",
		rpt.OpsPerSec, humanize.Comma(int64(rpt.Completed)), humanize.Comma(int64(rpt.Failed)),
		rpt.Concurrency, rpt.Elapsed.Seconds())
	if rpt.Latency.Valid > 0 {
		rw.table([]string{"statistic", "value"}, latencyRows(rpt.Latency)).Render()
	}
	return nil
}

func summary(rec *history.Record) string {
	if ops, ok := rec.Results["ops_per_sec"]; ok {
		return fmt.Sprintf("%.2f ops/sec", ops)
	}
	if mean, ok := rec.Results["mean_ms"]; ok {
		return fmt.Sprintf("mean %.2f ms", mean)
	}
	return ""
}

type recordDoc struct {
	ID      string                 `json:"id" yaml:"id"`
	Kind    string                 `json:"kind" yaml:"kind"`
	Target  string                 `json:"target" yaml:"target"`
	Table   string                 `json:"table,omitempty" yaml:"table,omitempty"`
	Started time.Time              `json:"started" yaml:"started"`
	Params  map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
	Results map[string]float64     `json:"results" yaml:"results"`
}

func makeRecordDoc(rec *history.Record) recordDoc {
	return recordDoc{
		ID:      rec.ID.String(),
		Kind:    rec.Kind,
		Target:  rec.Target,
		Table:   rec.Table,
		Started: rec.StartedAt.UTC(),
		Params:  rec.Params,
		Results: rec.Results,
	}
}

func (rw *Writer) History(recs []*history.Record) error {
	if rw.format != FormatTable {
		docs := []recordDoc{}
		for _, rec := range recs {
			docs = append(docs, makeRecordDoc(rec))
		}
		return rw.encode(docs)
	}

	now := rw.now()
	var rows [][]string
	for _, rec := range recs {
		rows = append(rows, []string{
			rec.ID.String(),
			rec.Kind,
			rec.Target,
			rec.Table,
			humanize.RelTime(rec.StartedAt, now, "ago", "from now"),
			summary(rec),
		})
	}
	rw.table([]string{"id", "kind", "target", "table", "started", "result"}, rows).Render()
	fmt.Fprintf(rw.w, "(%s runs)\n", humanize.Comma(int64(len(recs))))
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	var keys []string
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (rw *Writer) Record(rec *history.Record) error {
	if rw.format != FormatTable {
		return rw.encode(makeRecordDoc(rec))
	}

	rows := [][]string{
		{"id", rec.ID.String()},
		{"kind", rec.Kind},
		{"target", rec.Target},
		{"table", rec.Table},
		{"started", rec.StartedAt.UTC().Format(time.RFC3339)},
	}
	for _, key := range sortedKeys(rec.Params) {
		rows = append(rows, []string{key, fmt.Sprint(rec.Params[key])})
	}

	results := map[string]interface{}{}
	for key, val := range rec.Results {
		results[key] = val
	}
	for _, key := range sortedKeys(results) {
		val := rec.Results[key]
		if strings.HasSuffix(key, "_ms") || strings.HasSuffix(key, "_s") ||
			key == "ops_per_sec" {

			rows = append(rows, []string{key, fmt.Sprintf("%.2f", val)})
		} else {
			rows = append(rows, []string{key, humanize.Comma(int64(val))})
		}
	}
	rw.table([]string{"field", "value"}, rows).Render()
	return nil
}
