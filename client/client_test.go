package client_test

import (
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/leftmike/pkbench/client"
	"github.com/leftmike/pkbench/dialect"
	"github.com/leftmike/pkbench/form"
	"github.com/leftmike/pkbench/schema"
	"github.com/leftmike/pkbench/testutil"
)

func openClient(t *testing.T) *client.Client {
	t.Helper()

	c, err := client.Open(context.Background(),
		client.Options{
			Driver:   "sqlite3",
			ConnInfo: dialect.ConnInfo{Database: filepath.Join(t.TempDir(), "client.db")},
		})
	if err != nil {
		t.Fatalf("Open() failed with %s", err)
	}
	t.Cleanup(func() { c.Close() })

	for _, s := range []string{
		`CREATE TABLE Singers (SingerId INTEGER PRIMARY KEY, FirstName TEXT, BirthDate DATE)`,
		`INSERT INTO Singers VALUES (1, 'Marc', '1970-01-02'), (2, 'Catalina', NULL)`,
		`CREATE TABLE Prices (Price REAL PRIMARY KEY, Label TEXT)`,
		`CREATE TABLE Tags (Tag TEXT PRIMARY KEY)`,
		`INSERT INTO Tags VALUES ('rock')`,
	} {
		err := c.Exec(context.Background(), s)
		if err != nil {
			t.Fatalf("Exec(%q) failed with %s", s, err)
		}
	}
	return c
}

func TestMain(m *testing.M) {
	flag.Parse()
	testutil.SetupLogger()
	os.Exit(m.Run())
}

func TestQueryByKey(t *testing.T) {
	c := openClient(t)
	ctx := context.Background()

	res, err := c.QueryByKey(ctx, "Singers", "1")
	if err != nil {
		t.Fatalf("QueryByKey(Singers, 1) failed with %s", err)
	}
	if !reflect.DeepEqual(res.Columns, []string{"SingerId", "FirstName", "BirthDate"}) {
		t.Errorf("QueryByKey(Singers, 1) got columns %v", res.Columns)
	}
	if !reflect.DeepEqual(res.Rows, [][]string{{"1", "Marc", "1970-01-02"}}) {
		t.Errorf("QueryByKey(Singers, 1) got rows %v", res.Rows)
	}
	if res.Latency <= 0 {
		t.Errorf("QueryByKey(Singers, 1) got latency %s", res.Latency)
	}

	res, err = c.QueryByKey(ctx, "tags", "rock")
	if err != nil {
		t.Fatalf("QueryByKey(tags, rock) failed with %s", err)
	}
	if len(res.Rows) != 1 || res.Table != "Tags" {
		t.Errorf("QueryByKey(tags, rock) got %v", res)
	}

	res, err = c.QueryByKey(ctx, "Singers", "99")
	if !errors.Is(err, client.ErrNotFound) {
		t.Errorf("QueryByKey(Singers, 99) got %v want ErrNotFound", err)
	} else if res == nil || len(res.Rows) != 0 {
		t.Errorf("QueryByKey(Singers, 99) got result %v", res)
	}

	_, err = c.QueryByKey(ctx, "Prices", "1.5")
	if !errors.Is(err, schema.ErrUnsupportedKeyType) {
		t.Errorf("QueryByKey(Prices, 1.5) got %v want ErrUnsupportedKeyType", err)
	}

	_, err = c.QueryByKey(ctx, "Singers", "one")
	if err == nil {
		t.Errorf("QueryByKey(Singers, one) did not fail")
	}

	_, err = c.QueryByKey(ctx, "Albums", "1")
	if !errors.Is(err, schema.ErrUnknownTable) {
		t.Errorf("QueryByKey(Albums, 1) got %v want ErrUnknownTable", err)
	}
}

func TestInsertRow(t *testing.T) {
	c := openClient(t)
	ctx := context.Background()

	f, err := c.NewForm(ctx, "Singers")
	if err != nil {
		t.Fatalf("NewForm(Singers) failed with %s", err)
	}
	f.Now = func() time.Time { return time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC) }

	f.Set("SingerId", "3")
	_, err = c.InsertRow(ctx, f)
	if !errors.Is(err, form.ErrEmptyField) {
		t.Fatalf("InsertRow(empty FirstName) got %v want ErrEmptyField", err)
	}

	f.Set("FirstName", "Alice")
	d, err := c.InsertRow(ctx, f)
	if err != nil {
		t.Fatalf("InsertRow() failed with %s", err)
	}
	if d <= 0 {
		t.Errorf("InsertRow() got latency %s", d)
	}

	res, err := c.QueryByKey(ctx, "Singers", "3")
	if err != nil {
		t.Fatalf("QueryByKey(Singers, 3) failed with %s", err)
	}
	if !reflect.DeepEqual(res.Rows, [][]string{{"3", "Alice", "2024-05-01"}}) {
		t.Errorf("QueryByKey(Singers, 3) got %v", res.Rows)
	}

	_, err = c.InsertRow(ctx, f)
	if err == nil {
		t.Errorf("InsertRow(duplicate key) did not fail")
	}
}

func TestQueryOp(t *testing.T) {
	c := openClient(t)
	ctx := context.Background()

	op, err := c.QueryOp(ctx, "Singers", "2")
	if err != nil {
		t.Fatalf("QueryOp(Singers, 2) failed with %s", err)
	}
	d, err := op(ctx, 0)
	if err != nil || d <= 0 {
		t.Errorf("QueryOp(Singers, 2)() got %s, %v", d, err)
	}

	op, err = c.QueryOp(ctx, "Singers", "42")
	if err != nil {
		t.Fatalf("QueryOp(Singers, 42) failed with %s", err)
	}
	_, err = op(ctx, 0)
	if !errors.Is(err, client.ErrNotFound) {
		t.Errorf("QueryOp(Singers, 42)() got %v want ErrNotFound", err)
	}

	_, err = c.QueryOp(ctx, "Missing", "1")
	if !errors.Is(err, schema.ErrUnknownTable) {
		t.Errorf("QueryOp(Missing, 1) got %v want ErrUnknownTable", err)
	}
	_, err = c.QueryOp(ctx, "Singers", "one")
	if err == nil {
		t.Errorf("QueryOp(Singers, one) did not fail")
	}
}

func TestInsertOp(t *testing.T) {
	c := openClient(t)
	ctx := context.Background()

	f, err := c.NewForm(ctx, "Singers")
	if err != nil {
		t.Fatalf("NewForm(Singers) failed with %s", err)
	}
	err = f.SetAll(map[string]string{
		"SingerId":  "{seq}",
		"FirstName": "singer-{seq}",
	})
	if err != nil {
		t.Fatalf("SetAll() failed with %s", err)
	}

	op := c.InsertOp(form.NewTemplate(f))
	for seq := 10; seq < 13; seq++ {
		_, err := op(ctx, seq)
		if err != nil {
			t.Fatalf("InsertOp()(%d) failed with %s", seq, err)
		}
	}

	res, err := c.QueryByKey(ctx, "Singers", "12")
	if err != nil {
		t.Fatalf("QueryByKey(Singers, 12) failed with %s", err)
	}
	if res.Rows[0][1] != "singer-12" {
		t.Errorf("QueryByKey(Singers, 12) got %v", res.Rows)
	}
}

func TestBrowse(t *testing.T) {
	c := openClient(t)
	ctx := context.Background()

	res, err := c.Browse(ctx, "Singers", 0)
	if err != nil {
		t.Fatalf("Browse(Singers) failed with %s", err)
	}
	want := [][]string{
		{"1", "Marc", "1970-01-02"},
		{"2", "Catalina", "NULL"},
	}
	if !reflect.DeepEqual(res.Rows, want) {
		t.Errorf("Browse(Singers) got %v want %v", res.Rows, want)
	}

	res, err = c.Browse(ctx, "Singers", 1)
	if err != nil {
		t.Fatalf("Browse(Singers, 1) failed with %s", err)
	}
	if len(res.Rows) != 1 {
		t.Errorf("Browse(Singers, 1) got %d rows", len(res.Rows))
	}

	res, err = c.Browse(ctx, "Prices", 10)
	if err != nil {
		t.Fatalf("Browse(Prices) failed with %s", err)
	}
	if len(res.Rows) != 0 || len(res.Columns) != 2 {
		t.Errorf("Browse(Prices) got %v", res)
	}

	_, err = c.Browse(ctx, `Singers"; DROP TABLE "Singers`, 10)
	if !errors.Is(err, schema.ErrUnknownTable) {
		t.Errorf("Browse(injection) got %v want ErrUnknownTable", err)
	}
}

func TestLookupSQL(t *testing.T) {
	c := openClient(t)

	query, _, col, err := c.LookupSQL(context.Background(), "singers")
	if err != nil {
		t.Fatalf("LookupSQL(singers) failed with %s", err)
	}
	if query != `SELECT * FROM "Singers" WHERE "SingerId" = ?` {
		t.Errorf("LookupSQL(singers) got %s", query)
	}
	if col.Kind != dialect.Int {
		t.Errorf("LookupSQL(singers) got key kind %s", col.Kind)
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		v interface{}
		s string
	}{
		{nil, "NULL"},
		{[]byte("abc"), "abc"},
		{int64(12), "12"},
		{1.5, "1.5"},
		{true, "true"},
		{time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC), "2024-01-02"},
		{time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC), "2024-01-02T03:04:05Z"},
	}

	for _, c := range cases {
		s := client.FormatValue(c.v)
		if s != c.s {
			t.Errorf("FormatValue(%v) got %s want %s", c.v, s, c.s)
		}
	}
}
