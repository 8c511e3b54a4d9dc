package dialect_test

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/leftmike/pkbench/dialect"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		s string
		k dialect.Kind
	}{
		{"INT64", dialect.Int},
		{"integer", dialect.Int},
		{"bigint unsigned", dialect.Int},
		{"STRING(MAX)", dialect.String},
		{"character varying", dialect.String},
		{"VARCHAR(255)", dialect.String},
		{"DATE", dialect.Date},
		{"timestamp with time zone", dialect.Timestamp},
		{"numeric(10, 2)", dialect.Float},
		{"bytea", dialect.Bytes},
		{"boolean", dialect.Bool},
		{"jsonb", dialect.Other},
		{"", dialect.Other},
	}

	for _, c := range cases {
		k := dialect.KindOf(c.s)
		if k != c.k {
			t.Errorf("KindOf(%q) got %s want %s", c.s, k, c.k)
		}
	}
}

func TestLookup(t *testing.T) {
	cases := []struct {
		driver string
		name   string
		ph     string
		quoted string
		fail   bool
	}{
		{driver: "postgres", name: "postgres", ph: "$2", quoted: `"a""b"`},
		{driver: "pgx", name: "postgres", ph: "$2", quoted: `"a""b"`},
		{driver: "MySQL", name: "mysql", ph: "?", quoted: "`a\"b`"},
		{driver: "sqlite3", name: "sqlite3", ph: "?", quoted: `"a""b"`},
		{driver: "spanner", fail: true},
	}

	for _, c := range cases {
		d, err := dialect.Lookup(c.driver, "")
		if c.fail {
			if err == nil {
				t.Errorf("Lookup(%q) did not fail", c.driver)
			}
			continue
		}
		if err != nil {
			t.Errorf("Lookup(%q) failed with %s", c.driver, err)
			continue
		}
		if d.Name() != c.name {
			t.Errorf("Lookup(%q).Name() got %s want %s", c.driver, d.Name(), c.name)
		}
		if ph := d.Placeholder(2); ph != c.ph {
			t.Errorf("Lookup(%q).Placeholder(2) got %s want %s", c.driver, ph, c.ph)
		}
		if q := d.QuoteIdent(`a"b`); q != c.quoted {
			t.Errorf("Lookup(%q).QuoteIdent() got %s want %s", c.driver, q, c.quoted)
		}
	}
}

func TestDSN(t *testing.T) {
	ci := dialect.ConnInfo{
		Host:     "db.example.com",
		Port:     "5432",
		User:     "bench",
		Password: "it's secret",
		Database: "test",
	}

	cases := []struct {
		driver string
		dsn    string
	}{
		{"postgres",
			`host=db.example.com port=5432 user=bench password='it\'s secret' dbname=test sslmode=disable`},
		{"mysql", "bench:it's secret@tcp(db.example.com:5432)/test"},
		{"sqlite3", "test"},
	}

	for _, c := range cases {
		d, err := dialect.Lookup(c.driver, "")
		if err != nil {
			t.Fatal(err)
		}
		dsn := d.DSN(ci)
		if dsn != c.dsn {
			t.Errorf("%s.DSN() got %s want %s", c.driver, dsn, c.dsn)
		}
	}
}

func TestSQLiteMetadata(t *testing.T) {
	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	db.MustExec(`CREATE TABLE Singers (SingerId INTEGER PRIMARY KEY, FirstName TEXT,
BirthDate DATE)`)
	db.MustExec(`CREATE TABLE Albums (SingerId INTEGER, AlbumId INTEGER, Title VARCHAR(64),
PRIMARY KEY (SingerId, AlbumId))`)

	d, err := dialect.Lookup("sqlite3", "")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	tables, err := d.Tables(ctx, db)
	if err != nil {
		t.Fatalf("Tables() failed with %s", err)
	}
	if !reflect.DeepEqual(tables, []string{"Albums", "Singers"}) {
		t.Errorf("Tables() got %v", tables)
	}

	cols, err := d.Columns(ctx, db, "Singers")
	if err != nil {
		t.Fatalf("Columns(Singers) failed with %s", err)
	}
	want := []dialect.Column{
		{Name: "SingerId", DataType: "INTEGER", Kind: dialect.Int},
		{Name: "FirstName", DataType: "TEXT", Kind: dialect.String},
		{Name: "BirthDate", DataType: "DATE", Kind: dialect.Date},
	}
	if !reflect.DeepEqual(cols, want) {
		t.Errorf("Columns(Singers) got %v want %v", cols, want)
	}

	pk, err := d.PrimaryKey(ctx, db, "Albums")
	if err != nil {
		t.Fatalf("PrimaryKey(Albums) failed with %s", err)
	}
	if !reflect.DeepEqual(pk, []string{"SingerId", "AlbumId"}) {
		t.Errorf("PrimaryKey(Albums) got %v", pk)
	}
}
