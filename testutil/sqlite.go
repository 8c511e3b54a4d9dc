package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/leftmike/pkbench/client"
	"github.com/leftmike/pkbench/dialect"
)

// Singers creates the Singers table used throughout the tests, with three
// rows inserted out of key order.
var Singers = []string{
	`CREATE TABLE Singers (SingerId INTEGER PRIMARY KEY, FirstName TEXT, BirthDate DATE)`,
	`INSERT INTO Singers VALUES (10, 'Marc', '1970-01-02'), (2, 'Catalina', '1980-03-04'),
		(1, 'Alice', '1990-05-06')`,
}

// SQLiteFile returns the name of a new sqlite3 database in a temporary
// directory after running stmts against it.
func SQLiteFile(t *testing.T, stmts ...string) string {
	t.Helper()

	file := filepath.Join(t.TempDir(), "pkbench.db")
	c := OpenClient(t, file)
	for _, s := range stmts {
		err := c.Exec(context.Background(), s)
		if err != nil {
			t.Fatalf("Exec(%q) failed with %s", s, err)
		}
	}
	return file
}

// OpenClient opens a client on the sqlite3 database in file; the client is
// closed when the test finishes.
func OpenClient(t *testing.T, file string) *client.Client {
	t.Helper()

	c, err := client.Open(context.Background(),
		client.Options{
			Driver:   "sqlite3",
			ConnInfo: dialect.ConnInfo{Database: file},
		})
	if err != nil {
		t.Fatalf("Open(%s) failed with %s", file, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
