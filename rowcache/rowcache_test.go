package rowcache_test

import (
	"reflect"
	"testing"

	"github.com/leftmike/pkbench/dialect"
	"github.com/leftmike/pkbench/rowcache"
)

func keys(rows [][]string, col int) []string {
	var ks []string
	for _, row := range rows {
		ks = append(ks, row[col])
	}
	return ks
}

func TestIntKeys(t *testing.T) {
	c := rowcache.New([]string{"id", "name"}, 0, dialect.Int)
	for _, id := range []string{"10", "2", "33", "1", "9"} {
		c.Add([]string{id, "name-" + id})
	}
	c.Add([]string{"2", "replaced"})

	if c.Len() != 5 {
		t.Errorf("Len() got %d want 5", c.Len())
	}

	rows, next, more := c.First(2)
	if !reflect.DeepEqual(keys(rows, 0), []string{"1", "2"}) || next != "2" || !more {
		t.Errorf("First(2) got %v, %q, %v", rows, next, more)
	}
	rows, next, more = c.Page(next, 2)
	if !reflect.DeepEqual(keys(rows, 0), []string{"9", "10"}) || next != "10" || !more {
		t.Errorf("Page(2, 2) got %v, %q, %v", rows, next, more)
	}
	rows, next, more = c.Page(next, 2)
	if !reflect.DeepEqual(keys(rows, 0), []string{"33"}) || more {
		t.Errorf("Page(10, 2) got %v, %q, %v", rows, next, more)
	}

	rows, _, more = c.First(5)
	if len(rows) != 5 || more {
		t.Errorf("First(5) got %v, %v", rows, more)
	}

	row, ok := c.Get("2")
	if !ok || row[1] != "replaced" {
		t.Errorf("Get(2) got %v, %v", row, ok)
	}
	_, ok = c.Get("3")
	if ok {
		t.Errorf("Get(3) found a row")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Clear() left %d rows", c.Len())
	}
}

func TestStringKeys(t *testing.T) {
	c := rowcache.New([]string{"tag"}, 0, dialect.String)
	for _, tag := range []string{"rock", "jazz", "blues", "10", "9"} {
		c.Add([]string{tag})
	}

	rows, _, more := c.First(10)
	if !reflect.DeepEqual(keys(rows, 0), []string{"10", "9", "blues", "jazz", "rock"}) ||
		more {
		t.Errorf("First(10) got %v, %v", rows, more)
	}
	rows, _, _ = c.Page("blues", 10)
	if !reflect.DeepEqual(keys(rows, 0), []string{"jazz", "rock"}) {
		t.Errorf("Page(blues, 10) got %v", rows)
	}
}

func TestNoKey(t *testing.T) {
	c := rowcache.New([]string{"body"}, -1, dialect.Other)
	for _, body := range []string{"c", "a", "b", "a"} {
		c.Add([]string{body})
	}

	if c.Len() != 4 {
		t.Errorf("Len() got %d want 4", c.Len())
	}
	rows, next, more := c.First(3)
	if !reflect.DeepEqual(keys(rows, 0), []string{"c", "a", "b"}) || !more {
		t.Errorf("First(3) got %v, %v", rows, more)
	}
	rows, _, more = c.Page(next, 3)
	if !reflect.DeepEqual(keys(rows, 0), []string{"a"}) || more {
		t.Errorf("Page(next, 3) got %v, %v", rows, more)
	}
	if _, ok := c.Get("a"); ok {
		t.Errorf("Get(a) found a row without a key")
	}
}

func TestEmptyStringKey(t *testing.T) {
	c := rowcache.New([]string{"tag"}, 0, dialect.String)
	for _, tag := range []string{"b", "", "a"} {
		c.Add([]string{tag})
	}

	var got []string
	rows, next, more := c.First(1)
	got = append(got, keys(rows, 0)...)
	for more {
		rows, next, more = c.Page(next, 1)
		got = append(got, keys(rows, 0)...)
		if len(got) > 3 {
			break
		}
	}
	if !reflect.DeepEqual(got, []string{"", "a", "b"}) {
		t.Errorf("First(1) and Page(next, 1) got %q want [\"\" a b]", got)
	}
}
