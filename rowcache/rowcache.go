package rowcache

import (
	"fmt"
	"strconv"

	"github.com/google/btree"

	"github.com/leftmike/pkbench/dialect"
)

// Cache holds browsed rows ordered by primary key: numerically for integer
// keys and lexically otherwise. Rows of a table without a primary key keep
// the order they were added in.
type Cache struct {
	Columns []string
	keyCol  int
	numeric bool
	tree    *btree.BTree
	seq     int64
}

type rowItem struct {
	key    string
	intKey int64
	isInt  bool
	seq    int64
	row    []string
}

func (ri rowItem) Less(item btree.Item) bool {
	ri2 := item.(rowItem)
	if ri.isInt && ri2.isInt {
		if ri.intKey != ri2.intKey {
			return ri.intKey < ri2.intKey
		}
	} else if ri.isInt != ri2.isInt {
		// Integers sort before anything that failed to parse as one.
		return ri.isInt
	} else if ri.key != ri2.key {
		return ri.key < ri2.key
	}
	return ri.seq < ri2.seq
}

// New returns an empty cache; keyCol is the index of the primary key column
// in each row, or -1.
func New(cols []string, keyCol int, kind dialect.Kind) *Cache {
	return &Cache{
		Columns: cols,
		keyCol:  keyCol,
		numeric: kind == dialect.Int,
		tree:    btree.New(16),
	}
}

func (c *Cache) makeItem(key string, seq int64) rowItem {
	ri := rowItem{
		key: key,
		seq: seq,
	}
	if c.numeric {
		i, err := strconv.ParseInt(key, 10, 64)
		if err == nil {
			ri.intKey = i
			ri.isInt = true
		}
	}
	return ri
}

func (c *Cache) Add(row []string) {
	c.seq += 1
	var key string
	if c.keyCol >= 0 && c.keyCol < len(row) {
		key = row[c.keyCol]
	} else {
		key = fmt.Sprintf("%020d", c.seq)
	}
	ri := c.makeItem(key, c.seq)
	if c.keyCol >= 0 {
		// Primary keys are unique, so a second row with the same key replaces the first.
		ri.seq = 0
	}
	ri.row = row
	c.tree.ReplaceOrInsert(ri)
}

func (c *Cache) Len() int {
	return c.tree.Len()
}

func (c *Cache) Clear() {
	c.tree.Clear(false)
	c.seq = 0
}

func (c *Cache) Get(key string) ([]string, bool) {
	if c.keyCol < 0 {
		return nil, false
	}
	item := c.tree.Get(c.makeItem(key, 0))
	if item == nil {
		return nil, false
	}
	return item.(rowItem).row, true
}

// First returns up to n rows from the first row on. It also returns the key
// to pass to Page for the next page, and whether there are more rows.
func (c *Cache) First(n int) ([][]string, string, bool) {
	return c.page(n, func(iter btree.ItemIterator) {
		c.tree.Ascend(iter)
	})
}

// Page returns up to n rows following the row with key after, along with the
// key for the next page and whether there are more rows. Any string,
// including the empty string, is a valid key.
func (c *Cache) Page(after string, n int) ([][]string, string, bool) {
	pivot := c.makeItem(after, 0)
	pivot.seq = 1<<63 - 1
	return c.page(n, func(iter btree.ItemIterator) {
		c.tree.AscendGreaterOrEqual(pivot, iter)
	})
}

func (c *Cache) page(n int, ascend func(iter btree.ItemIterator)) ([][]string, string, bool) {
	var rows [][]string
	var last rowItem
	var more bool
	ascend(func(item btree.Item) bool {
		if len(rows) == n {
			more = true
			return false
		}
		ri := item.(rowItem)
		rows = append(rows, ri.row)
		last = ri
		return true
	})

	if !more {
		return rows, "", false
	}
	return rows, last.key, true
}
