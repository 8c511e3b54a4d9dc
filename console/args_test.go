package console

import (
	"reflect"
	"testing"
)

func TestSplitArgs(t *testing.T) {
	cases := []struct {
		line string
		args []string
		fail bool
	}{
		{line: "", args: nil},
		{line: "  tables  ", args: []string{"tables"}},
		{line: "query Singers 1", args: []string{"query", "Singers", "1"}},
		{line: "insert Singers\tFirstName='Mary Ann'",
			args: []string{"insert", "Singers", "FirstName=Mary Ann"}},
		{line: `insert "My Table" Name="it's"`,
			args: []string{"insert", "My Table", "Name=it's"}},
		{line: `insert t Name=""`, args: []string{"insert", "t", "Name="}},
		{line: `query t "1`, fail: true},
	}

	for _, c := range cases {
		args, err := splitArgs(c.line)
		if c.fail {
			if err == nil {
				t.Errorf("splitArgs(%q) did not fail", c.line)
			}
		} else if err != nil {
			t.Errorf("splitArgs(%q) failed with %s", c.line, err)
		} else if !reflect.DeepEqual(args, c.args) {
			t.Errorf("splitArgs(%q) got %q want %q", c.line, args, c.args)
		}
	}
}
