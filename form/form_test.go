package form_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leftmike/pkbench/dialect"
	"github.com/leftmike/pkbench/form"
	"github.com/leftmike/pkbench/schema"
)

var (
	singers = &schema.Table{
		Name: "Singers",
		Columns: []dialect.Column{
			{Name: "SingerId", DataType: "INT64", Kind: dialect.Int},
			{Name: "FirstName", DataType: "STRING(1024)", Kind: dialect.String},
			{Name: "BirthDate", DataType: "DATE", Kind: dialect.Date},
		},
		PrimaryKey: []string{"SingerId"},
	}

	fixedNow = time.Date(2024, time.March, 9, 15, 4, 5, 0, time.UTC)
)

func newForm() *form.Form {
	f := form.New(singers)
	f.Now = func() time.Time { return fixedNow }
	return f
}

func TestValues(t *testing.T) {
	cases := []struct {
		vals  map[string]string
		cols  []string
		row   []interface{}
		empty bool
		fail  bool
	}{
		{
			vals: map[string]string{"SingerId": "1", "FirstName": "Marc", "BirthDate": "1970-01-02"},
			cols: []string{"SingerId", "FirstName", "BirthDate"},
			row:  []interface{}{int64(1), "Marc", "1970-01-02"},
		},
		{
			vals: map[string]string{"singerid": "2", "firstname": "Cat"},
			cols: []string{"SingerId", "FirstName", "BirthDate"},
			row:  []interface{}{int64(2), "Cat", "2024-03-09"},
		},
		{
			vals:  map[string]string{"SingerId": "3", "BirthDate": "1970-01-02"},
			empty: true,
		},
		{
			vals:  map[string]string{},
			empty: true,
		},
		{
			vals: map[string]string{"SingerId": "four", "FirstName": "Alice"},
			fail: true,
		},
		{
			vals: map[string]string{"SingerId": "5", "FirstName": "Bob", "BirthDate": "1/2/1970"},
			fail: true,
		},
	}

	for i, c := range cases {
		f := newForm()
		err := f.SetAll(c.vals)
		if err != nil {
			t.Fatalf("SetAll(%v) failed with %s", c.vals, err)
		}
		cols, row, err := f.Values()
		if c.empty {
			if !errors.Is(err, form.ErrEmptyField) {
				t.Errorf("cases[%d] Values() got %v want ErrEmptyField", i, err)
			}
			continue
		}
		if c.fail {
			if err == nil {
				t.Errorf("cases[%d] Values() did not fail", i)
			}
			continue
		}
		if err != nil {
			t.Errorf("cases[%d] Values() failed with %s", i, err)
			continue
		}
		if !reflect.DeepEqual(cols, c.cols) {
			t.Errorf("cases[%d] Values() got columns %v want %v", i, cols, c.cols)
		}
		if !reflect.DeepEqual(row, c.row) {
			t.Errorf("cases[%d] Values() got %#v want %#v", i, row, c.row)
		}
	}
}

func TestSetUnknown(t *testing.T) {
	f := newForm()
	err := f.Set("LastName", "x")
	if !errors.Is(err, form.ErrUnknownColumn) {
		t.Errorf("Set(LastName) got %v want ErrUnknownColumn", err)
	}
}

func TestClear(t *testing.T) {
	f := newForm()
	f.SetAll(map[string]string{"SingerId": "1", "FirstName": "Marc"})
	f.Clear()
	for _, fld := range f.Fields {
		if fld.Value != "" {
			t.Errorf("Clear() left %s = %q", fld.Column.Name, fld.Value)
		}
	}
}

func TestTemplate(t *testing.T) {
	f := newForm()
	f.SetAll(map[string]string{"SingerId": "{seq}", "FirstName": "singer-{seq}-{uuid}",
		"BirthDate": "{today}"})
	tpl := form.NewTemplate(f)

	for seq := 1; seq <= 3; seq++ {
		cols, row, err := tpl.Instance(seq).Values()
		if err != nil {
			t.Fatalf("Instance(%d).Values() failed with %s", seq, err)
		}
		if len(cols) != 3 {
			t.Fatalf("Instance(%d).Values() got columns %v", seq, cols)
		}
		if row[0] != int64(seq) {
			t.Errorf("Instance(%d) SingerId got %v", seq, row[0])
		}
		name := row[1].(string)
		if !strings.HasPrefix(name, "singer-") || strings.Contains(name, "{") ||
			len(name) < len("singer-1-")+36 {
			t.Errorf("Instance(%d) FirstName got %s", seq, name)
		}
		if row[2] != "2024-03-09" {
			t.Errorf("Instance(%d) BirthDate got %v", seq, row[2])
		}
	}

	if f.Fields[0].Value != "{seq}" {
		t.Errorf("Instance() modified the template: %s", f.Fields[0].Value)
	}
}

func TestParseAssignments(t *testing.T) {
	cases := []struct {
		args []string
		vals map[string]string
		fail bool
	}{
		{args: []string{"a=1", "b=x=y", "c="},
			vals: map[string]string{"a": "1", "b": "x=y", "c": ""}},
		{args: []string{"a"}, fail: true},
		{args: []string{"=1"}, fail: true},
	}

	for _, c := range cases {
		vals, err := form.ParseAssignments(c.args)
		if c.fail {
			if err == nil {
				t.Errorf("ParseAssignments(%v) did not fail", c.args)
			}
		} else if err != nil {
			t.Errorf("ParseAssignments(%v) failed with %s", c.args, err)
		} else if !reflect.DeepEqual(vals, c.vals) {
			t.Errorf("ParseAssignments(%v) got %v want %v", c.args, vals, c.vals)
		}
	}
}
