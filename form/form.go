package form

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/leftmike/pkbench/dialect"
	"github.com/leftmike/pkbench/schema"
)

const DateLayout = "2006-01-02"

var (
	ErrEmptyField    = errors.New("all fields are required")
	ErrUnknownColumn = errors.New("unknown column")
)

type Field struct {
	Column dialect.Column
	Value  string
}

// Default is the value used when the field is left blank: the current date
// for DATE columns, otherwise nothing.
func (fld *Field) Default(now time.Time) string {
	if fld.Column.Kind == dialect.Date {
		return now.Format(DateLayout)
	}
	return ""
}

// Form collects one value per column of a table for a single row insert.
type Form struct {
	Table  string
	Fields []*Field
	Now    func() time.Time
}

func New(tbl *schema.Table) *Form {
	f := &Form{
		Table: tbl.Name,
		Now:   time.Now,
	}
	for _, col := range tbl.Columns {
		f.Fields = append(f.Fields, &Field{Column: col})
	}
	return f
}

func (f *Form) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

func (f *Form) Field(name string) (*Field, bool) {
	for _, fld := range f.Fields {
		if fld.Column.Name == name {
			return fld, true
		}
	}
	for _, fld := range f.Fields {
		if strings.EqualFold(fld.Column.Name, name) {
			return fld, true
		}
	}
	return nil, false
}

func (f *Form) Set(name, val string) error {
	fld, ok := f.Field(name)
	if !ok {
		return fmt.Errorf("form: %s.%s: %w", f.Table, name, ErrUnknownColumn)
	}
	fld.Value = val
	return nil
}

func (f *Form) SetAll(vals map[string]string) error {
	for nam, val := range vals {
		err := f.Set(nam, val)
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *Form) Clear() {
	for _, fld := range f.Fields {
		fld.Value = ""
	}
}

// Values returns the column names and the converted values of the form. Blank
// DATE fields get the current date; any other blank field rejects the row.
func (f *Form) Values() ([]string, []interface{}, error) {
	now := f.now()
	cols := make([]string, 0, len(f.Fields))
	vals := make([]interface{}, 0, len(f.Fields))
	for _, fld := range f.Fields {
		s := fld.Value
		if s == "" {
			s = fld.Default(now)
		}
		if s == "" {
			return nil, nil, fmt.Errorf("form: %s.%s: %w", f.Table, fld.Column.Name, ErrEmptyField)
		}
		v, err := Convert(fld.Column, s)
		if err != nil {
			return nil, nil, fmt.Errorf("form: %s.%s: %s", f.Table, fld.Column.Name, err)
		}
		cols = append(cols, fld.Column.Name)
		vals = append(vals, v)
	}
	return cols, vals, nil
}

// Convert turns the text typed for a column into a value of the column's kind.
func Convert(col dialect.Column, s string) (interface{}, error) {
	switch col.Kind {
	case dialect.Int:
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	case dialect.Float:
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	case dialect.Bool:
		return strconv.ParseBool(strings.TrimSpace(s))
	case dialect.Date:
		s = strings.TrimSpace(s)
		_, err := time.Parse(DateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("expected date as YYYY-MM-DD; got %s", s)
		}
		return s, nil
	case dialect.Bytes:
		return []byte(s), nil
	}
	return s, nil
}

// ParseAssignments splits column=value arguments.
func ParseAssignments(args []string) (map[string]string, error) {
	vals := map[string]string{}
	for _, arg := range args {
		ss := strings.SplitN(arg, "=", 2)
		if len(ss) != 2 || ss[0] == "" {
			return nil, fmt.Errorf("form: expected column=value; got %s", arg)
		}
		vals[ss[0]] = ss[1]
	}
	return vals, nil
}
