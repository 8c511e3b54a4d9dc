package form

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Template holds column values for repeated inserts. Each value may contain
// {seq}, {uuid}, and {today}; Instance expands them for one operation.
type Template struct {
	form *Form
}

func NewTemplate(f *Form) *Template {
	return &Template{form: f}
}

func Expand(tpl string, seq int, now time.Time) string {
	if !strings.Contains(tpl, "{") {
		return tpl
	}
	var r []string
	if strings.Contains(tpl, "{seq}") {
		r = append(r, "{seq}", strconv.Itoa(seq))
	}
	if strings.Contains(tpl, "{uuid}") {
		r = append(r, "{uuid}", uuid.NewString())
	}
	if strings.Contains(tpl, "{today}") {
		r = append(r, "{today}", now.Format(DateLayout))
	}
	if len(r) == 0 {
		return tpl
	}
	return strings.NewReplacer(r...).Replace(tpl)
}

func (tpl *Template) Instance(seq int) *Form {
	now := tpl.form.now()
	f := &Form{
		Table: tpl.form.Table,
		Now:   tpl.form.Now,
	}
	for _, fld := range tpl.form.Fields {
		f.Fields = append(f.Fields, &Field{
			Column: fld.Column,
			Value:  Expand(fld.Value, seq, now),
		})
	}
	return f
}
