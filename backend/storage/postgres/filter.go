package postgres

import (
	"strconv"
	"strings"
)

// filter accumulates AND-ed conditions. Each "?" in a condition is replaced by
// the next positional parameter.
type filter struct {
	conds []string
	args  []any
}

func (f *filter) add(cond string, args ...any) {
	for _, arg := range args {
		f.args = append(f.args, arg)
		cond = strings.Replace(cond, "?", "$"+strconv.Itoa(len(f.args)), 1)
	}
	f.conds = append(f.conds, cond)
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

// page appends LIMIT and OFFSET parameters. Call it after all conditions.
func (f *filter) page(limit, offset int) string {
	var b strings.Builder
	if limit > 0 {
		f.args = append(f.args, limit)
		b.WriteString(" LIMIT $" + strconv.Itoa(len(f.args)))
	}
	if offset > 0 {
		f.args = append(f.args, offset)
		b.WriteString(" OFFSET $" + strconv.Itoa(len(f.args)))
	}
	return b.String()
}
