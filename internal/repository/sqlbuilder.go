package repository

import (
	"fmt"
	"strings"

	"github.com/tuncerburak97/apilog/internal/model"
)

// Dialect adapts the shared SQL builder to a database.
type Dialect struct {
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Column renders a column reference for use in WHERE and ORDER BY.
	Column func(f model.Field) string
	// Arg converts a condition value before binding.
	Arg func(f model.Field, v any) any
	// Window renders the pagination clause; n is the next placeholder index.
	Window func(offset, limit, n int) (string, []any)
}

var Postgres = Dialect{
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	Column:      func(f model.Field) string { return f.Name },
	Window: func(offset, limit, n int) (string, []any) {
		return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n, n+1), []any{limit, offset}
	},
}

var Oracle = Dialect{
	Placeholder: func(n int) string { return fmt.Sprintf(":%d", n) },
	Column:      func(f model.Field) string { return `"` + strings.ToUpper(f.Name) + `"` },
	Window: func(offset, limit, n int) (string, []any) {
		return fmt.Sprintf(" OFFSET :%d ROWS FETCH NEXT :%d ROWS ONLY", n, n+1), []any{offset, limit}
	},
}

// Where renders the conditions of c as a WHERE clause (empty when there are
// none) and returns the bind arguments.
func (d Dialect) Where(c Criteria) (string, []any, error) {
	if len(c.Conditions) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(c.Conditions))
	args := make([]any, 0, len(c.Conditions))
	for _, cond := range c.Conditions {
		f, ok := model.LookupField(cond.Field)
		if !ok {
			return "", nil, fmt.Errorf("unknown field %q", cond.Field)
		}
		switch cond.Op {
		case OpEq, OpGte, OpLte:
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", cond.Op)
		}
		v := cond.Value
		if d.Arg != nil {
			v = d.Arg(f, v)
		}
		args = append(args, v)
		parts = append(parts, fmt.Sprintf("%s %s %s", d.Column(f), cond.Op, d.Placeholder(len(args))))
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// OrderBy renders the ordering of c.
func (d Dialect) OrderBy(c Criteria) (string, error) {
	order := c.Ordering()
	parts := make([]string, 0, len(order))
	for _, o := range order {
		f, ok := model.LookupField(o.Field)
		if !ok {
			return "", fmt.Errorf("unknown field %q", o.Field)
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, d.Column(f)+" "+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// Select renders a full paged SELECT over table plus the matching COUNT query.
func (d Dialect) Select(table string, c Criteria) (query string, args []any, count string, countArgs []any, err error) {
	where, args, err := d.Where(c)
	if err != nil {
		return "", nil, "", nil, err
	}
	order, err := d.OrderBy(c)
	if err != nil {
		return "", nil, "", nil, err
	}

	count = "SELECT COUNT(*) FROM " + table + where
	countArgs = append([]any{}, args...)

	query = "SELECT " + d.Columns() + " FROM " + table + where + order
	if c.Limit > 0 {
		window, wargs := d.Window(max(c.Offset, 0), c.Limit, len(args)+1)
		query += window
		args = append(args, wargs...)
	}
	return query, args, count, countArgs, nil
}

// Columns lists every column in table order.
func (d Dialect) Columns() string {
	cols := make([]string, len(model.Fields))
	for i, f := range model.Fields {
		cols[i] = d.Column(f)
	}
	return strings.Join(cols, ", ")
}

// ScanTargets returns pointers into log for every column in table order.
func ScanTargets(log *model.APILog) []any {
	targets := make([]any, len(model.Fields))
	for i, f := range model.Fields {
		targets[i] = log.Pointer(f.Name)
	}
	return targets
}

// InsertColumns lists every column but id, with their values from log.
func InsertColumns(log *model.APILog) ([]model.Field, []any) {
	fields := make([]model.Field, 0, len(model.Fields)-1)
	values := make([]any, 0, len(model.Fields)-1)
	for _, f := range model.Fields {
		if f.Name == model.FieldID {
			continue
		}
		fields = append(fields, f)
		values = append(values, log.Value(f.Name))
	}
	return fields, values
}
