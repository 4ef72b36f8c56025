// Package query turns the filter parameters of the log API into repository
// criteria and renders the matching page.
package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tuncerburak97/apilog/internal/model"
	"github.com/tuncerburak97/apilog/internal/repository"
)

// TimeLayout is the accepted format of the start_time and end_time filters.
const TimeLayout = "2006-01-02 15:04:05"

const (
	DefaultPageSize = 20
	MaxPageSize     = 50

	// MaxPage keeps (page-1)*page_size inside int.
	MaxPage = math.MaxInt / MaxPageSize
)

// Filter parameter names.
const (
	ParamStartTime     = "start_time"
	ParamEndTime       = "end_time"
	ParamPage          = "page"
	ParamPageSize      = "page_size"
	ParamOrderBy       = "order_by"
	ParamAppName       = "app_name"
	ParamFuncName      = "func_name"
	ParamViewName      = "view_name"
	ParamURLName       = "url_name"
	ParamHTTPCode      = "http_code"
	ParamRequestPath   = "request_path"
	ParamDurationStart = "duration_start"
	ParamDurationEnd   = "duration_end"
	ParamShow          = "show"
)

// exactFilters map string parameters onto the column they must equal.
var exactFilters = []struct{ param, field string }{
	{ParamAppName, model.FieldAppName},
	{ParamFuncName, model.FieldFuncName},
	{ParamViewName, model.FieldViewName},
	{ParamURLName, model.FieldURLName},
	{ParamRequestPath, model.FieldPath},
}

// ValidationError reports a parameter whose value does not have the expected
// form. It fails the whole query.
type ValidationError struct {
	Param    string
	Value    string
	Expected string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: expected %s", e.Param, e.Value, e.Expected)
}

// Request is a parsed and validated query.
type Request struct {
	Page     int
	PageSize int
	Criteria repository.Criteria
	// Show lists the known columns to project. Empty means detail views.
	Show []string
}

// Parse validates params. Empty values are treated as absent. Datetimes are
// read in loc.
func Parse(params map[string]string, loc *time.Location) (*Request, error) {
	if loc == nil {
		loc = time.UTC
	}
	get := func(name string) string {
		return strings.TrimSpace(params[name])
	}

	req := &Request{Page: 1, PageSize: DefaultPageSize}
	var conds []repository.Condition

	if v := get(ParamStartTime); v != "" {
		t, err := time.ParseInLocation(TimeLayout, v, loc)
		if err != nil {
			return nil, &ValidationError{Param: ParamStartTime, Value: v, Expected: "YYYY-MM-DD HH:MM:SS"}
		}
		conds = append(conds, repository.Condition{Field: model.FieldStartTime, Op: repository.OpGte, Value: t})
	}
	if v := get(ParamEndTime); v != "" {
		t, err := time.ParseInLocation(TimeLayout, v, loc)
		if err != nil {
			return nil, &ValidationError{Param: ParamEndTime, Value: v, Expected: "YYYY-MM-DD HH:MM:SS"}
		}
		conds = append(conds, repository.Condition{Field: model.FieldEndTime, Op: repository.OpLte, Value: t})
	}

	if v := get(ParamPage); v != "" {
		n, err := atoiClamped(v)
		if err != nil {
			return nil, &ValidationError{Param: ParamPage, Value: v, Expected: "an integer"}
		}
		req.Page = min(max(n, 1), MaxPage)
	}
	if v := get(ParamPageSize); v != "" {
		n, err := atoiClamped(v)
		if err != nil {
			return nil, &ValidationError{Param: ParamPageSize, Value: v, Expected: "an integer"}
		}
		req.PageSize = min(max(n, 1), MaxPageSize)
	}

	for _, f := range exactFilters {
		if v := get(f.param); v != "" {
			conds = append(conds, repository.Condition{Field: f.field, Op: repository.OpEq, Value: v})
		}
	}
	if v := get(ParamHTTPCode); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &ValidationError{Param: ParamHTTPCode, Value: v, Expected: "an integer"}
		}
		conds = append(conds, repository.Condition{Field: model.FieldHTTPCode, Op: repository.OpEq, Value: n})
	}
	if v := get(ParamDurationStart); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, &ValidationError{Param: ParamDurationStart, Value: v, Expected: "a number"}
		}
		conds = append(conds, repository.Condition{Field: model.FieldDuration, Op: repository.OpGte, Value: d})
	}
	if v := get(ParamDurationEnd); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, &ValidationError{Param: ParamDurationEnd, Value: v, Expected: "a number"}
		}
		conds = append(conds, repository.Condition{Field: model.FieldDuration, Op: repository.OpLte, Value: d})
	}

	if v := get(ParamOrderBy); v != "" {
		order, err := parseOrder(v)
		if err != nil {
			return nil, err
		}
		req.Criteria.Order = []repository.Order{order}
	}

	if v := get(ParamShow); v != "" {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if _, ok := model.LookupField(name); ok {
				req.Show = append(req.Show, name)
			}
		}
	}

	req.Criteria.Conditions = conds
	req.Criteria.Offset = (req.Page - 1) * req.PageSize
	req.Criteria.Limit = req.PageSize
	return req, nil
}

// atoiClamped is strconv.Atoi, except that out of range integers saturate
// instead of failing.
func atoiClamped(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if errors.Is(err, strconv.ErrRange) {
		return n, nil
	}
	return n, err
}

// parseOrder reads "field", "+field" or "-field".
func parseOrder(v string) (repository.Order, error) {
	var order repository.Order
	name := v
	switch v[0] {
	case '-':
		order.Desc = true
		name = v[1:]
	case '+':
		name = v[1:]
	}
	if _, ok := model.LookupField(name); !ok {
		return order, &ValidationError{
			Param:    ParamOrderBy,
			Value:    v,
			Expected: fmt.Sprintf("field %q does not exist, one of %s", name, model.FieldList()),
		}
	}
	order.Field = name
	return order, nil
}

// Result is one page of matching logs.
type Result struct {
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Total    int64            `json:"total"`
	Logs     []map[string]any `json:"logs"`
}

type Engine struct {
	reader   repository.Reader
	location *time.Location
}

// NewEngine queries reader, reading filter datetimes in loc.
func NewEngine(reader repository.Reader, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{reader: reader, location: loc}
}

// Execute parses params and returns the requested page. Parameter errors are
// returned as *ValidationError before the store is touched.
func (e *Engine) Execute(ctx context.Context, params map[string]string, vc model.ViewContext) (*Result, error) {
	req, err := Parse(params, e.location)
	if err != nil {
		return nil, err
	}
	if vc.Location == nil {
		vc.Location = e.location
	}

	logs, total, err := e.reader.Query(ctx, req.Criteria)
	if err != nil {
		return nil, fmt.Errorf("query api logs: %w", err)
	}

	res := &Result{
		Page:     req.Page,
		PageSize: req.PageSize,
		Total:    total,
		Logs:     make([]map[string]any, 0, len(logs)),
	}
	for _, l := range logs {
		if len(req.Show) > 0 {
			res.Logs = append(res.Logs, l.Project(req.Show, vc.Location))
		} else {
			res.Logs = append(res.Logs, l.Detail(vc))
		}
	}
	return res, nil
}
