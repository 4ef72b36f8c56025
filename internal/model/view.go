package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/tuncerburak97/apilog/internal/codec"
)

// TimeLayout is how datetimes are rendered in views.
const TimeLayout = "2006-01-02 15:04:05.000000"

// ViewContext carries what a view needs from the serving request: the
// absolute base URL, the mount prefix of the log API and the display zone.
type ViewContext struct {
	BaseURL  string
	Prefix   string
	Location *time.Location
}

func (vc ViewContext) RecordURL(id int64) string {
	return vc.BaseURL + strings.TrimRight(vc.Prefix, "/") + "/" + strconv.FormatInt(id, 10)
}

func (vc ViewContext) ResponseURL(id int64, original bool) string {
	u := vc.RecordURL(id) + "/response"
	if original {
		u += "?from=original"
	}
	return u
}

// Detail renders every column except the raw payloads, which are replaced by
// their decoded form, plus links to the record and its response.
func (l *APILog) Detail(vc ViewContext) map[string]any {
	data := make(map[string]any, len(Fields)+3)
	for _, f := range Fields {
		if _, raw := rawFields[f.Name]; raw {
			continue
		}
		data[f.Name] = render(l.Value(f.Name), vc.Location)
	}

	data["query"] = l.Query()
	data["request_headers"] = codec.Unwrap(l.RawRequestHeaders)
	data["request_body"] = codec.Unwrap(l.RawRequestBody)
	data["response_headers"] = codec.Unwrap(l.RawResponseHeaders)
	data["response_body"] = l.ResponseBody()

	data["data_url"] = vc.RecordURL(l.ID)
	data["response_url"] = vc.ResponseURL(l.ID, false)
	data["error_page_url"] = vc.ResponseURL(l.ID, true)
	return data
}

// Project renders only the named columns with their stored values. Unknown
// names are skipped.
func (l *APILog) Project(fields []string, loc *time.Location) map[string]any {
	data := make(map[string]any, len(fields))
	for _, name := range fields {
		if _, ok := LookupField(name); !ok {
			continue
		}
		data[name] = render(l.Value(name), loc)
	}
	return data
}

func (l *APILog) Query() any {
	if l.RawQuery == "" {
		return nil
	}
	return codec.Parse(l.RawQuery)
}

func (l *APILog) ResponseBody() any {
	if l.RawResponseBody == nil {
		return nil
	}
	return codec.Unwrap(*l.RawResponseBody)
}

// FormatTime renders t in loc using TimeLayout.
func FormatTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(TimeLayout)
}

func render(v any, loc *time.Location) any {
	switch val := v.(type) {
	case time.Time:
		return FormatTime(val, loc)
	case *string:
		if val == nil {
			return nil
		}
		return *val
	}
	return v
}
