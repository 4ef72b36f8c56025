package model

import "strings"

type FieldKind int

const (
	KindInt FieldKind = iota
	KindFloat
	KindString
	KindText
	KindTime
)

// Field describes one persisted column of APILog.
type Field struct {
	Name     string
	Kind     FieldKind
	Nullable bool
}

// Field names, in table column order.
const (
	FieldID                 = "id"
	FieldCreatedAt          = "created_at"
	FieldClientIP           = "client_ip"
	FieldMethod             = "method"
	FieldPath               = "path"
	FieldRawQuery           = "raw_query"
	FieldRawRequestHeaders  = "raw_request_headers"
	FieldRawRequestBody     = "raw_request_body"
	FieldHTTPCode           = "http_code"
	FieldHTTPReason         = "http_reason"
	FieldRawResponseHeaders = "raw_response_headers"
	FieldRawResponseBody    = "raw_response_body"
	FieldAppName            = "app_name"
	FieldURLName            = "url_name"
	FieldViewName           = "view_name"
	FieldFuncName           = "func_name"
	FieldException          = "exception"
	FieldTraceback          = "traceback"
	FieldErrorPage          = "django_error_page"
	FieldStartTime          = "start_time"
	FieldEndTime            = "end_time"
	FieldDuration           = "duration"
)

// Fields is the static schema of the api_log table.
var Fields = []Field{
	{Name: FieldID, Kind: KindInt},
	{Name: FieldCreatedAt, Kind: KindTime},
	{Name: FieldClientIP, Kind: KindString},
	{Name: FieldMethod, Kind: KindString},
	{Name: FieldPath, Kind: KindString},
	{Name: FieldRawQuery, Kind: KindText},
	{Name: FieldRawRequestHeaders, Kind: KindText},
	{Name: FieldRawRequestBody, Kind: KindText},
	{Name: FieldHTTPCode, Kind: KindInt},
	{Name: FieldHTTPReason, Kind: KindString},
	{Name: FieldRawResponseHeaders, Kind: KindText},
	{Name: FieldRawResponseBody, Kind: KindText, Nullable: true},
	{Name: FieldAppName, Kind: KindString},
	{Name: FieldURLName, Kind: KindString},
	{Name: FieldViewName, Kind: KindString},
	{Name: FieldFuncName, Kind: KindString},
	{Name: FieldException, Kind: KindText},
	{Name: FieldTraceback, Kind: KindText},
	{Name: FieldErrorPage, Kind: KindText, Nullable: true},
	{Name: FieldStartTime, Kind: KindTime},
	{Name: FieldEndTime, Kind: KindTime},
	{Name: FieldDuration, Kind: KindFloat},
}

// rawFields are replaced by their decoded form in the detail view.
var rawFields = map[string]string{
	FieldRawQuery:           "query",
	FieldRawRequestHeaders:  "request_headers",
	FieldRawRequestBody:     "request_body",
	FieldRawResponseHeaders: "response_headers",
	FieldRawResponseBody:    "response_body",
}

var fieldIndex = func() map[string]Field {
	idx := make(map[string]Field, len(Fields))
	for _, f := range Fields {
		idx[f.Name] = f
	}
	return idx
}()

// LookupField reports whether name is a column of APILog.
func LookupField(name string) (Field, bool) {
	f, ok := fieldIndex[name]
	return f, ok
}

// FieldNames returns all column names in table order.
func FieldNames() []string {
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = f.Name
	}
	return names
}

// FieldList is FieldNames joined with commas, used in error messages.
func FieldList() string {
	return strings.Join(FieldNames(), ",")
}
