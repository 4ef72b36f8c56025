package model

import (
	"fmt"
	"time"
)

// NotResolved fills the routing fields when the request path matches no route.
const NotResolved = "__not_resolve__"

// APILog is one captured request/response exchange.
type APILog struct {
	ID        int64     `json:"id" bson:"_id" gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" gorm:"column:created_at;index:idx_api_log_created"`

	ClientIP          string `json:"client_ip" bson:"client_ip" gorm:"column:client_ip;size:45"`
	Method            string `json:"method" bson:"method" gorm:"column:method;size:10"`
	Path              string `json:"path" bson:"path" gorm:"column:path;size:512"`
	RawQuery          string `json:"raw_query" bson:"raw_query" gorm:"column:raw_query;type:text"`
	RawRequestHeaders string `json:"raw_request_headers" bson:"raw_request_headers" gorm:"column:raw_request_headers;type:text"`
	RawRequestBody    string `json:"raw_request_body" bson:"raw_request_body" gorm:"column:raw_request_body;type:text"`

	HTTPCode           int     `json:"http_code" bson:"http_code" gorm:"column:http_code;index:idx_api_log_http_code"`
	HTTPReason         string  `json:"http_reason" bson:"http_reason" gorm:"column:http_reason;size:100"`
	RawResponseHeaders string  `json:"raw_response_headers" bson:"raw_response_headers" gorm:"column:raw_response_headers;type:text"`
	RawResponseBody    *string `json:"raw_response_body" bson:"raw_response_body" gorm:"column:raw_response_body;type:text"`

	AppName  string `json:"app_name" bson:"app_name" gorm:"column:app_name;size:100;index:idx_api_log_app_name"`
	URLName  string `json:"url_name" bson:"url_name" gorm:"column:url_name;size:100"`
	ViewName string `json:"view_name" bson:"view_name" gorm:"column:view_name;size:100"`
	FuncName string `json:"func_name" bson:"func_name" gorm:"column:func_name;size:100"`

	Exception string  `json:"exception" bson:"exception" gorm:"column:exception;type:text"`
	Traceback string  `json:"traceback" bson:"traceback" gorm:"column:traceback;type:text"`
	ErrorPage *string `json:"django_error_page" bson:"django_error_page" gorm:"column:django_error_page;type:text"`

	StartTime time.Time `json:"start_time" bson:"start_time" gorm:"column:start_time"`
	EndTime   time.Time `json:"end_time" bson:"end_time" gorm:"column:end_time"`
	Duration  float64   `json:"duration" bson:"duration" gorm:"column:duration"`
}

func (APILog) TableName() string {
	return "api_log"
}

func (l *APILog) String() string {
	return fmt.Sprintf("API Log: %s %s -> %d", l.Method, l.Path, l.HTTPCode)
}

// SetNotResolved marks all routing fields as unresolved.
func (l *APILog) SetNotResolved() {
	l.AppName = NotResolved
	l.URLName = NotResolved
	l.ViewName = NotResolved
	l.FuncName = NotResolved
}

// Value returns the stored value of the named column, or nil for unknown names.
// Nullable text columns yield a nil *string when unset.
func (l *APILog) Value(name string) any {
	switch name {
	case FieldID:
		return l.ID
	case FieldCreatedAt:
		return l.CreatedAt
	case FieldClientIP:
		return l.ClientIP
	case FieldMethod:
		return l.Method
	case FieldPath:
		return l.Path
	case FieldRawQuery:
		return l.RawQuery
	case FieldRawRequestHeaders:
		return l.RawRequestHeaders
	case FieldRawRequestBody:
		return l.RawRequestBody
	case FieldHTTPCode:
		return l.HTTPCode
	case FieldHTTPReason:
		return l.HTTPReason
	case FieldRawResponseHeaders:
		return l.RawResponseHeaders
	case FieldRawResponseBody:
		return l.RawResponseBody
	case FieldAppName:
		return l.AppName
	case FieldURLName:
		return l.URLName
	case FieldViewName:
		return l.ViewName
	case FieldFuncName:
		return l.FuncName
	case FieldException:
		return l.Exception
	case FieldTraceback:
		return l.Traceback
	case FieldErrorPage:
		return l.ErrorPage
	case FieldStartTime:
		return l.StartTime
	case FieldEndTime:
		return l.EndTime
	case FieldDuration:
		return l.Duration
	}
	return nil
}

// Pointer returns a pointer to the named column's field, suitable as a scan
// target. Nullable text columns return **string.
func (l *APILog) Pointer(name string) any {
	switch name {
	case FieldID:
		return &l.ID
	case FieldCreatedAt:
		return &l.CreatedAt
	case FieldClientIP:
		return &l.ClientIP
	case FieldMethod:
		return &l.Method
	case FieldPath:
		return &l.Path
	case FieldRawQuery:
		return &l.RawQuery
	case FieldRawRequestHeaders:
		return &l.RawRequestHeaders
	case FieldRawRequestBody:
		return &l.RawRequestBody
	case FieldHTTPCode:
		return &l.HTTPCode
	case FieldHTTPReason:
		return &l.HTTPReason
	case FieldRawResponseHeaders:
		return &l.RawResponseHeaders
	case FieldRawResponseBody:
		return &l.RawResponseBody
	case FieldAppName:
		return &l.AppName
	case FieldURLName:
		return &l.URLName
	case FieldViewName:
		return &l.ViewName
	case FieldFuncName:
		return &l.FuncName
	case FieldException:
		return &l.Exception
	case FieldTraceback:
		return &l.Traceback
	case FieldErrorPage:
		return &l.ErrorPage
	case FieldStartTime:
		return &l.StartTime
	case FieldEndTime:
		return &l.EndTime
	case FieldDuration:
		return &l.Duration
	}
	return nil
}
