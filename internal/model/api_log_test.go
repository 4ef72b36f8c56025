package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuncerburak97/apilog/internal/codec"
)

func sampleLog() *APILog {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	body := codec.Wrap(codec.LabelBody, `{"error":"boom"}`)
	page := "<html>trace</html>"
	return &APILog{
		ID:                 7,
		CreatedAt:          start.Add(15 * time.Millisecond),
		ClientIP:           "10.0.0.1",
		Method:             "POST",
		Path:               "/orders",
		RawQuery:           codec.Marshal(map[string]string{"dry_run": "1"}),
		RawRequestHeaders:  codec.Wrap(codec.LabelHeaders, map[string]string{"Accept": "application/json"}),
		RawRequestBody:     codec.Wrap(codec.LabelBody, "name=widget"),
		HTTPCode:           500,
		HTTPReason:         "Internal Server Error",
		RawResponseHeaders: codec.Wrap(codec.LabelHeaders, map[string]string{"Content-Type": "application/json"}),
		RawResponseBody:    &body,
		AppName:            "orders",
		URLName:            "create",
		ViewName:           "orders:create",
		FuncName:           "handlers.createOrder",
		Exception:          "boom",
		Traceback:          "goroutine 1 [running]",
		ErrorPage:          &page,
		StartTime:          start,
		EndTime:            start.Add(12345 * time.Microsecond),
		Duration:           12.35,
	}
}

func TestFields_MatchStructAccessors(t *testing.T) {
	l := sampleLog()
	for _, f := range Fields {
		assert.NotNil(t, l.Pointer(f.Name), "pointer for %s", f.Name)
		_, ok := LookupField(f.Name)
		assert.True(t, ok)
	}
	assert.Nil(t, l.Value("bogus_field"))
	_, ok := LookupField("bogus_field")
	assert.False(t, ok)
}

func TestDetail(t *testing.T) {
	vc := ViewContext{BaseURL: "http://audit.local", Prefix: "/_apilog/", Location: time.UTC}

	d := sampleLog().Detail(vc)

	for raw := range rawFields {
		assert.NotContains(t, d, raw)
	}
	assert.Equal(t, int64(7), d["id"])
	assert.Equal(t, "2024-03-01 10:00:00.000000", d["start_time"])
	assert.Equal(t, "2024-03-01 10:00:00.012345", d["end_time"])
	assert.Equal(t, "<html>trace</html>", d["django_error_page"])
	assert.Equal(t, map[string]any{"dry_run": "1"}, d["query"])
	assert.Equal(t, map[string]any{"Accept": "application/json"}, d["request_headers"])
	assert.Equal(t, "name=widget", d["request_body"])
	assert.Equal(t, map[string]any{"error": "boom"}, d["response_body"])
	assert.Equal(t, "http://audit.local/_apilog/7", d["data_url"])
	assert.Equal(t, "http://audit.local/_apilog/7/response", d["response_url"])
	assert.Equal(t, "http://audit.local/_apilog/7/response?from=original", d["error_page_url"])

	_, err := json.Marshal(d)
	require.NoError(t, err)
}

func TestDetail_NullResponseBody(t *testing.T) {
	l := sampleLog()
	l.RawResponseBody = nil
	l.ErrorPage = nil

	d := l.Detail(ViewContext{})
	assert.Nil(t, d["response_body"])
	assert.Nil(t, d["django_error_page"])
}

func TestProject(t *testing.T) {
	p := sampleLog().Project([]string{"method", "path", "nope", "start_time", "raw_request_body"}, time.UTC)

	assert.Equal(t, map[string]any{
		"method":           "POST",
		"path":             "/orders",
		"start_time":       "2024-03-01 10:00:00.000000",
		"raw_request_body": `{"body":"name=widget"}`,
	}, p)
}

func TestSetNotResolved(t *testing.T) {
	l := &APILog{}
	l.SetNotResolved()
	assert.Equal(t, NotResolved, l.AppName)
	assert.Equal(t, NotResolved, l.URLName)
	assert.Equal(t, NotResolved, l.ViewName)
	assert.Equal(t, NotResolved, l.FuncName)
	assert.Equal(t, "API Log:   -> 0", l.String())
}
