package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuncerburak97/apilog/internal/config"
	"github.com/tuncerburak97/apilog/internal/metrics"
)

func newProxyApp(t *testing.T, target string) (*fiber.App, *metrics.MetricsCollector) {
	t.Helper()
	logger := zerolog.Nop()
	m := metrics.NewMetricsCollector("apilog", "test", prometheus.NewRegistry())
	h, err := NewProxyHandler(&config.ProxyConfig{Target: target, Timeout: 2 * time.Second}, &logger, m)
	require.NoError(t, err)

	app := fiber.New()
	app.All("/*", h.Handle)
	return app, m
}

func TestProxy_ForwardsExchange(t *testing.T) {
	var got *http.Request
	var gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("Set-Cookie", "a=1")
		w.Header().Add("Set-Cookie", "b=2")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"queued":true}`))
	}))
	defer upstream.Close()

	app, m := newProxyApp(t, upstream.URL+"/")
	req := httptest.NewRequest("POST", "/orders/9?dry_run=1", strings.NewReader(`{"qty":2}`))
	req.Header.Set("Authorization", "Bearer t")
	req.Header.Set("Connection", "keep-alive, X-Hop")
	req.Header.Set("X-Hop", "drop me")
	req.Header.Set("X-Forwarded-For", "198.51.100.7")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"queued":true}`, string(body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.ElementsMatch(t, []string{"a=1", "b=2"}, resp.Header.Values("Set-Cookie"))
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	require.NotNil(t, got)
	assert.Equal(t, "POST", got.Method)
	assert.Equal(t, "/orders/9", got.URL.Path)
	assert.Equal(t, "1", got.URL.Query().Get("dry_run"))
	assert.Equal(t, `{"qty":2}`, gotBody)
	assert.Equal(t, "Bearer t", got.Header.Get("Authorization"))
	assert.Empty(t, got.Header.Get("X-Hop"))
	assert.Equal(t, "198.51.100.7, 0.0.0.0", got.Header.Get("X-Forwarded-For"))
	assert.Equal(t, resp.Header.Get(HeaderRequestID), got.Header.Get(HeaderRequestID))

	assert.Equal(t, 1, testutil.CollectAndCount(m.ProxyDuration))
}

func TestProxy_KeepsRequestID(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	app, _ := newProxyApp(t, upstream.URL)
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "req-42", resp.Header.Get(HeaderRequestID))
}

func TestProxy_UpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target := upstream.URL
	upstream.Close()

	app, m := newProxyApp(t, target)
	resp, err := app.Test(httptest.NewRequest("GET", "/anything", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProxyDuration))
}

func TestNewProxyHandler_InvalidTarget(t *testing.T) {
	logger := zerolog.Nop()
	for _, target := range []string{"", "localhost:8080/x", "://bad"} {
		_, err := NewProxyHandler(&config.ProxyConfig{Target: target}, &logger, nil)
		assert.Error(t, err, target)
	}
}
