package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuncerburak97/apilog/internal/config"
)

func TestWebhook_Delivers(t *testing.T) {
	type delivery struct {
		body        string
		contentType string
		deliveryID  string
		token       string
	}
	got := make(chan delivery, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- delivery{
			body:        string(body),
			contentType: r.Header.Get("Content-Type"),
			deliveryID:  r.Header.Get(HeaderDeliveryID),
			token:       r.Header.Get("X-Token"),
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, map[string]string{"X-Token": "secret"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hook.Notify(ctx, []byte(`{"id":1}`)))

	d := <-got
	assert.Equal(t, `{"id":1}`, d.body)
	assert.Equal(t, "application/json", d.contentType)
	assert.Len(t, d.deliveryID, 36)
	assert.Equal(t, "secret", d.token)
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, nil).Notify(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhook_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewWebhook("http://127.0.0.1:1", nil).Notify(ctx, []byte(`{}`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	require.NoError(t, NewLogNotifier(&logger).Notify(context.Background(), []byte(`{"id":3}`)))
	assert.Contains(t, buf.String(), `"api_log":{"id":3}`)
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestRedisNotifier_Unreachable(t *testing.T) {
	n := NewRedisNotifier(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}, "alerts")
	defer n.Close()

	err := n.Notify(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish to alerts")
}

func TestFunc(t *testing.T) {
	var seen []byte
	var n Notifier = Func(func(ctx context.Context, payload []byte) error {
		seen = payload
		return nil
	})
	require.NoError(t, n.Notify(context.Background(), []byte("x")))
	assert.Equal(t, []byte("x"), seen)
}

func TestNew(t *testing.T) {
	logger := zerolog.Nop()

	n, err := New(config.NotifyConfig{}, &logger)
	require.NoError(t, err)
	assert.Nil(t, n)

	n, err = New(config.NotifyConfig{Type: "log"}, &logger)
	require.NoError(t, err)
	assert.IsType(t, &LogNotifier{}, n)

	cfg := config.NotifyConfig{Type: "webhook"}
	cfg.Webhook.URL = "http://example.invalid/hook"
	n, err = New(cfg, &logger)
	require.NoError(t, err)
	assert.IsType(t, &Webhook{}, n)

	cfg = config.NotifyConfig{Type: "redis"}
	cfg.Redis.Host = "localhost"
	cfg.Redis.Port = 6379
	cfg.Redis.Channel = "alerts"
	n, err = New(cfg, &logger)
	require.NoError(t, err)
	require.IsType(t, &RedisNotifier{}, n)
	n.(*RedisNotifier).Close()

	_, err = New(config.NotifyConfig{Type: "pager"}, &logger)
	assert.Error(t, err)
}
