// Package notify delivers alerts for failed exchanges. The payload is the JSON
// detail view of the stored api log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tuncerburak97/apilog/internal/config"
)

// HeaderDeliveryID identifies one webhook delivery.
const HeaderDeliveryID = "X-Delivery-ID"

type Notifier interface {
	Notify(ctx context.Context, payload []byte) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, payload []byte) error

func (f Func) Notify(ctx context.Context, payload []byte) error {
	return f(ctx, payload)
}

// New builds the notifier selected by cfg.Type. An empty type disables
// notifications and yields a nil Notifier.
func New(cfg config.NotifyConfig, logger *zerolog.Logger) (Notifier, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "log":
		return NewLogNotifier(logger), nil
	case "webhook":
		return NewWebhook(cfg.Webhook.URL, cfg.Webhook.Headers), nil
	case "redis":
		r := cfg.Redis
		return NewRedisNotifier(&redis.Options{
			Addr:         fmt.Sprintf("%s:%d", r.Host, r.Port),
			Password:     r.Password,
			DB:           r.DB,
			DialTimeout:  r.Timeout,
			ReadTimeout:  r.Timeout,
			WriteTimeout: r.Timeout,
		}, r.Channel), nil
	default:
		return nil, fmt.Errorf("unsupported notifier: %s", cfg.Type)
	}
}

// LogNotifier writes alerts to the log at error level.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, payload []byte) error {
	n.logger.Error().RawJSON("api_log", payload).Msg("API request failed")
	return nil
}

// Webhook POSTs alerts as JSON. Any non 2xx answer is an error.
type Webhook struct {
	url     string
	headers map[string]string
}

func NewWebhook(url string, headers map[string]string) *Webhook {
	return &Webhook{url: url, headers: headers}
}

func (w *Webhook) Notify(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a := fiber.Post(w.url)
	for k, v := range w.headers {
		a.Set(k, v)
	}
	a.Set(HeaderDeliveryID, uuid.New().String())
	a.ContentType(fiber.MIMEApplicationJSON)
	a.Body(payload)
	if deadline, ok := ctx.Deadline(); ok {
		a.Timeout(time.Until(deadline))
	}

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook %s: %w", w.url, errors.Join(errs...))
	}
	if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
		return fmt.Errorf("webhook %s: unexpected status %d: %s", w.url, code, body)
	}
	return nil
}

// RedisNotifier publishes alerts on a Redis channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(opts *redis.Options, channel string) *RedisNotifier {
	return &RedisNotifier{client: redis.NewClient(opts), channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, payload []byte) error {
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", n.channel, err)
	}
	return nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
