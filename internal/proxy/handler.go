// Package proxy forwards requests to a single upstream so that the capture
// middleware can audit a service it does not host.
package proxy

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/tuncerburak97/apilog/internal/config"
	"github.com/tuncerburak97/apilog/internal/metrics"
)

type ProxyHandler struct {
	client  *http.Client
	target  string
	logger  *zerolog.Logger
	metrics *metrics.MetricsCollector
}

func NewProxyHandler(cfg *config.ProxyConfig, logger *zerolog.Logger, m *metrics.MetricsCollector) (*ProxyHandler, error) {
	target, err := url.Parse(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("parse proxy target: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("proxy target %q must be an absolute URL", cfg.Target)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          cfg.MaxIdleConns,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
	}

	return &ProxyHandler{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		target:  strings.TrimRight(target.String(), "/"),
		logger:  logger,
		metrics: m,
	}, nil
}

// Handle forwards the request upstream and copies the answer back. Upstream
// failures end in 502 Bad Gateway.
func (h *ProxyHandler) Handle(c *fiber.Ctx) error {
	startTime := time.Now()
	method := c.Method()
	path := c.Path()
	targetURL := h.target + c.OriginalURL()

	req, err := http.NewRequestWithContext(c.UserContext(), method, targetURL, bytes.NewReader(c.Body()))
	if err != nil {
		h.logger.Error().Err(err).Str("target_url", targetURL).Msg("Failed to create target request")
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	c.Request().Header.VisitAll(func(key, value []byte) {
		req.Header.Add(string(key), string(value))
	})
	req.Host = ""
	req.Header.Del(fiber.HeaderHost)
	requestID := prepareRequestHeaders(req.Header, c.IP())

	resp, err := h.client.Do(req)
	if err != nil {
		h.metrics.ObserveProxy(method, fiber.StatusBadGateway, time.Since(startTime))
		h.logger.Error().Err(err).
			Str("request_id", requestID).
			Str("method", method).
			Str("target_url", targetURL).
			Msg("Failed to send request to target")
		return fiber.NewError(fiber.StatusBadGateway, "upstream unavailable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.metrics.ObserveProxy(method, fiber.StatusBadGateway, time.Since(startTime))
		h.logger.Error().Err(err).Str("request_id", requestID).Msg("Failed to read response body")
		return fiber.NewError(fiber.StatusBadGateway, "upstream response incomplete")
	}
	duration := time.Since(startTime)

	h.logger.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Int("status_code", resp.StatusCode).
		Dur("duration", duration).
		Int("response_size", len(body)).
		Msg("Response completed")
	h.metrics.ObserveProxy(method, resp.StatusCode, duration)

	removeHopHeaders(resp.Header)
	resp.Header.Del(fiber.HeaderContentLength)
	for k, values := range resp.Header {
		for _, v := range values {
			c.Response().Header.Add(k, v)
		}
	}
	c.Set(HeaderRequestID, requestID)
	c.Status(resp.StatusCode)
	return c.Send(body)
}
