// Package server assembles the audited Fiber app from configuration.
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/tuncerburak97/apilog/internal/api"
	"github.com/tuncerburak97/apilog/internal/capture"
	"github.com/tuncerburak97/apilog/internal/config"
	"github.com/tuncerburak97/apilog/internal/metrics"
	"github.com/tuncerburak97/apilog/internal/notify"
	"github.com/tuncerburak97/apilog/internal/proxy"
	"github.com/tuncerburak97/apilog/internal/ratelimit"
	"github.com/tuncerburak97/apilog/internal/repository"
	"github.com/tuncerburak97/apilog/internal/transform"
)

type Server struct {
	App     *fiber.App
	Metrics *metrics.MetricsCollector

	cfg     *config.Config
	closers []io.Closer
}

// New wires every configured component around repo. Metrics are registered
// with reg, or the default registry when reg is nil.
func New(cfg *config.Config, repo repository.LogRepository, reg *prometheus.Registry, logger *zerolog.Logger) (*Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var registerer prometheus.Registerer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	s := &Server{
		cfg:     cfg,
		Metrics: metrics.NewMetricsCollector(cfg.Metrics.Namespace, cfg.Server.AppName, registerer),
	}

	notifier, err := notify.New(cfg.Notify, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := notifier.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}

	engine, err := transform.NewEngine(cfg.Transform)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.App = fiber.New(fiber.Config{
		AppName:               cfg.Server.AppName,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: true,
	})

	proxyMode := cfg.Proxy.Target != ""
	if cfg.Capture.Enabled {
		var resolver capture.Resolver = capture.FromApp(s.App)
		if proxyMode {
			resolver = capture.FromConfig(cfg.Capture.Routes)
		}
		s.App.Use(capture.New(capture.Options{
			Recorder:            repo,
			Notifier:            notifier,
			Resolver:            resolver,
			Transformer:         engine,
			Metrics:             s.Metrics,
			Logger:              logger,
			IgnoreSuccessfulGet: cfg.Capture.IgnoreSuccessfulGet,
			ErrorPage:           cfg.Capture.ErrorPage,
			PersistTimeout:      cfg.Capture.PersistTimeout,
			NotifyTimeout:       cfg.Capture.NotifyTimeout,
			APIPrefix:           cfg.API.Prefix,
			Location:            loc,
		}).Handler())
	}

	if cfg.Metrics.Enabled {
		s.App.Get(cfg.Metrics.Path, capture.Exclude(), adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
		s.App.Get(strings.TrimRight(cfg.Metrics.Path, "/")+"/json", capture.Exclude(), func(c *fiber.Ctx) error {
			data, err := s.Metrics.GetMetricsJSON()
			if err != nil {
				return err
			}
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(data)
		})
	}

	if cfg.API.Enabled {
		opts := api.Options{
			Reader:   repo,
			Prefix:   cfg.API.Prefix,
			Location: loc,
			Metrics:  s.Metrics,
			Logger:   logger,
		}
		if cfg.API.RateLimit.Enabled {
			store, err := ratelimit.NewStore(&cfg.API.RateLimit)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("create rate limit store: %w", err)
			}
			limiter := ratelimit.NewService(&cfg.API.RateLimit, store)
			s.closers = append(s.closers, limiter)
			opts.Limiter = limiter
		}
		api.Mount(s.App, opts)
	}

	if proxyMode {
		handler, err := proxy.NewProxyHandler(&cfg.Proxy, logger, s.Metrics)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.App.All("/*", handler.Handle)
	}

	return s, nil
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
}

func (s *Server) Listen() error {
	return s.App.Listen(s.Addr())
}

// Close releases the notifier and rate limit store. The repository belongs to
// the caller.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}
