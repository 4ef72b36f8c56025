// Package api serves the stored logs over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tuncerburak97/apilog/internal/capture"
	"github.com/tuncerburak97/apilog/internal/metrics"
	"github.com/tuncerburak97/apilog/internal/model"
	"github.com/tuncerburak97/apilog/internal/query"
	"github.com/tuncerburak97/apilog/internal/ratelimit"
	"github.com/tuncerburak97/apilog/internal/repository"
)

const (
	DetailNotFound      = "log id does not exist"
	DetailEmptyResponse = "<log response body is empty>"

	// FromOriginal selects the stored error page on the response endpoint.
	FromOriginal = "original"
)

type Handler struct {
	reader   repository.Reader
	engine   *query.Engine
	prefix   string
	location *time.Location
	metrics  *metrics.MetricsCollector
	logger   *zerolog.Logger
}

type Options struct {
	Reader repository.Reader
	// Prefix is where Register is mounted; it is used to build record links.
	Prefix   string
	Location *time.Location
	Metrics  *metrics.MetricsCollector
	Logger   *zerolog.Logger
	// Limiter, when set, rate limits every route.
	Limiter ratelimit.Limiter
}

func NewHandler(opts Options) *Handler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = &log.Logger
	}
	return &Handler{
		reader:   opts.Reader,
		engine:   query.NewEngine(opts.Reader, opts.Location),
		prefix:   strings.TrimRight(opts.Prefix, "/"),
		location: opts.Location,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
}

// Mount registers the log routes under opts.Prefix. Requests to them are
// never captured themselves.
func Mount(app fiber.Router, opts Options) *Handler {
	h := NewHandler(opts)
	handlers := []fiber.Handler{capture.Exclude(), h.observe}
	if opts.Limiter != nil {
		handlers = append(handlers, ratelimit.Middleware(opts.Limiter, opts.Metrics.IncRateLimited))
	}
	group := app.Group(h.prefix, handlers...)
	h.Register(group)
	return h
}

func (h *Handler) Register(router fiber.Router) {
	router.Get("/", h.List)
	router.Get("/:id", h.Detail)
	router.Get("/:id/response", h.Response)
}

func (h *Handler) observe(c *fiber.Ctx) error {
	started := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	} else if err != nil {
		status = fiber.StatusInternalServerError
	}
	h.metrics.ObserveQuery(status, time.Since(started))
	return err
}

func (h *Handler) viewContext(c *fiber.Ctx) model.ViewContext {
	return model.ViewContext{BaseURL: c.BaseURL(), Prefix: h.prefix, Location: h.location}
}

// List answers GET / with one page of filtered logs.
func (h *Handler) List(c *fiber.Ctx) error {
	params := make(map[string]string)
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		params[string(key)] = string(value)
	})

	result, err := h.engine.Execute(c.UserContext(), params, h.viewContext(c))
	if err != nil {
		var verr *query.ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": verr.Error()})
		}
		h.logger.Error().Err(err).Msg("Failed to query api logs")
		return err
	}
	return c.JSON(result)
}

// Detail answers GET /:id with the detail view of one log.
func (h *Handler) Detail(c *fiber.Ctx) error {
	apiLog, err := h.lookup(c)
	if err != nil || apiLog == nil {
		return err
	}
	return c.JSON(apiLog.Detail(h.viewContext(c)))
}

// Response answers GET /:id/response with the stored response body, or the
// error page when from=original and one was captured.
func (h *Handler) Response(c *fiber.Ctx) error {
	apiLog, err := h.lookup(c)
	if err != nil || apiLog == nil {
		return err
	}

	if c.Query("from") == FromOriginal && apiLog.ErrorPage != nil && *apiLog.ErrorPage != "" {
		c.Type("html", "utf-8")
		return c.SendString(*apiLog.ErrorPage)
	}

	switch body := apiLog.ResponseBody().(type) {
	case nil:
		return c.JSON(fiber.Map{"detail": DetailEmptyResponse})
	case map[string]any:
		if len(body) == 0 {
			return c.JSON(fiber.Map{"detail": DetailEmptyResponse})
		}
		return c.JSON(fiber.Map{"response_body": body})
	case []any:
		if len(body) == 0 {
			return c.JSON(fiber.Map{"detail": DetailEmptyResponse})
		}
		return c.JSON(fiber.Map{"response_body": body})
	case string:
		if body == "" {
			return c.JSON(fiber.Map{"detail": DetailEmptyResponse})
		}
		return c.SendString(body)
	case bool:
		if !body {
			return c.JSON(fiber.Map{"detail": DetailEmptyResponse})
		}
		return c.SendString("true")
	case json.Number:
		if f, err := body.Float64(); err == nil && f == 0 {
			return c.JSON(fiber.Map{"detail": DetailEmptyResponse})
		}
		return c.SendString(body.String())
	default:
		return c.SendString(fmt.Sprint(body))
	}
}

// lookup loads the log named by the id parameter. A nil log with a nil error
// means the not-found response was already sent.
func (h *Handler) lookup(c *fiber.Ctx) (*model.APILog, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, h.notFound(c)
	}

	apiLog, err := h.reader.Get(c.UserContext(), id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, h.notFound(c)
	}
	if err != nil {
		h.logger.Error().Err(err).Int64("id", id).Msg("Failed to load api log")
		return nil, err
	}
	return apiLog, nil
}

// notFound answers 200 so that lookups of missing ids stay self-excluded from
// capture, which records every response of 400 and above.
func (h *Handler) notFound(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"detail": DetailNotFound})
}
