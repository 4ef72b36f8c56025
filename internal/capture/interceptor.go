// Package capture records every HTTP exchange passing through a Fiber app.
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tuncerburak97/apilog/internal/codec"
	"github.com/tuncerburak97/apilog/internal/metrics"
	"github.com/tuncerburak97/apilog/internal/model"
	"github.com/tuncerburak97/apilog/internal/notify"
	"github.com/tuncerburak97/apilog/internal/repository"
	"github.com/tuncerburak97/apilog/internal/transform"
)

// HeaderRemoteAddr carries the socket peer address in the stored request
// headers.
const HeaderRemoteAddr = "Remote-Addr"

type Options struct {
	Recorder repository.Recorder
	// Notifier is called for stored exchanges with status >= 400. Nil
	// disables alerts.
	Notifier notify.Notifier
	// Resolver labels requests with their route. Nil leaves every request
	// unresolved.
	Resolver    Resolver
	Transformer *transform.Engine
	Metrics     *metrics.MetricsCollector
	Logger      *zerolog.Logger

	// IgnoreSuccessfulGet skips GET requests answered below 400.
	IgnoreSuccessfulGet bool
	// ErrorPage stores a debug page for failures answered with 5xx.
	ErrorPage      bool
	PersistTimeout time.Duration
	NotifyTimeout  time.Duration

	// APIPrefix and Location shape the links and datetimes of alert payloads.
	APIPrefix string
	Location  *time.Location
}

type Interceptor struct {
	opts   Options
	logger *zerolog.Logger
	now    func() time.Time
}

func New(opts Options) *Interceptor {
	if opts.Logger == nil {
		opts.Logger = &log.Logger
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 5 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Interceptor{opts: opts, logger: opts.Logger, now: time.Now}
}

// Handler returns the capture middleware. It must be registered before the
// routes it observes. Errors from the rest of the chain are rendered through
// the app's ErrorHandler so the stored status is the one sent.
func (i *Interceptor) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		i.opts.Metrics.IncActiveRequests()
		defer i.opts.Metrics.DecActiveRequests()

		apiLog := &model.APILog{StartTime: i.now()}
		st := StateOf(c)
		method := utils.CopyString(c.Method())
		path := utils.CopyString(c.Path())

		if chainErr := i.next(c); chainErr != nil {
			if err := c.App().Config().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		if status < fiber.StatusBadRequest {
			if st.skipped(method) || (i.opts.IgnoreSuccessfulGet && method == fiber.MethodGet) {
				i.opts.Metrics.ObserveCapture(metrics.OutcomeSkipped, method, status)
				return nil
			}
		}

		apiLog.Method = method
		apiLog.Path = path
		i.populate(c, apiLog, st)
		apiLog.EndTime = i.now()
		apiLog.Duration = durationMillis(apiLog.StartTime, apiLog.EndTime)

		if err := i.persist(c, apiLog); err != nil {
			i.opts.Metrics.ObserveCapture(metrics.OutcomeFailed, method, status)
			i.logger.Error().Err(err).
				Str("method", method).
				Str("path", path).
				Int("status", status).
				Msg("Failed to save api log")
			return nil
		}
		i.opts.Metrics.ObserveCapture(metrics.OutcomeRecorded, method, status)

		if status >= fiber.StatusBadRequest && i.opts.Notifier != nil {
			i.notify(c, apiLog)
		}
		return nil
	}
}

// next runs the rest of the chain, turning panics into errors. Panics and
// errors that end in a 5xx are reported as the request's failure.
func (i *Interceptor) next(c *fiber.Ctx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			perr, ok := r.(error)
			if !ok {
				perr = fmt.Errorf("%v", r)
			}
			ReportException(c, perr, string(debug.Stack()))
			err = perr
		}
	}()

	err = c.Next()
	if err != nil {
		var fe *fiber.Error
		if !errors.As(err, &fe) || fe.Code >= fiber.StatusInternalServerError {
			ReportException(c, err, fmt.Sprintf("%+v", err))
		}
	}
	return err
}

func (i *Interceptor) populate(c *fiber.Ctx, apiLog *model.APILog, st *State) {
	apiLog.ClientIP = ClientIP(c)

	status := c.Response().StatusCode()
	apiLog.HTTPCode = status
	apiLog.HTTPReason = utils.StatusMessage(status)

	query := i.safely("query", func() error {
		apiLog.RawQuery = codec.Marshal(queryArgs(c))
		return nil
	})
	if query != nil {
		apiLog.RawQuery = codec.Marshal(map[string]string{})
	}

	request := &transform.Message{Method: apiLog.Method, Path: apiLog.Path}
	if err := i.safely("request headers", func() error {
		request.Headers = requestHeaders(c)
		return nil
	}); err != nil {
		apiLog.RawRequestHeaders = codec.WrapError(codec.LabelHeaders, "get request headers failed: "+err.Error())
	}
	if err := i.safely("request body", func() error {
		request.Body = append([]byte(nil), c.Body()...)
		return nil
	}); err != nil {
		apiLog.RawRequestBody = codec.WrapError(codec.LabelBody, "get request body failed: "+err.Error())
	}
	if err := i.safely("redact request", func() error {
		return i.opts.Transformer.TransformRequest(request)
	}); err != nil {
		apiLog.RawRequestHeaders = codec.WrapError(codec.LabelHeaders, "redact request failed: "+err.Error())
		apiLog.RawRequestBody = codec.WrapError(codec.LabelBody, "redact request failed: "+err.Error())
	}
	if apiLog.RawRequestHeaders == "" {
		apiLog.RawRequestHeaders = codec.Wrap(codec.LabelHeaders, request.Headers)
	}
	if apiLog.RawRequestBody == "" {
		apiLog.RawRequestBody = codec.Wrap(codec.LabelBody, request.Body)
	}

	response := &transform.Message{Method: apiLog.Method, Path: apiLog.Path, Status: status}
	withBody := status >= fiber.StatusBadRequest || apiLog.Method != fiber.MethodGet
	var responseBody string
	if err := i.safely("response headers", func() error {
		response.Headers = responseHeaders(c)
		return nil
	}); err != nil {
		apiLog.RawResponseHeaders = codec.WrapError(codec.LabelHeaders, "get response headers failed: "+err.Error())
	}
	if withBody {
		if err := i.safely("response body", func() error {
			response.Body = append([]byte(nil), c.Response().Body()...)
			return nil
		}); err != nil {
			responseBody = codec.WrapError(codec.LabelBody, "get response body failed: "+err.Error())
		}
	}
	if err := i.safely("redact response", func() error {
		return i.opts.Transformer.TransformResponse(response)
	}); err != nil {
		apiLog.RawResponseHeaders = codec.WrapError(codec.LabelHeaders, "redact response failed: "+err.Error())
		responseBody = codec.WrapError(codec.LabelBody, "redact response failed: "+err.Error())
	}
	if apiLog.RawResponseHeaders == "" {
		apiLog.RawResponseHeaders = codec.Wrap(codec.LabelHeaders, response.Headers)
	}
	if withBody {
		if responseBody == "" {
			responseBody = codec.Wrap(codec.LabelBody, response.Body)
		}
		apiLog.RawResponseBody = &responseBody
	}

	if err := i.safely("resolve route", func() error {
		if i.opts.Resolver == nil {
			return errors.New("no resolver")
		}
		m, ok := i.opts.Resolver.Resolve(apiLog.Method, apiLog.Path)
		if !ok {
			return errors.New("no route matches")
		}
		apiLog.AppName, apiLog.URLName, apiLog.ViewName, apiLog.FuncName = m.AppName, m.URLName, m.ViewName, m.FuncName
		return nil
	}); err != nil {
		apiLog.SetNotResolved()
	}

	if f := st.Failure(); f != nil {
		apiLog.Exception = f.Err.Error()
		apiLog.Traceback = f.Traceback
		if i.opts.ErrorPage && status >= fiber.StatusInternalServerError {
			_ = i.safely("error page", func() error {
				page, err := renderErrorPage(f, apiLog.Method, apiLog.Path, status, request.Headers, apiLog.StartTime)
				if err != nil {
					return err
				}
				apiLog.ErrorPage = &page
				return nil
			})
		}
	}
}

func (i *Interceptor) persist(c *fiber.Ctx, apiLog *model.APILog) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), i.opts.PersistTimeout)
	defer cancel()

	started := time.Now()
	err := i.safely("persist", func() error {
		return i.opts.Recorder.Save(i.logger.WithContext(ctx), apiLog)
	})
	i.opts.Metrics.ObservePersist(time.Since(started))
	return err
}

func (i *Interceptor) notify(c *fiber.Ctx, apiLog *model.APILog) {
	vc := model.ViewContext{BaseURL: c.BaseURL(), Prefix: i.opts.APIPrefix, Location: i.opts.Location}

	err := i.safely("notify", func() error {
		payload, err := json.Marshal(apiLog.Detail(vc))
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), i.opts.NotifyTimeout)
		defer cancel()
		return i.opts.Notifier.Notify(ctx, payload)
	})
	if err != nil {
		i.opts.Metrics.IncNotifyErrors()
		i.logger.Error().Err(err).
			Int64("id", apiLog.ID).
			Str("path", apiLog.Path).
			Msg("Error when notify api error")
	}
}

// safely runs one fallible capture step, converting panics into errors.
func (i *Interceptor) safely(step string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			i.logger.Debug().Err(err).Str("step", step).Msg("Capture step failed")
		}
	}()
	return fn()
}

func queryArgs(c *fiber.Ctx) map[string]string {
	args := make(map[string]string)
	c.Request().URI().QueryArgs().VisitAll(func(key, value []byte) {
		args[string(key)] = string(value)
	})
	return args
}

func requestHeaders(c *fiber.Ctx) map[string]string {
	headers := collectHeaders(c.Request().Header.VisitAll)
	if addr := c.Context().RemoteAddr(); addr != nil {
		headers[HeaderRemoteAddr] = addr.String()
	}
	return headers
}

func responseHeaders(c *fiber.Ctx) map[string]string {
	return collectHeaders(c.Response().Header.VisitAll)
}

// collectHeaders joins repeated headers with ", ".
func collectHeaders(visit func(func(key, value []byte))) map[string]string {
	headers := make(map[string]string)
	visit(func(key, value []byte) {
		k := string(key)
		if prev, ok := headers[k]; ok {
			headers[k] = strings.Join([]string{prev, string(value)}, ", ")
			return
		}
		headers[k] = string(value)
	})
	return headers
}

// durationMillis is end - start in milliseconds, rounded to two decimals.
func durationMillis(start, end time.Time) float64 {
	d := end.Sub(start)
	if d < 0 {
		d = 0
	}
	return math.Round(float64(d)/float64(time.Millisecond)*100) / 100
}
