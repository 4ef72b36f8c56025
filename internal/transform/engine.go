package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"
	"github.com/tuncerburak97/apilog/internal/config"
)

const (
	requestScript  = "request.js"
	responseScript = "response.js"
)

// ErrTimeout is returned when a script runs longer than the engine allows.
var ErrTimeout = errors.New("transform: script timed out")

// Message is one side of a captured exchange as seen by a script.
type Message struct {
	Method  string
	Path    string
	Status  int
	Headers map[string]string
	Body    []byte
}

// Engine runs per-service scripts that rewrite captured payloads before they
// are stored, typically to mask credentials.
type Engine struct {
	config  config.TransformConfig
	scripts map[string]*goja.Program
	timeout time.Duration
}

// NewEngine compiles the request.js and response.js scripts of every
// configured service. Either script may be absent.
func NewEngine(cfg config.TransformConfig) (*Engine, error) {
	engine := &Engine{
		config:  cfg,
		scripts: make(map[string]*goja.Program),
		timeout: 100 * time.Millisecond,
	}

	if err := engine.loadScripts(); err != nil {
		return nil, err
	}
	return engine, nil
}

func (e *Engine) loadScripts() error {
	for name, service := range e.config.Services {
		for _, script := range []string{requestScript, responseScript} {
			path := e.getScriptPath(&service, script)
			program, err := e.compileScript(path)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to compile %s for service %s: %w", script, name, err)
			}
			e.scripts[path] = program
		}
	}
	return nil
}

func (e *Engine) compileScript(path string) (*goja.Program, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return goja.Compile(path, string(content), true)
}

// Enabled reports whether any script is loaded.
func (e *Engine) Enabled() bool {
	return e != nil && len(e.scripts) > 0
}

// TransformRequest runs the request script matching msg.Path, exposed to the
// script as the global "request".
func (e *Engine) TransformRequest(msg *Message) error {
	return e.run(requestScript, "request", msg)
}

// TransformResponse runs the response script matching msg.Path, exposed to
// the script as the global "response".
func (e *Engine) TransformResponse(msg *Message) error {
	return e.run(responseScript, "response", msg)
}

func (e *Engine) run(script, global string, msg *Message) (err error) {
	if !e.Enabled() {
		return nil
	}
	service := e.findMatchingService(msg.Path)
	if service == nil {
		return nil
	}
	program := e.scripts[e.getScriptPath(service, script)]
	if program == nil {
		return nil
	}

	in := decodeBody(msg.Body)
	// Scripts may edit the decoded body in place, so snapshot its encoding
	// before they run.
	before, err := encodeBody(in)
	if err != nil {
		return fmt.Errorf("%s script body: %w", global, err)
	}

	vm := goja.New()
	obj := map[string]interface{}{
		"method":     msg.Method,
		"path":       msg.Path,
		"statusCode": msg.Status,
		"headers":    headersToMap(msg.Headers),
		"body":       in,
	}
	vm.Set(global, obj)
	vm.Set("log", func(text string) {
		log.Debug().Str("script", script).Str("path", msg.Path).Msg(text)
	})

	timer := time.AfterFunc(e.timeout, func() { vm.Interrupt(ErrTimeout) })
	defer timer.Stop()

	if _, err := vm.RunProgram(program); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return ErrTimeout
		}
		return fmt.Errorf("%s script: %w", global, err)
	}

	result := vm.Get(global).ToObject(vm)
	if headers := result.Get("headers"); headers != nil && !goja.IsUndefined(headers) && !goja.IsNull(headers) {
		if headerMap, ok := headers.Export().(map[string]interface{}); ok {
			msg.Headers = make(map[string]string, len(headerMap))
			for k, v := range headerMap {
				msg.Headers[k] = fmt.Sprint(v)
			}
		}
	}
	if body := result.Get("body"); body != nil {
		after, err := encodeBody(body.Export())
		if err != nil {
			return fmt.Errorf("%s script body: %w", global, err)
		}
		// An untouched body keeps its original bytes.
		if !bytes.Equal(before, after) {
			msg.Body = after
		}
	}
	return nil
}

// findMatchingService returns the service whose URL matches path. A trailing
// * matches any suffix; the longest match wins.
func (e *Engine) findMatchingService(path string) *config.ServiceTransform {
	var best *config.ServiceTransform
	for _, service := range e.config.Services {
		pattern := service.URL
		matched := pattern == path
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
			matched = strings.HasPrefix(path, prefix)
		}
		if matched && (best == nil || len(pattern) > len(best.URL)) {
			s := service
			best = &s
		}
	}
	return best
}

func (e *Engine) getScriptPath(service *config.ServiceTransform, script string) string {
	return filepath.Join(e.config.ScriptsDir, service.ServiceName, script)
}

func headersToMap(headers map[string]string) map[string]interface{} {
	result := make(map[string]interface{}, len(headers))
	for k, v := range headers {
		result[k] = v
	}
	return result
}

// decodeBody hands JSON bodies to scripts as objects and anything else as a
// string.
func decodeBody(body []byte) interface{} {
	if len(body) == 0 {
		return nil
	}
	if !json.Valid(body) {
		return string(body)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var jsonBody interface{}
	if err := dec.Decode(&jsonBody); err != nil {
		return string(body)
	}
	return numbers(jsonBody)
}

// numbers turns every json.Number that survives the conversion exactly into
// an int64 or float64 so scripts can do arithmetic on it. The rest stay
// json.Number and are written back digit for digit.
func numbers(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, e := range t {
			t[k] = numbers(e)
		}
	case []interface{}:
		for i, e := range t {
			t[i] = numbers(e)
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil && strconv.FormatFloat(f, 'g', -1, 64) == t.String() {
			return f
		}
	}
	return v
}

func encodeBody(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
