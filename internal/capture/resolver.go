package capture

import (
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/tuncerburak97/apilog/internal/config"
)

// Match is the routing metadata of a request.
type Match struct {
	AppName  string
	URLName  string
	ViewName string
	FuncName string
}

// Resolver maps a request to the route that serves it.
type Resolver interface {
	Resolve(method, path string) (Match, bool)
}

// Route is a path pattern in Fiber syntax: literal segments, ":param",
// optional ":param?", "*" for any remainder and "+" for a non-empty one.
type Route struct {
	Method  string
	Path    string
	Name    string // app:url
	Handler string
}

type compiledRoute struct {
	method   string
	segments []string
	match    Match
}

// RouteTable resolves requests against an ordered list of routes. The first
// matching route wins.
type RouteTable struct {
	routes []compiledRoute
}

func NewRouteTable(routes []Route) *RouteTable {
	t := &RouteTable{routes: make([]compiledRoute, 0, len(routes))}
	for _, r := range routes {
		method := strings.ToUpper(r.Method)
		if method == "*" {
			method = ""
		}
		t.routes = append(t.routes, compiledRoute{
			method:   method,
			segments: splitPath(r.Path),
			match:    newMatch(r.Name, r.Handler),
		})
	}
	return t
}

func (t *RouteTable) Resolve(method, path string) (Match, bool) {
	method = strings.ToUpper(method)
	segments := splitPath(path)
	for _, r := range t.routes {
		if r.method != "" && r.method != method {
			continue
		}
		if matchSegments(r.segments, segments) {
			return r.match, true
		}
	}
	return Match{}, false
}

// FromConfig builds a table from configured routes.
func FromConfig(routes []config.RouteConfig) *RouteTable {
	table := make([]Route, len(routes))
	for i, r := range routes {
		table[i] = Route{Method: r.Method, Path: r.Path, Name: r.Name, Handler: r.Handler}
	}
	return NewRouteTable(table)
}

// FromApp resolves against the routes registered on app. The table is built
// on first use, after the app has been set up.
func FromApp(app *fiber.App) Resolver {
	return &appResolver{app: app}
}

type appResolver struct {
	app   *fiber.App
	once  sync.Once
	table *RouteTable
}

func (r *appResolver) Resolve(method, path string) (Match, bool) {
	r.once.Do(func() {
		registered := r.app.GetRoutes(true)
		routes := make([]Route, 0, len(registered))
		for _, route := range registered {
			var handler string
			if n := len(route.Handlers); n > 0 {
				handler = FuncName(route.Handlers[n-1])
			}
			routes = append(routes, Route{
				Method:  route.Method,
				Path:    route.Path,
				Name:    route.Name,
				Handler: handler,
			})
		}
		r.table = NewRouteTable(routes)
	})
	return r.table.Resolve(method, path)
}

// FuncName returns the package qualified name of a handler function.
func FuncName(fn interface{}) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ""
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

// newMatch splits an "app:url" route name. Unnamed routes are known by their
// handler.
func newMatch(name, handler string) Match {
	m := Match{FuncName: handler}
	if name == "" {
		m.ViewName = handler
		return m
	}
	m.ViewName = name
	if app, url, ok := strings.Cut(name, ":"); ok {
		m.AppName, m.URLName = app, url
	} else {
		m.URLName = name
	}
	return m
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	p, rest := pattern[0], pattern[1:]

	switch {
	case strings.HasPrefix(p, "*"):
		for k := 0; k <= len(path); k++ {
			if matchSegments(rest, path[k:]) {
				return true
			}
		}
		return false

	case strings.HasPrefix(p, "+"):
		for k := 1; k <= len(path); k++ {
			if path[0] != "" && matchSegments(rest, path[k:]) {
				return true
			}
		}
		return false

	case strings.HasPrefix(p, ":") && strings.HasSuffix(p, "?"):
		if len(path) > 0 && path[0] != "" && matchSegments(rest, path[1:]) {
			return true
		}
		if len(path) == 1 && path[0] == "" {
			return matchSegments(rest, nil)
		}
		return matchSegments(rest, path)

	case strings.HasPrefix(p, ":"):
		return len(path) > 0 && path[0] != "" && matchSegments(rest, path[1:])

	default:
		return len(path) > 0 && strings.EqualFold(path[0], p) && matchSegments(rest, path[1:])
	}
}
