package capture

import (
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestRouteTable_Patterns(t *testing.T) {
	table := NewRouteTable([]Route{
		{Method: "GET", Path: "/users/:id/posts/:post?", Name: "blog:posts"},
		{Method: "GET", Path: "/users/:id", Name: "accounts:user"},
		{Method: "*", Path: "/static/*", Name: "static"},
		{Path: "/files/+", Name: "files:any"},
		{Method: "POST", Path: "/", Name: "root"},
	})

	cases := []struct {
		method, path string
		view         string
		ok           bool
	}{
		{"GET", "/users/7", "accounts:user", true},
		{"GET", "/Users/7/", "accounts:user", true},
		{"GET", "/users/7/posts", "blog:posts", true},
		{"GET", "/users/7/posts/3", "blog:posts", true},
		{"POST", "/users/7", "", false},
		{"GET", "/users", "", false},
		{"DELETE", "/static/css/site.css", "static", true},
		{"GET", "/static", "static", true},
		{"GET", "/files/a/b", "files:any", true},
		{"GET", "/files", "", false},
		{"POST", "/", "root", true},
		{"GET", "/", "", false},
	}
	for _, tc := range cases {
		m, ok := table.Resolve(tc.method, tc.path)
		assert.Equal(t, tc.ok, ok, "%s %s", tc.method, tc.path)
		assert.Equal(t, tc.view, m.ViewName, "%s %s", tc.method, tc.path)
	}
}

func TestNewMatch(t *testing.T) {
	assert.Equal(t, Match{AppName: "shop", URLName: "list", ViewName: "shop:list", FuncName: "h.List"}, newMatch("shop:list", "h.List"))
	assert.Equal(t, Match{URLName: "health", ViewName: "health", FuncName: "h.Health"}, newMatch("health", "h.Health"))
	assert.Equal(t, Match{ViewName: "h.Anon", FuncName: "h.Anon"}, newMatch("", "h.Anon"))
}

type handlers struct{}

func (handlers) Show(c *fiber.Ctx) error { return nil }

func TestFuncName(t *testing.T) {
	assert.Equal(t, "capture.createItem", FuncName(fiber.Handler(createItem)))
	assert.Equal(t, "capture.handlers.Show", FuncName(handlers{}.Show))
	assert.Equal(t, "", FuncName(nil))
	assert.Equal(t, "", FuncName("not a func"))
}

func TestFromApp_SkipsMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error { return c.Next() })
	app.Get("/ping", createItem).Name("ops:ping")

	r := FromApp(app)
	m, ok := r.Resolve("GET", "/ping")
	assert.True(t, ok)
	assert.Equal(t, "ops:ping", m.ViewName)
	assert.Equal(t, "capture.createItem", m.FuncName)

	_, ok = r.Resolve("GET", "/other")
	assert.False(t, ok)
}
