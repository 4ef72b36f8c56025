package capture

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type stateKey struct{}

// Failure is an unhandled error raised while serving a request.
type Failure struct {
	Err       error
	Traceback string
}

// State is the per-request capture state, kept in the request locals.
type State struct {
	skip        bool
	skipMethods map[string]bool
	failure     *Failure
}

// StateOf returns the capture state of c, creating it on first use.
func StateOf(c *fiber.Ctx) *State {
	if st, ok := c.Locals(stateKey{}).(*State); ok {
		return st
	}
	st := &State{}
	c.Locals(stateKey{}, st)
	return st
}

// Failure returns the reported failure, if any.
func (s *State) Failure() *Failure {
	return s.failure
}

func (s *State) skipped(method string) bool {
	return s.skip || s.skipMethods[strings.ToUpper(method)]
}

// SkipLog opts the current request out of capture. The opt-out is ignored
// when the response status is 400 or above.
func SkipLog(c *fiber.Ctx) {
	StateOf(c).skip = true
}

// SkipMethodLog opts the current request out of capture when its method is
// method. Like SkipLog it does not apply to error responses.
func SkipMethodLog(c *fiber.Ctx, method string) {
	st := StateOf(c)
	if st.skipMethods == nil {
		st.skipMethods = make(map[string]bool)
	}
	st.skipMethods[strings.ToUpper(method)] = true
}

// ReportException records err as the unhandled failure of the request. The
// first report wins.
func ReportException(c *fiber.Ctx, err error, traceback string) {
	st := StateOf(c)
	if st.failure != nil || err == nil {
		return
	}
	st.failure = &Failure{Err: err, Traceback: traceback}
}

// Exclude is a middleware that applies SkipLog to every request it sees.
func Exclude() fiber.Handler {
	return func(c *fiber.Ctx) error {
		SkipLog(c)
		return c.Next()
	}
}
