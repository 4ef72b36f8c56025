package capture

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// IPNotFound is recorded when no client address is available.
const IPNotFound = "ip-not-found"

// ClientIP returns the first X-Forwarded-For entry, else X-Real-IP, else the
// socket peer address.
func ClientIP(c *fiber.Ctx) string {
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return utils.CopyString(strings.TrimSpace(first))
	}
	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return utils.CopyString(realIP)
	}
	addr := c.Context().RemoteAddr()
	if addr == nil {
		return IPNotFound
	}
	if host, _, err := net.SplitHostPort(addr.String()); err == nil {
		return host
	}
	return addr.String()
}
