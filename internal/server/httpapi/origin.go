package httpapi

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// clientOrigin is the network origin refresh tokens are bound to: the client
// IP as fiber sees it (honoring the configured proxy header), else the first
// X-Forwarded-For entry, else the raw socket address.
func clientOrigin(c *fiber.Ctx) string {
	return resolveOrigin(c.IP(), c.Get(fiber.HeaderXForwardedFor), c.Context().RemoteAddr().String())
}

// resolveOrigin only ever returns a single address. A proxy header listing
// several hops is reduced to the client entry, so the origin does not change
// with the proxy path a request took.
func resolveOrigin(ip, forwardedFor, remoteAddr string) string {
	if ip = firstHop(ip); usableIP(ip) {
		return ip
	}

	if first := firstHop(forwardedFor); first != "" {
		return first
	}

	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func firstHop(list string) string {
	first, _, _ := strings.Cut(list, ",")
	return strings.TrimSpace(first)
}

// usableIP rejects empty and unspecified (0.0.0.0, ::) addresses. Single values
// that do not parse as IPs come from a proxy header and are kept verbatim.
func usableIP(ip string) bool {
	if ip == "" {
		return false
	}
	parsed := net.ParseIP(ip)
	return parsed == nil || !parsed.IsUnspecified()
}
