package ratelimit

import (
	"net"
	"net/http"
	"regexp"
	"strings"
)

// Control characters and CR/LF are stripped from forwarded headers before
// the value is used as a map key, so a crafted header cannot smuggle log
// lines or collide buckets.
var headerSanitizer = regexp.MustCompile(`[\r\n\x00-\x1f\x7f]`)

// sanitizeHeaderValue strips CR, LF, and other control characters and trims
// surrounding whitespace. Returns "" for values that are empty after
// sanitization.
func sanitizeHeaderValue(v string) string {
	return strings.TrimSpace(headerSanitizer.ReplaceAllString(v, ""))
}

// ClientIP derives the client identifier for a request. Precedence:
// X-Forwarded-For (first hop), X-Real-IP, the platform header, then the
// connection's remote address. Falls back to "unknown" when nothing usable
// is present, so requests with no discernible origin share one bucket
// instead of bypassing limits.
func ClientIP(r *http.Request, platformHeader string) string {
	if xff := sanitizeHeaderValue(r.Header.Get("X-Forwarded-For")); xff != "" {
		if first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); first != "" {
			return first
		}
	}
	if realIP := sanitizeHeaderValue(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if platformHeader != "" {
		if platformIP := sanitizeHeaderValue(r.Header.Get(platformHeader)); platformIP != "" {
			return platformIP
		}
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}
