package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const maxHeaderValueSize = 8 << 10

var (
	// Logged, not blocked: patient names and notes legitimately contain quotes.
	sqlPattern = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1|1\s*=\s*1)`)

	scriptPattern = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)

	// Render targets name DOM containers such as "main" or "modal-Cita".
	renderTargetPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)
)

// requestCheck inspects one part of a request and returns why it must be
// rejected, or "".
type requestCheck func(r *http.Request) string

var requestChecks = []requestCheck{
	checkPath,
	checkHeaders,
	checkRenderTarget,
	checkQuery,
}

// Sanitize returns middleware that rejects requests carrying common attack
// patterns in the path, headers or query parameters with a 400 and a JSON
// {"message": ...} body.
func Sanitize() echo.MiddlewareFunc {
	return SanitizeWithLogger(zerolog.Nop())
}

// SanitizeWithLogger is Sanitize with a logger for SQL injection warnings.
func SanitizeWithLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			for _, check := range requestChecks {
				if reason := check(req); reason != "" {
					logger.Debug().
						Str("path", req.URL.Path).
						Str("reason", reason).
						Msg("request rejected")
					return c.JSON(http.StatusBadRequest, map[string]string{"message": reason})
				}
			}
			for _, param := range sqlLikeParams(req) {
				logger.Warn().
					Str("param", param).
					Str("path", req.URL.Path).
					Str("remote_ip", c.RealIP()).
					Msg("potential SQL injection pattern detected in query parameter")
			}
			return next(c)
		}
	}
}

func checkPath(r *http.Request) string {
	raw := r.URL.RawPath
	if raw == "" {
		raw = r.URL.Path
	}
	for _, p := range []string{r.URL.Path, raw} {
		if hasTraversal(p) {
			return "Path traversal detected"
		}
		if hasNullByte(p) {
			return "Null byte injection detected"
		}
	}
	return ""
}

func checkHeaders(r *http.Request) string {
	for name, values := range r.Header {
		for _, v := range values {
			if len(v) > maxHeaderValueSize {
				return "Header value exceeds maximum size: " + name
			}
			if strings.ContainsAny(v, "\r\n") {
				return "Header injection detected: " + name
			}
		}
	}
	return ""
}

func checkRenderTarget(r *http.Request) string {
	target := r.Header.Get(RenderTargetHeader)
	if target != "" && !renderTargetPattern.MatchString(target) {
		return "Invalid render target"
	}
	return ""
}

func checkQuery(r *http.Request) string {
	for key, values := range r.URL.Query() {
		if hasNullByte(key) || scriptPattern.MatchString(key) {
			return "Script or null byte in query parameter name"
		}
		for _, v := range values {
			if hasNullByte(v) {
				return "Null byte injection detected in query parameter"
			}
			if scriptPattern.MatchString(v) {
				return "Script injection detected in query parameter"
			}
		}
	}
	return ""
}

func sqlLikeParams(r *http.Request) []string {
	var params []string
	for key, values := range r.URL.Query() {
		for _, v := range values {
			if sqlPattern.MatchString(v) {
				params = append(params, key)
				break
			}
		}
	}
	return params
}

// hasTraversal matches ".." in plain, percent-encoded and double-encoded
// form.
func hasTraversal(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(s, "..") ||
		strings.Contains(lower, "%2e%2e") ||
		strings.Contains(lower, "%252e")
}

func hasNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00') || strings.Contains(strings.ToLower(s), "%00")
}

// StripControl drops null bytes and control characters other than \n, \r
// and \t.
func StripControl(input string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n', r == '\r', r == '\t':
			return r
		case r == '\x00', unicode.IsControl(r):
			return -1
		}
		return r
	}, input)
}

// SanitizeFormValue cleans a submitted form value. Surrounding whitespace is
// trimmed unless the value is nothing but whitespace: the submit rule counts
// such a value as filled, so it is forwarded as typed.
func SanitizeFormValue(input string) string {
	stripped := StripControl(input)
	if trimmed := strings.TrimSpace(stripped); trimmed != "" {
		return trimmed
	}
	return stripped
}
