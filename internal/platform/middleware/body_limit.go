package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const defaultBodyLimit = 1 << 20

var sizeUnits = []struct {
	suffix string
	shift  uint
}{
	{"GB", 30}, {"G", 30},
	{"MB", 20}, {"M", 20},
	{"KB", 10}, {"K", 10},
	{"B", 0},
}

// ParseSize parses a human-readable size such as "64K", "1MB" or "2048".
func ParseSize(s string) (int64, error) {
	in := strings.ToUpper(strings.TrimSpace(s))
	var shift uint
	for _, u := range sizeUnits {
		if strings.HasSuffix(in, u.suffix) {
			in, shift = strings.TrimSpace(strings.TrimSuffix(in, u.suffix)), u.shift
			break
		}
	}
	n, err := strconv.ParseInt(in, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if n > (1<<62)>>shift {
		return 0, fmt.Errorf("size %q is too large", s)
	}
	return n << shift, nil
}

// parseLimit is ParseSize with a 1MB fallback for empty or malformed input.
func parseLimit(s string) int64 {
	n, err := ParseSize(s)
	if err != nil {
		return defaultBodyLimit
	}
	return n
}

// BodyLimit caps request bodies at limit (see ParseSize). A declared
// Content-Length over the cap is refused up front with a JSON 413; bodies
// without one fail with a 413 HTTPError when the handler reads past the cap.
func BodyLimit(limit string) echo.MiddlewareFunc {
	max := parseLimit(limit)
	tooLarge := fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", max)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > max {
				return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"message": tooLarge})
			}
			req.Body = &cappedBody{ReadCloser: req.Body, left: max}
			return next(c)
		}
	}
}

// cappedBody reads at most left bytes and fails once the source has more.
type cappedBody struct {
	io.ReadCloser
	left int64
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.left < 0 {
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	// one byte past the cap is enough to detect overflow
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}
	n, err := b.ReadCloser.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	return n, err
}
