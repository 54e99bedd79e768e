package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// guardedWriter drops writes once the request has timed out so a slow
// handler cannot write after the 504 went out.
type guardedWriter struct {
	http.ResponseWriter
	mu       sync.Mutex
	wrote    bool
	timedOut bool
}

func (w *guardedWriter) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut {
		return
	}
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *guardedWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

// expire marks the writer timed out and writes the 504 unless the handler
// already started its response.
func (w *guardedWriter) expire(body []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timedOut = true
	if w.wrote {
		return
	}
	w.ResponseWriter.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
	w.ResponseWriter.WriteHeader(http.StatusGatewayTimeout)
	w.ResponseWriter.Write(body)
}

var timeoutBody, _ = json.Marshal(map[string]string{
	"message": "request processing exceeded the allowed time limit",
})

type handlerResult struct {
	err   error
	panic interface{}
}

// RequestTimeout sets a deadline on each request context. Renders and
// upstream calls observe the deadline; a handler still running when it
// passes is abandoned and the client gets 504 with a JSON message.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			gw := &guardedWriter{ResponseWriter: c.Response().Writer}
			c.Response().Writer = gw

			done := make(chan handlerResult, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- handlerResult{panic: r}
					}
				}()
				done <- handlerResult{err: next(c)}
			}()

			select {
			case res := <-done:
				if res.panic != nil {
					// re-raised here so Recovery sees it
					panic(res.panic)
				}
				return res.err
			case <-ctx.Done():
				if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
					// client went away
					return ctx.Err()
				}
				gw.expire(timeoutBody)
				return nil
			}
		}
	}
}
