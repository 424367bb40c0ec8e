package middleware

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
)

// slowRequestThreshold flags ingestion-sized requests that should have
// been fast lookups.
const slowRequestThreshold = 2 * time.Second

// Logger emits one structured line per request after the handler runs.
// It expects Context to have populated the request id already.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			elapsed := time.Since(start)
			ctx := req.Context()

			entry := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id": fernctx.GetRequestID(ctx),
				"method":     req.Method,
				"route":      c.Path(),
				"uri":        req.RequestURI,
				"status":     res.Status,
				"remote_ip":  c.RealIP(),
				"user_agent": req.UserAgent(),
				"bytes_out":  res.Size,
				"elapsed_ms": elapsed.Milliseconds(),
			})

			if elapsed > slowRequestThreshold {
				entry.Warn("Slow request")
				return nil
			}
			entry.Info("Request")
			return nil
		}
	}
}
