package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/todo-service/internal/logger"
)

// RequestLogger logs every completed request in structured form.  It reads
// the request id set by echo's RequestID middleware, so it must be
// registered after it.
func RequestLogger(log *logrus.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			entry := logger.WithRequestID(log, c.Response().Header().Get(echo.HeaderXRequestID))
			entry.Debugf("request started: %s %s", req.Method, req.URL.Path)

			err := next(c)
			if err != nil {
				// let the error handler write the response so the status is final
				c.Error(err)
			}

			entry.WithFields(logrus.Fields{
				"method":      req.Method,
				"path":        req.URL.Path,
				"route":       c.Path(),
				"status":      c.Response().Status,
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_ip":   c.RealIP(),
				"user_agent":  req.UserAgent(),
			}).Info("request completed")
			return nil
		}
	}
}
