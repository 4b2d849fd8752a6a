package app

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	bridge_middleware "github.com/practice-robot/robot-bridge/internal/middleware"
	"github.com/practice-robot/robot-bridge/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// OnlyPaths returns a skipper that lets a middleware run only on the given
// route paths.
func OnlyPaths(paths ...string) func(c echo.Context) bool {
	return func(c echo.Context) bool {
		return !slices.Contains(paths, c.Path())
	}
}

// ConnectionsLimitMiddleware creates middleware for limiting concurrent connections
func ConnectionsLimitMiddleware(counter *bridge_middleware.ConnectionsLimiter, skipper func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}
			release, err := counter.LeaseConnection(c.Request())
			if err != nil {
				return c.JSON(utils.HttpResError(err.Error(), http.StatusTooManyRequests))
			}
			defer release()
			return next(c)
		}
	}
}

// LogrusLoggerMiddleware logs every HTTP request through logrus.
func LogrusLoggerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			req := c.Request()
			res := c.Response()

			err := next(c)

			stop := time.Now()

			fields := logrus.Fields{
				"remote_ip":  c.RealIP(),
				"host":       req.Host,
				"method":     req.Method,
				"uri":        req.RequestURI,
				"status":     res.Status,
				"latency":    stop.Sub(start).String(),
				"latency_ms": stop.Sub(start).Milliseconds(),
				"bytes_in":   req.Header.Get("Content-Length"),
				"bytes_out":  res.Size,
			}

			if ua := req.UserAgent(); ua != "" {
				fields["user_agent"] = ua
			}

			if referer := req.Referer(); referer != "" {
				fields["referer"] = referer
			}

			if id := req.Header.Get(echo.HeaderXRequestID); id != "" {
				fields["request_id"] = id
			}

			logrus.WithFields(fields).Info()

			return err
		}
	}
}
