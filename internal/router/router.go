package router // package router defines how HTTP routes are registered for the API

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/todo-service/internal/handler"
	"github.com/iliyamo/todo-service/internal/middleware"
)

// Deps collects everything the router wires together.  Only Log and Todos
// are required.
type Deps struct {
	Log       *logrus.Logger
	Todos     *handler.TodoHandler
	Health    *handler.HealthHandler    // nil omits /healthz
	Metrics   *middleware.Metrics       // nil disables HTTP metrics
	Gatherer  prometheus.Gatherer       // nil omits /metrics
	Cache     *middleware.ResponseCache // nil disables response caching
	RateLimit echo.MiddlewareFunc       // nil disables rate limiting
}

// New builds the echo instance with the middleware chain, the static route
// table and the plaintext 404 fallback.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(d.Log)

	// order matters: request id first so the logger can read it
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(d.Metrics.Middleware())
	e.Use(echomw.Recover())

	// probes and scrapes stay outside the rate limiter
	var limited []echo.MiddlewareFunc
	if d.RateLimit != nil {
		limited = append(limited, d.RateLimit)
	}
	RegisterRoutes(e, d.Health, d.Gatherer, limited...)
	RegisterTodos(e, d.Todos, d.Cache, limited...)
	return e
}

// RegisterRoutes registers the greeting and the operational endpoints.  mw
// applies to the greeting only.
func RegisterRoutes(e *echo.Echo, health *handler.HealthHandler, gatherer prometheus.Gatherer, mw ...echo.MiddlewareFunc) {
	e.GET("/", handler.Root, mw...)
	if health != nil {
		// load balancers and monitoring probe this
		e.GET("/healthz", health.Health)
	}
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

// RegisterTodos registers the five todo routes behind mw.  Reads also go
// through the response cache; writes invalidate it in the service layer.
func RegisterTodos(e *echo.Echo, h *handler.TodoHandler, cache *middleware.ResponseCache, mw ...echo.MiddlewareFunc) {
	reads := append(append([]echo.MiddlewareFunc{}, mw...), cache.Middleware())
	e.GET("/todos", h.List, reads...)
	e.POST("/todos", h.Create, mw...)
	e.GET("/todos/:id", h.Get, reads...)
	e.PUT("/todos/:id", h.Update, mw...)
	e.DELETE("/todos/:id", h.Delete, mw...)
}

// errorHandler renders framework errors as plaintext.  Unmatched routes,
// including a known path with an unsupported method, get a fixed 404 and
// are not logged.
func errorHandler(log *logrus.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		body := err.Error()

		var he *echo.HTTPError
		if errors.As(err, &he) {
			switch he.Code {
			case http.StatusNotFound, http.StatusMethodNotAllowed:
				c.Set(middleware.UnmatchedRouteKey, true)
				c.Response().Header().Del(echo.HeaderAllow)
				code, body = http.StatusNotFound, "Not Found"
			default:
				code, body = he.Code, http.StatusText(he.Code)
			}
		} else {
			log.WithError(err).WithField("path", c.Request().URL.Path).Error("unhandled error")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.String(code, body)
		}
		if err != nil {
			log.WithError(err).Warn("write error response")
		}
	}
}
