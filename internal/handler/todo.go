// Package handler exposes the HTTP handlers.  Handlers parse and validate
// path, query and body parameters, call the todo service and map the
// result to a response.  Error bodies are plaintext.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/todo-service/internal/logger"
	"github.com/iliyamo/todo-service/internal/model"
	"github.com/iliyamo/todo-service/internal/repository"
)

// TodoService is implemented by service.TodoService.
type TodoService interface {
	List(ctx context.Context, offset, limit int64) ([]model.Todo, error)
	Create(ctx context.Context, description string) (model.Todo, error)
	Get(ctx context.Context, id int32) (model.Todo, error)
	Update(ctx context.Context, id int32, description *string, completed *bool) (model.Todo, error)
	Delete(ctx context.Context, id int32) (model.Todo, error)
}

// TodoHandler bundles the dependencies of the /todos endpoints.
type TodoHandler struct {
	Todos TodoService
	Log   *logrus.Logger
}

// NewTodoHandler constructs a TodoHandler and panics if a dependency is nil.
func NewTodoHandler(svc TodoService, log *logrus.Logger) *TodoHandler {
	if svc == nil || log == nil {
		panic("nil dependency passed to NewTodoHandler")
	}
	return &TodoHandler{Todos: svc, Log: log}
}

// createTodoReq is the POST /todos body.  Description is a pointer so a
// missing field can be told apart from an empty string.
type createTodoReq struct {
	Description *string `json:"description"`
}

// updateTodoReq is the PUT /todos/:id body; both fields are optional.
type updateTodoReq struct {
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// List handles GET /todos?offset=&limit=.  Both parameters default to 0,
// and limit=0 returns an empty array.
func (h *TodoHandler) List(c echo.Context) error {
	var offset, limit int64
	if err := echo.QueryParamsBinder(c).
		Int64("offset", &offset).
		Int64("limit", &limit).
		BindError(); err != nil {
		return c.String(http.StatusBadRequest, "offset and limit must be integers")
	}
	if offset < 0 || limit < 0 {
		return c.String(http.StatusBadRequest, "offset and limit must not be negative")
	}
	todos, err := h.Todos.List(c.Request().Context(), offset, limit)
	if err != nil {
		return h.storageError(c, err)
	}
	return c.JSON(http.StatusOK, todos)
}

// Create handles POST /todos.
func (h *TodoHandler) Create(c echo.Context) error {
	var body createTodoReq
	if err := bindJSON(c, &body); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if body.Description == nil {
		return c.String(http.StatusBadRequest, "missing field `description`")
	}
	todo, err := h.Todos.Create(c.Request().Context(), *body.Description)
	if err != nil {
		return h.storageError(c, err)
	}
	return c.JSON(http.StatusOK, todo)
}

// Get handles GET /todos/:id.
func (h *TodoHandler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	todo, err := h.Todos.Get(c.Request().Context(), id)
	if err != nil {
		return h.storageError(c, err)
	}
	return c.JSON(http.StatusOK, todo)
}

// Update handles PUT /todos/:id.
func (h *TodoHandler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	var body updateTodoReq
	if err := bindJSON(c, &body); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	todo, err := h.Todos.Update(c.Request().Context(), id, body.Description, body.Completed)
	if err != nil {
		return h.storageError(c, err)
	}
	return c.JSON(http.StatusOK, todo)
}

// Delete handles DELETE /todos/:id and returns the removed row.
func (h *TodoHandler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	todo, err := h.Todos.Delete(c.Request().Context(), id)
	if err != nil {
		return h.storageError(c, err)
	}
	return c.JSON(http.StatusOK, todo)
}

// storageError maps a service failure to a response.  Not-found is a 404;
// everything else is logged and returned as a 500 carrying the error text.
func (h *TodoHandler) storageError(c echo.Context, err error) error {
	if errors.Is(err, repository.ErrTodoNotFound) {
		return c.String(http.StatusNotFound, err.Error())
	}
	logger.WithRequestID(h.Log, c.Response().Header().Get(echo.HeaderXRequestID)).
		WithError(err).
		WithFields(logrus.Fields{"method": c.Request().Method, "path": c.Request().URL.Path}).
		Error("unhandled storage error")
	return c.String(http.StatusInternalServerError, err.Error())
}

var (
	errInvalidID = errors.New("invalid id: expected a 32-bit integer")
	errEmptyBody = errors.New("request body must be a JSON object")
	errBadJSON   = errors.New("malformed JSON body")
)

func parseID(c echo.Context) (int32, error) {
	n, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return 0, errInvalidID
	}
	return int32(n), nil
}

// bindJSON decodes the request body only; path and query values never
// leak into the struct.
func bindJSON(c echo.Context, dst any) error {
	if c.Request().ContentLength == 0 {
		return errEmptyBody
	}
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusUnsupportedMediaType {
			return errors.New("expected Content-Type: application/json")
		}
		return errBadJSON
	}
	return nil
}
