// Package repository defines error types shared by the data access layer.
// Handlers compare against these sentinels with errors.Is to choose the
// HTTP status.
package repository

import "errors"

// ErrTodoNotFound is returned when a by-id statement matches zero rows.
// Handlers should translate this into an HTTP 404 response.
var ErrTodoNotFound = errors.New("todo not found")
