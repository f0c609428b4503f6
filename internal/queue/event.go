// Package queue defines message payloads exchanged over the message broker
// together with the publisher used by the HTTP service and the consumer
// used by the audit log process.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/todo-service/internal/model"
)

// Event types published after a successful write.
const (
	TodoCreated = "todo.created"
	TodoUpdated = "todo.updated"
	TodoDeleted = "todo.deleted"
)

// TodoEvent is published when a todo is created, updated or deleted.  Todo
// holds the row as returned by the statement; for deletions that is the
// last state before removal.
type TodoEvent struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Todo       model.Todo `json:"todo"`
	OccurredAt string     `json:"occurred_at"`
}

// NewTodoEvent stamps a fresh id and the current UTC time.
func NewTodoEvent(typ string, t model.Todo) TodoEvent {
	return TodoEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		Todo:       t,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
}
