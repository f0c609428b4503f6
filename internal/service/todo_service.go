// Package service sits between the HTTP handlers and the repository.  It
// adds the side effects of a successful write: dropping cached responses
// and publishing a lifecycle event.  Neither side effect can fail a request.
package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/todo-service/internal/model"
	"github.com/iliyamo/todo-service/internal/queue"
)

// TodoStore is the storage gateway contract implemented by
// repository.TodoRepo.
type TodoStore interface {
	List(ctx context.Context, offset, limit int64) ([]model.Todo, error)
	Insert(ctx context.Context, description string) (model.Todo, error)
	GetByID(ctx context.Context, id int32) (model.Todo, error)
	Update(ctx context.Context, id int32, description *string, completed *bool) (model.Todo, error)
	Delete(ctx context.Context, id int32) (model.Todo, error)
}

// EventPublisher is implemented by queue.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.TodoEvent) error
}

// CacheInvalidator is implemented by middleware.ResponseCache.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

const sideEffectTimeout = 2 * time.Second

// TodoService exposes the five todo operations.
type TodoService struct {
	store  TodoStore
	events EventPublisher   // nil disables events
	cache  CacheInvalidator // nil disables invalidation
	log    *logrus.Logger
}

// NewTodoService creates a TodoService.  events and cache may be nil.
func NewTodoService(store TodoStore, events EventPublisher, cache CacheInvalidator, log *logrus.Logger) *TodoService {
	return &TodoService{store: store, events: events, cache: cache, log: log}
}

func (s *TodoService) List(ctx context.Context, offset, limit int64) ([]model.Todo, error) {
	return s.store.List(ctx, offset, limit)
}

func (s *TodoService) Get(ctx context.Context, id int32) (model.Todo, error) {
	return s.store.GetByID(ctx, id)
}

func (s *TodoService) Create(ctx context.Context, description string) (model.Todo, error) {
	t, err := s.store.Insert(ctx, description)
	if err != nil {
		return model.Todo{}, err
	}
	s.afterWrite(ctx, queue.TodoCreated, t)
	return t, nil
}

func (s *TodoService) Update(ctx context.Context, id int32, description *string, completed *bool) (model.Todo, error) {
	t, err := s.store.Update(ctx, id, description, completed)
	if err != nil {
		return model.Todo{}, err
	}
	s.afterWrite(ctx, queue.TodoUpdated, t)
	return t, nil
}

func (s *TodoService) Delete(ctx context.Context, id int32) (model.Todo, error) {
	t, err := s.store.Delete(ctx, id)
	if err != nil {
		return model.Todo{}, err
	}
	s.afterWrite(ctx, queue.TodoDeleted, t)
	return t, nil
}

// afterWrite runs even if the client has gone away; the row is already
// committed.
func (s *TodoService) afterWrite(ctx context.Context, eventType string, t model.Todo) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.log.WithError(err).Warn("cache invalidation failed")
		}
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, queue.NewTodoEvent(eventType, t)); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"event_type": eventType, "todo_id": t.ID}).Warn("event not published")
		}
	}
}
