package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/todo-service/internal/model"
	"github.com/iliyamo/todo-service/internal/queue"
	"github.com/iliyamo/todo-service/internal/repository"
)

type stubStore struct {
	todo model.Todo
	err  error
}

func (s *stubStore) List(context.Context, int64, int64) ([]model.Todo, error) {
	return []model.Todo{s.todo}, s.err
}
func (s *stubStore) Insert(_ context.Context, d string) (model.Todo, error) {
	return model.Todo{ID: s.todo.ID, Description: d}, s.err
}
func (s *stubStore) GetByID(context.Context, int32) (model.Todo, error) { return s.todo, s.err }
func (s *stubStore) Update(context.Context, int32, *string, *bool) (model.Todo, error) {
	return s.todo, s.err
}
func (s *stubStore) Delete(context.Context, int32) (model.Todo, error) { return s.todo, s.err }

type recordingPublisher struct {
	events []queue.TodoEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.TodoEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

type countingCache struct {
	calls int
	err   error
}

func (c *countingCache) Invalidate(context.Context) error {
	c.calls++
	return c.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestWritesPublishEventsAndInvalidate(t *testing.T) {
	store := &stubStore{todo: model.Todo{ID: 1, Description: "buy milk"}}
	pub := &recordingPublisher{}
	cache := &countingCache{}
	svc := NewTodoService(store, pub, cache, quietLogger())
	ctx := context.Background()

	if _, err := svc.Create(ctx, "buy milk"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Update(ctx, 1, nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Delete(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.List(ctx, 0, 10); err != nil {
		t.Fatal(err)
	}

	wantTypes := []string{queue.TodoCreated, queue.TodoUpdated, queue.TodoDeleted}
	if len(pub.events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d", len(wantTypes), len(pub.events))
	}
	for i, typ := range wantTypes {
		if pub.events[i].Type != typ || pub.events[i].Todo.ID != 1 {
			t.Errorf("event %d: unexpected %+v", i, pub.events[i])
		}
	}
	if cache.calls != 3 {
		t.Fatalf("expected 3 invalidations, got %d", cache.calls)
	}
}

func TestFailedWriteHasNoSideEffects(t *testing.T) {
	store := &stubStore{err: repository.ErrTodoNotFound}
	pub := &recordingPublisher{}
	cache := &countingCache{}
	svc := NewTodoService(store, pub, cache, quietLogger())

	if _, err := svc.Delete(context.Background(), 9); !errors.Is(err, repository.ErrTodoNotFound) {
		t.Fatalf("expected ErrTodoNotFound, got %v", err)
	}
	if len(pub.events) != 0 || cache.calls != 0 {
		t.Fatalf("unexpected side effects: %d events, %d invalidations", len(pub.events), cache.calls)
	}
}

func TestSideEffectFailuresDoNotFailRequest(t *testing.T) {
	store := &stubStore{todo: model.Todo{ID: 2}}
	svc := NewTodoService(store,
		&recordingPublisher{err: errors.New("broker down")},
		&countingCache{err: errors.New("redis down")},
		quietLogger())

	got, err := svc.Create(context.Background(), "walk dog")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.Description != "walk dog" {
		t.Fatalf("unexpected todo %+v", got)
	}
}

func TestNilCollaborators(t *testing.T) {
	svc := NewTodoService(&stubStore{todo: model.Todo{ID: 3}}, nil, nil, quietLogger())
	if _, err := svc.Update(context.Background(), 3, nil, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}
}
