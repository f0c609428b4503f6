// Package repository contains data access logic separated from HTTP handlers.
// This file defines the TodoRepo, which issues exactly one parameterized
// statement per operation against the `todos` table.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/iliyamo/todo-service/internal/model"
)

// DBTX is the subset of *pgxpool.Pool used by the repository.  Each call
// borrows one pooled connection for the duration of one statement.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	qList = `SELECT id, description, completed
	         FROM todos
	         ORDER BY id
	         OFFSET $1
	         LIMIT $2`

	qInsert = `INSERT INTO todos (description, completed)
	           VALUES ($1, $2)
	           RETURNING id, description, completed`

	qGetByID = `SELECT id, description, completed
	            FROM todos
	            WHERE id = $1`

	qUpdateReplace = `UPDATE todos
	                  SET description = $1, completed = $2
	                  WHERE id = $3
	                  RETURNING id, description, completed`

	// NULL parameters keep the current column value.
	qUpdateMerge = `UPDATE todos
	                SET description = COALESCE($1, description), completed = COALESCE($2, completed)
	                WHERE id = $3
	                RETURNING id, description, completed`

	qDelete = `DELETE FROM todos
	           WHERE id = $1
	           RETURNING id, description, completed`
)

// TodoRepo encapsulates all database queries related to todos.
type TodoRepo struct {
	db    DBTX // db is the underlying connection pool
	merge bool // merge selects partial-update semantics for Update
}

// NewTodoRepo constructs a TodoRepo with full-replace update semantics.
func NewTodoRepo(db DBTX) *TodoRepo {
	return &TodoRepo{db: db}
}

// NewMergingTodoRepo constructs a TodoRepo whose Update leaves absent
// fields unchanged.
func NewMergingTodoRepo(db DBTX) *TodoRepo {
	return &TodoRepo{db: db, merge: true}
}

// List returns todos ordered by id, skipping offset rows and returning at
// most limit rows.  A limit of zero yields an empty slice.  The result is
// never nil so it encodes as a JSON array.
func (r *TodoRepo) List(ctx context.Context, offset, limit int64) ([]model.Todo, error) {
	rows, err := r.db.Query(ctx, qList, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Todo, 0)
	for rows.Next() {
		var t model.Todo
		if err := rows.Scan(&t.ID, &t.Description, &t.Completed); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Insert creates a new, not yet completed todo and returns the stored row.
func (r *TodoRepo) Insert(ctx context.Context, description string) (model.Todo, error) {
	return r.one(ctx, qInsert, description, false)
}

// GetByID fetches a todo by its ID.  It returns ErrTodoNotFound if no row
// is found.
func (r *TodoRepo) GetByID(ctx context.Context, id int32) (model.Todo, error) {
	return r.one(ctx, qGetByID, id)
}

// Update rewrites a todo and returns the full new row.  In replace mode a
// nil description is stored as "" and a nil completed as false, so a client
// sending a single field resets the other one.  In merge mode nil fields
// keep their current values.
func (r *TodoRepo) Update(ctx context.Context, id int32, description *string, completed *bool) (model.Todo, error) {
	if r.merge {
		return r.one(ctx, qUpdateMerge, description, completed, id)
	}
	desc := ""
	if description != nil {
		desc = *description
	}
	done := false
	if completed != nil {
		done = *completed
	}
	return r.one(ctx, qUpdateReplace, desc, done, id)
}

// Delete removes a todo and returns the values it held.
func (r *TodoRepo) Delete(ctx context.Context, id int32) (model.Todo, error) {
	return r.one(ctx, qDelete, id)
}

// one runs a statement expected to produce a single todo row.
func (r *TodoRepo) one(ctx context.Context, q string, args ...any) (model.Todo, error) {
	var t model.Todo
	if err := r.db.QueryRow(ctx, q, args...).Scan(&t.ID, &t.Description, &t.Completed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Todo{}, ErrTodoNotFound
		}
		return model.Todo{}, err
	}
	return t, nil
}
