package model

// Todo is the only entity of the service.  It corresponds to a row in the
// `todos` table.
//
// Fields:
//  ID          – primary key, assigned by the database (serial) and never changed.
//  Description – free text, required on creation.
//  Completed   – false on creation.
type Todo struct {
	ID          int32  `json:"id"`          // todos.id
	Description string `json:"description"` // todos.description
	Completed   bool   `json:"completed"`   // todos.completed
}
