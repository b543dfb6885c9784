package entity

import "context"

// Store persists records of registered entities. Implementations run on the
// scoped session carried by ctx when there is one.
type Store interface {
	SelectAll(ctx context.Context, e *Entity) ([]interface{}, error)
	// SelectByID returns ErrNotFound when no row has the id.
	SelectByID(ctx context.Context, e *Entity, id int64) (interface{}, error)
	// Insert writes rec and fills in its generated columns.
	Insert(ctx context.Context, e *Entity, rec interface{}) error
	// Update writes the named columns of rec, refreshes its generated
	// columns and returns ErrNotFound when the row is gone.
	Update(ctx context.Context, e *Entity, rec interface{}, columns []string) error
	// Commit makes the writes of the current session durable.
	Commit(ctx context.Context) error
	Ping(ctx context.Context) error
}
