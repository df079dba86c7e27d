package core

import "context"

// Store is the remote table service. Implementations live under
// internal/store.
type Store interface {
	// InsertRows inserts one batch. A nil error with a non-empty result
	// means the call completed but some rows were rejected. A non-nil error
	// means the call itself failed.
	InsertRows(ctx context.Context, ref TableRef, batch Batch) ([]InsertError, error)

	// GetTable returns table metadata or an error wrapping ErrTableNotFound.
	GetTable(ctx context.Context, ref TableRef) (*Table, error)

	// DeleteTable drops the table.
	DeleteTable(ctx context.Context, ref TableRef) error

	// CreateTable creates the table or returns an error wrapping
	// ErrTableExists when it is already there.
	CreateTable(ctx context.Context, ref TableRef, schema *Schema) (*Table, error)

	// ListFirstRow returns one row of the table, if it has any.
	ListFirstRow(ctx context.Context, ref TableRef) (Row, bool, error)
}
