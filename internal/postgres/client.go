package postgres

import (
	"context"
)

// IClient is the surface services depend on for transaction management.
// *DB implements it against postgres; tests substitute a mock client.
type IClient interface {
	// WithTx wraps the given function in a transaction
	WithTx(ctx context.Context, fn func(context.Context) error) error
}

var _ IClient = (*DB)(nil)
