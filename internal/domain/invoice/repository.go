package invoice

import (
	"context"
	"time"
)

// Repository defines the interface for invoice data access
type Repository interface {
	Get(ctx context.Context, id string) (*Invoice, error)
	// ListOverdue returns unpaid invoices past due for a tenant as of the
	// given reference date
	ListOverdue(ctx context.Context, tenantID string, asOf time.Time) ([]*Invoice, error)
	// ListTenantsWithOverdue returns the tenant ids that have at least one
	// overdue invoice as of the given reference date
	ListTenantsWithOverdue(ctx context.Context, asOf time.Time) ([]string, error)
	// UpdateAmountDue persists an amount due adjustment with optimistic
	// version checking
	UpdateAmountDue(ctx context.Context, invoice *Invoice) error
}
