package latefee_application

import (
	"context"
)

// Repository defines the interface for late fee application data access
type Repository interface {
	Create(ctx context.Context, application *LateFeeApplication) error
	Get(ctx context.Context, id string) (*LateFeeApplication, error)
	Update(ctx context.Context, application *LateFeeApplication) error
	GetByInvoice(ctx context.Context, invoiceID string) ([]*LateFeeApplication, error)
	// FindApplied returns the single applied application for an invoice, or
	// a NotFound error when there is none
	FindApplied(ctx context.Context, invoiceID string) (*LateFeeApplication, error)
	// FindByIdempotencyKey returns the application created under the given
	// key, or a NotFound error
	FindByIdempotencyKey(ctx context.Context, key string) (*LateFeeApplication, error)
}
