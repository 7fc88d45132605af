package discount_application

import (
	"context"
)

// Repository defines the interface for discount application data access.
// Applications are append-mostly: rows transition status but are never
// deleted.
type Repository interface {
	Create(ctx context.Context, application *DiscountApplication) error
	Get(ctx context.Context, id string) (*DiscountApplication, error)
	Update(ctx context.Context, application *DiscountApplication) error
	GetByInvoice(ctx context.Context, invoiceID string) ([]*DiscountApplication, error)
	// FindApplied returns the single applied application for an invoice, or
	// a NotFound error when there is none
	FindApplied(ctx context.Context, invoiceID string) (*DiscountApplication, error)
	// FindByTransaction returns the application linked to a payment
	// transaction, or a NotFound error
	FindByTransaction(ctx context.Context, transactionID string) (*DiscountApplication, error)
}
