package discountrule

import (
	"context"
	"time"
)

// Repository defines the interface for discount rule data access
type Repository interface {
	Create(ctx context.Context, rule *DiscountRule) error
	Get(ctx context.Context, id string) (*DiscountRule, error)
	Update(ctx context.Context, rule *DiscountRule) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, tenantID string) ([]*DiscountRule, error)
	// ListActive returns enabled, in-window active rules for a tenant,
	// ordered by priority descending
	ListActive(ctx context.Context, tenantID string, asOf time.Time) ([]*DiscountRule, error)
}
