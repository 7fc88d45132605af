package latefeerule

import (
	"context"
	"time"
)

// Repository defines the interface for late fee rule data access
type Repository interface {
	Create(ctx context.Context, rule *LateFeeRule) error
	Get(ctx context.Context, id string) (*LateFeeRule, error)
	Update(ctx context.Context, rule *LateFeeRule) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, tenantID string) ([]*LateFeeRule, error)
	// ListActive returns enabled, in-window active rules for a tenant,
	// ordered by priority descending
	ListActive(ctx context.Context, tenantID string, asOf time.Time) ([]*LateFeeRule, error)
}
