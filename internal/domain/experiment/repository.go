package experiment

import (
	"context"

	"github.com/recivo/recivo/internal/types"
	"github.com/shopspring/decimal"
)

// ListFilter narrows experiment listings
type ListFilter struct {
	Status *types.ExperimentStatus
	Type   *types.ExperimentType
}

// Repository defines the interface for experiment data access
type Repository interface {
	Create(ctx context.Context, exp *Experiment) error
	Get(ctx context.Context, id string) (*Experiment, error)
	Update(ctx context.Context, exp *Experiment) error
	List(ctx context.Context, tenantID string, filter *ListFilter) ([]*Experiment, error)
	// ListActiveByType returns active experiments of the given type for a
	// tenant, for variant assignment during evaluation
	ListActiveByType(ctx context.Context, tenantID string, expType types.ExperimentType) ([]*Experiment, error)
	// RecordEvent folds one observation into the (experiment, event, variant)
	// result cell atomically. A nil value counts the event only.
	RecordEvent(ctx context.Context, experimentID, eventType, variantID string, value *decimal.Decimal) error
	// GetResults returns every result cell recorded for an experiment
	GetResults(ctx context.Context, experimentID string) ([]*Result, error)
}
