package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/recivo/recivo/internal/domain/experiment"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// InMemoryExperimentStore implements experiment.Repository. Result cells
// serialize on a mutex, mirroring the single-statement upsert the postgres
// implementation relies on.
type InMemoryExperimentStore struct {
	*InMemoryStore[*experiment.Experiment]

	resultMu sync.Mutex
	results  map[string]*experiment.Result
}

func NewInMemoryExperimentStore() *InMemoryExperimentStore {
	return &InMemoryExperimentStore{
		InMemoryStore: NewInMemoryStore[*experiment.Experiment](),
		results:       make(map[string]*experiment.Result),
	}
}

func copyExperiment(e *experiment.Experiment) *experiment.Experiment {
	if e == nil {
		return nil
	}
	copied := *e
	copied.Variants = make([]experiment.Variant, len(e.Variants))
	copy(copied.Variants, e.Variants)
	if e.TargetCriteria != nil {
		criteria := *e.TargetCriteria
		copied.TargetCriteria = &criteria
	}
	return &copied
}

func (s *InMemoryExperimentStore) Create(ctx context.Context, exp *experiment.Experiment) error {
	return s.InMemoryStore.Create(ctx, exp.ID, copyExperiment(exp))
}

func (s *InMemoryExperimentStore) Get(ctx context.Context, id string) (*experiment.Experiment, error) {
	exp, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || exp.Status == types.StatusDeleted {
		return nil, ierr.NewError("experiment not found").
			WithHintf("Experiment %s does not exist", id).
			Mark(ierr.ErrNotFound)
	}
	return copyExperiment(exp), nil
}

func (s *InMemoryExperimentStore) Update(ctx context.Context, exp *experiment.Experiment) error {
	return s.InMemoryStore.Update(ctx, exp.ID, copyExperiment(exp))
}

func (s *InMemoryExperimentStore) List(ctx context.Context, tenantID string, filter *experiment.ListFilter) ([]*experiment.Experiment, error) {
	experiments, err := s.InMemoryStore.List(ctx, func(_ context.Context, e *experiment.Experiment) bool {
		if e.TenantID != tenantID || e.Status == types.StatusDeleted {
			return false
		}
		if filter != nil {
			if filter.Status != nil && e.ExperimentStatus != *filter.Status {
				return false
			}
			if filter.Type != nil && e.ExperimentType != *filter.Type {
				return false
			}
		}
		return true
	}, byExperimentCreatedAt)
	if err != nil {
		return nil, err
	}
	return lo.Map(experiments, func(e *experiment.Experiment, _ int) *experiment.Experiment {
		return copyExperiment(e)
	}), nil
}

func (s *InMemoryExperimentStore) ListActiveByType(ctx context.Context, tenantID string, expType types.ExperimentType) ([]*experiment.Experiment, error) {
	experiments, err := s.InMemoryStore.List(ctx, func(_ context.Context, e *experiment.Experiment) bool {
		return e.TenantID == tenantID &&
			e.Status != types.StatusDeleted &&
			e.ExperimentStatus == types.ExperimentStatusActive &&
			e.ExperimentType == expType
	}, byExperimentCreatedAt)
	if err != nil {
		return nil, err
	}
	return lo.Map(experiments, func(e *experiment.Experiment, _ int) *experiment.Experiment {
		return copyExperiment(e)
	}), nil
}

func (s *InMemoryExperimentStore) RecordEvent(ctx context.Context, experimentID, eventType, variantID string, value *decimal.Decimal) error {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()

	key := resultKey(experimentID, eventType, variantID)
	cell, ok := s.results[key]
	if !ok {
		cell = &experiment.Result{
			ExperimentID: experimentID,
			EventType:    eventType,
			VariantID:    variantID,
		}
		s.results[key] = cell
	}
	cell.Record(value)
	return nil
}

func (s *InMemoryExperimentStore) GetResults(ctx context.Context, experimentID string) ([]*experiment.Result, error) {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()

	results := make([]*experiment.Result, 0)
	for _, cell := range s.results {
		if cell.ExperimentID != experimentID {
			continue
		}
		copied := *cell
		copied.Values = make([]decimal.Decimal, len(cell.Values))
		copy(copied.Values, cell.Values)
		results = append(results, &copied)
	}
	return results, nil
}

func byExperimentCreatedAt(i, j *experiment.Experiment) bool {
	return i.CreatedAt.Before(j.CreatedAt)
}

func resultKey(experimentID, eventType, variantID string) string {
	return fmt.Sprintf("%s:%s:%s", experimentID, eventType, variantID)
}
