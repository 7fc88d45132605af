package testutil

import (
	"context"
	"time"

	"github.com/recivo/recivo/internal/domain/latefeerule"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/types"
	"github.com/samber/lo"
)

// InMemoryLateFeeRuleStore implements latefeerule.Repository
type InMemoryLateFeeRuleStore struct {
	*InMemoryStore[*latefeerule.LateFeeRule]
}

func NewInMemoryLateFeeRuleStore() *InMemoryLateFeeRuleStore {
	return &InMemoryLateFeeRuleStore{
		InMemoryStore: NewInMemoryStore[*latefeerule.LateFeeRule](),
	}
}

func copyLateFeeRule(r *latefeerule.LateFeeRule) *latefeerule.LateFeeRule {
	if r == nil {
		return nil
	}
	copied := *r
	copied.Metadata = lo.Assign(types.Metadata{}, r.Metadata)
	return &copied
}

func (s *InMemoryLateFeeRuleStore) Create(ctx context.Context, rule *latefeerule.LateFeeRule) error {
	return s.InMemoryStore.Create(ctx, rule.ID, copyLateFeeRule(rule))
}

func (s *InMemoryLateFeeRuleStore) Get(ctx context.Context, id string) (*latefeerule.LateFeeRule, error) {
	rule, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || rule.Status == types.StatusDeleted {
		return nil, ierr.NewError("late fee rule not found").
			WithHintf("Late fee rule %s does not exist", id).
			Mark(ierr.ErrNotFound)
	}
	return copyLateFeeRule(rule), nil
}

func (s *InMemoryLateFeeRuleStore) Update(ctx context.Context, rule *latefeerule.LateFeeRule) error {
	return s.InMemoryStore.Update(ctx, rule.ID, copyLateFeeRule(rule))
}

func (s *InMemoryLateFeeRuleStore) Delete(ctx context.Context, id string) error {
	rule, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return err
	}
	deleted := copyLateFeeRule(rule)
	deleted.Status = types.StatusDeleted
	return s.InMemoryStore.Update(ctx, id, deleted)
}

func (s *InMemoryLateFeeRuleStore) List(ctx context.Context, tenantID string) ([]*latefeerule.LateFeeRule, error) {
	rules, err := s.InMemoryStore.List(ctx, func(_ context.Context, r *latefeerule.LateFeeRule) bool {
		return r.TenantID == tenantID && r.Status != types.StatusDeleted
	}, byLateFeePriority)
	if err != nil {
		return nil, err
	}
	return lo.Map(rules, func(r *latefeerule.LateFeeRule, _ int) *latefeerule.LateFeeRule {
		return copyLateFeeRule(r)
	}), nil
}

func (s *InMemoryLateFeeRuleStore) ListActive(ctx context.Context, tenantID string, asOf time.Time) ([]*latefeerule.LateFeeRule, error) {
	rules, err := s.InMemoryStore.List(ctx, func(_ context.Context, r *latefeerule.LateFeeRule) bool {
		return r.TenantID == tenantID &&
			r.Status != types.StatusDeleted &&
			r.IsActiveAt(asOf)
	}, byLateFeePriority)
	if err != nil {
		return nil, err
	}
	return lo.Map(rules, func(r *latefeerule.LateFeeRule, _ int) *latefeerule.LateFeeRule {
		return copyLateFeeRule(r)
	}), nil
}

func byLateFeePriority(i, j *latefeerule.LateFeeRule) bool {
	if i.Priority != j.Priority {
		return i.Priority > j.Priority
	}
	return i.CreatedAt.After(j.CreatedAt)
}
