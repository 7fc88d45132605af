package testutil

import (
	"context"
	"time"

	"github.com/recivo/recivo/internal/domain/discountrule"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/types"
	"github.com/samber/lo"
)

// InMemoryDiscountRuleStore implements discountrule.Repository
type InMemoryDiscountRuleStore struct {
	*InMemoryStore[*discountrule.DiscountRule]
}

func NewInMemoryDiscountRuleStore() *InMemoryDiscountRuleStore {
	return &InMemoryDiscountRuleStore{
		InMemoryStore: NewInMemoryStore[*discountrule.DiscountRule](),
	}
}

func copyDiscountRule(r *discountrule.DiscountRule) *discountrule.DiscountRule {
	if r == nil {
		return nil
	}
	copied := *r
	copied.Metadata = lo.Assign(types.Metadata{}, r.Metadata)
	return &copied
}

func (s *InMemoryDiscountRuleStore) Create(ctx context.Context, rule *discountrule.DiscountRule) error {
	return s.InMemoryStore.Create(ctx, rule.ID, copyDiscountRule(rule))
}

func (s *InMemoryDiscountRuleStore) Get(ctx context.Context, id string) (*discountrule.DiscountRule, error) {
	rule, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || rule.Status == types.StatusDeleted {
		return nil, ierr.NewError("discount rule not found").
			WithHintf("Discount rule %s does not exist", id).
			Mark(ierr.ErrNotFound)
	}
	return copyDiscountRule(rule), nil
}

func (s *InMemoryDiscountRuleStore) Update(ctx context.Context, rule *discountrule.DiscountRule) error {
	return s.InMemoryStore.Update(ctx, rule.ID, copyDiscountRule(rule))
}

func (s *InMemoryDiscountRuleStore) Delete(ctx context.Context, id string) error {
	rule, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return err
	}
	deleted := copyDiscountRule(rule)
	deleted.Status = types.StatusDeleted
	return s.InMemoryStore.Update(ctx, id, deleted)
}

func (s *InMemoryDiscountRuleStore) List(ctx context.Context, tenantID string) ([]*discountrule.DiscountRule, error) {
	rules, err := s.InMemoryStore.List(ctx, func(_ context.Context, r *discountrule.DiscountRule) bool {
		return r.TenantID == tenantID && r.Status != types.StatusDeleted
	}, byDiscountPriority)
	if err != nil {
		return nil, err
	}
	return lo.Map(rules, func(r *discountrule.DiscountRule, _ int) *discountrule.DiscountRule {
		return copyDiscountRule(r)
	}), nil
}

func (s *InMemoryDiscountRuleStore) ListActive(ctx context.Context, tenantID string, asOf time.Time) ([]*discountrule.DiscountRule, error) {
	rules, err := s.InMemoryStore.List(ctx, func(_ context.Context, r *discountrule.DiscountRule) bool {
		return r.TenantID == tenantID &&
			r.Status != types.StatusDeleted &&
			r.IsActiveAt(asOf)
	}, byDiscountPriority)
	if err != nil {
		return nil, err
	}
	return lo.Map(rules, func(r *discountrule.DiscountRule, _ int) *discountrule.DiscountRule {
		return copyDiscountRule(r)
	}), nil
}

func byDiscountPriority(i, j *discountrule.DiscountRule) bool {
	if i.Priority != j.Priority {
		return i.Priority > j.Priority
	}
	return i.CreatedAt.After(j.CreatedAt)
}
