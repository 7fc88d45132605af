package testutil

import (
	"context"

	"github.com/recivo/recivo/internal/domain/latefee_application"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/types"
	"github.com/samber/lo"
)

// InMemoryLateFeeApplicationStore implements latefee_application.Repository
type InMemoryLateFeeApplicationStore struct {
	*InMemoryStore[*latefee_application.LateFeeApplication]
}

func NewInMemoryLateFeeApplicationStore() *InMemoryLateFeeApplicationStore {
	return &InMemoryLateFeeApplicationStore{
		InMemoryStore: NewInMemoryStore[*latefee_application.LateFeeApplication](),
	}
}

func copyLateFeeApplication(a *latefee_application.LateFeeApplication) *latefee_application.LateFeeApplication {
	if a == nil {
		return nil
	}
	copied := *a
	copied.Metadata = lo.Assign(types.Metadata{}, a.Metadata)
	return &copied
}

func (s *InMemoryLateFeeApplicationStore) Create(ctx context.Context, application *latefee_application.LateFeeApplication) error {
	return s.InMemoryStore.Create(ctx, application.ID, copyLateFeeApplication(application))
}

func (s *InMemoryLateFeeApplicationStore) Get(ctx context.Context, id string) (*latefee_application.LateFeeApplication, error) {
	application, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("late fee application not found").
			WithHintf("Late fee application %s does not exist", id).
			Mark(ierr.ErrNotFound)
	}
	return copyLateFeeApplication(application), nil
}

func (s *InMemoryLateFeeApplicationStore) Update(ctx context.Context, application *latefee_application.LateFeeApplication) error {
	return s.InMemoryStore.Update(ctx, application.ID, copyLateFeeApplication(application))
}

func (s *InMemoryLateFeeApplicationStore) GetByInvoice(ctx context.Context, invoiceID string) ([]*latefee_application.LateFeeApplication, error) {
	applications, err := s.InMemoryStore.List(ctx, func(_ context.Context, a *latefee_application.LateFeeApplication) bool {
		return a.InvoiceID == invoiceID
	}, func(i, j *latefee_application.LateFeeApplication) bool {
		return i.AppliedAt.Before(j.AppliedAt)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(applications, func(a *latefee_application.LateFeeApplication, _ int) *latefee_application.LateFeeApplication {
		return copyLateFeeApplication(a)
	}), nil
}

func (s *InMemoryLateFeeApplicationStore) FindApplied(ctx context.Context, invoiceID string) (*latefee_application.LateFeeApplication, error) {
	applications, err := s.InMemoryStore.List(ctx, func(_ context.Context, a *latefee_application.LateFeeApplication) bool {
		return a.InvoiceID == invoiceID && a.IsApplied()
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(applications) == 0 {
		return nil, ierr.NewError("no applied late fee for invoice").
			WithHintf("Invoice %s has no applied late fee", invoiceID).
			Mark(ierr.ErrNotFound)
	}
	return copyLateFeeApplication(applications[0]), nil
}

func (s *InMemoryLateFeeApplicationStore) FindByIdempotencyKey(ctx context.Context, key string) (*latefee_application.LateFeeApplication, error) {
	applications, err := s.InMemoryStore.List(ctx, func(_ context.Context, a *latefee_application.LateFeeApplication) bool {
		return a.IdempotencyKey != nil && *a.IdempotencyKey == key
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(applications) == 0 {
		return nil, ierr.NewError("no late fee application for key").
			WithHint("No late fee application was created under this idempotency key").
			Mark(ierr.ErrNotFound)
	}
	return copyLateFeeApplication(applications[0]), nil
}
