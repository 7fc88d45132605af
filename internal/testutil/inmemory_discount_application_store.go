package testutil

import (
	"context"

	"github.com/recivo/recivo/internal/domain/discount_application"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/types"
	"github.com/samber/lo"
)

// InMemoryDiscountApplicationStore implements discount_application.Repository
type InMemoryDiscountApplicationStore struct {
	*InMemoryStore[*discount_application.DiscountApplication]
}

func NewInMemoryDiscountApplicationStore() *InMemoryDiscountApplicationStore {
	return &InMemoryDiscountApplicationStore{
		InMemoryStore: NewInMemoryStore[*discount_application.DiscountApplication](),
	}
}

func copyDiscountApplication(a *discount_application.DiscountApplication) *discount_application.DiscountApplication {
	if a == nil {
		return nil
	}
	copied := *a
	copied.Metadata = lo.Assign(types.Metadata{}, a.Metadata)
	return &copied
}

func (s *InMemoryDiscountApplicationStore) Create(ctx context.Context, application *discount_application.DiscountApplication) error {
	return s.InMemoryStore.Create(ctx, application.ID, copyDiscountApplication(application))
}

func (s *InMemoryDiscountApplicationStore) Get(ctx context.Context, id string) (*discount_application.DiscountApplication, error) {
	application, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("discount application not found").
			WithHintf("Discount application %s does not exist", id).
			Mark(ierr.ErrNotFound)
	}
	return copyDiscountApplication(application), nil
}

func (s *InMemoryDiscountApplicationStore) Update(ctx context.Context, application *discount_application.DiscountApplication) error {
	return s.InMemoryStore.Update(ctx, application.ID, copyDiscountApplication(application))
}

func (s *InMemoryDiscountApplicationStore) GetByInvoice(ctx context.Context, invoiceID string) ([]*discount_application.DiscountApplication, error) {
	applications, err := s.InMemoryStore.List(ctx, func(_ context.Context, a *discount_application.DiscountApplication) bool {
		return a.InvoiceID == invoiceID
	}, func(i, j *discount_application.DiscountApplication) bool {
		return i.AppliedAt.Before(j.AppliedAt)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(applications, func(a *discount_application.DiscountApplication, _ int) *discount_application.DiscountApplication {
		return copyDiscountApplication(a)
	}), nil
}

func (s *InMemoryDiscountApplicationStore) FindApplied(ctx context.Context, invoiceID string) (*discount_application.DiscountApplication, error) {
	applications, err := s.InMemoryStore.List(ctx, func(_ context.Context, a *discount_application.DiscountApplication) bool {
		return a.InvoiceID == invoiceID && a.IsApplied()
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(applications) == 0 {
		return nil, ierr.NewError("no applied discount for invoice").
			WithHintf("Invoice %s has no applied discount", invoiceID).
			Mark(ierr.ErrNotFound)
	}
	return copyDiscountApplication(applications[0]), nil
}

func (s *InMemoryDiscountApplicationStore) FindByTransaction(ctx context.Context, transactionID string) (*discount_application.DiscountApplication, error) {
	applications, err := s.InMemoryStore.List(ctx, func(_ context.Context, a *discount_application.DiscountApplication) bool {
		return a.TransactionID != nil && *a.TransactionID == transactionID
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(applications) == 0 {
		return nil, ierr.NewError("no discount application for transaction").
			WithHintf("Transaction %s has no discount application", transactionID).
			Mark(ierr.ErrNotFound)
	}
	return copyDiscountApplication(applications[0]), nil
}
