package testutil

import (
	"context"
	"time"

	"github.com/recivo/recivo/internal/domain/invoice"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/types"
	"github.com/samber/lo"
)

// InMemoryInvoiceStore implements invoice.Repository
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]
}

func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore[*invoice.Invoice](),
	}
}

func copyInvoice(inv *invoice.Invoice) *invoice.Invoice {
	if inv == nil {
		return nil
	}
	copied := *inv
	copied.Metadata = lo.Assign(types.Metadata{}, inv.Metadata)
	return &copied
}

// CreateInvoice seeds an invoice into the store
func (s *InMemoryInvoiceStore) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	return s.InMemoryStore.Create(ctx, inv.ID, copyInvoice(inv))
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("invoice not found").
			WithHintf("Invoice %s does not exist", id).
			Mark(ierr.ErrNotFound)
	}
	return copyInvoice(inv), nil
}

func (s *InMemoryInvoiceStore) ListOverdue(ctx context.Context, tenantID string, asOf time.Time) ([]*invoice.Invoice, error) {
	invoices, err := s.InMemoryStore.List(ctx, func(_ context.Context, inv *invoice.Invoice) bool {
		return inv.TenantID == tenantID &&
			inv.Status != types.StatusDeleted &&
			!inv.IsPaid() &&
			inv.DueDate != nil &&
			inv.DueDate.Before(asOf)
	}, func(i, j *invoice.Invoice) bool {
		return i.DueDate.Before(*j.DueDate)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(invoices, func(inv *invoice.Invoice, _ int) *invoice.Invoice {
		return copyInvoice(inv)
	}), nil
}

func (s *InMemoryInvoiceStore) ListTenantsWithOverdue(ctx context.Context, asOf time.Time) ([]string, error) {
	invoices, err := s.InMemoryStore.List(ctx, func(_ context.Context, inv *invoice.Invoice) bool {
		return inv.Status != types.StatusDeleted &&
			!inv.IsPaid() &&
			inv.DueDate != nil &&
			inv.DueDate.Before(asOf)
	}, nil)
	if err != nil {
		return nil, err
	}
	tenants := lo.Uniq(lo.Map(invoices, func(inv *invoice.Invoice, _ int) string {
		return inv.TenantID
	}))
	return tenants, nil
}

func (s *InMemoryInvoiceStore) UpdateAmountDue(ctx context.Context, inv *invoice.Invoice) error {
	current, err := s.InMemoryStore.Get(ctx, inv.ID)
	if err != nil {
		return ierr.NewError("invoice not found").
			WithHintf("Invoice %s does not exist", inv.ID).
			Mark(ierr.ErrNotFound)
	}
	if current.Version != inv.Version {
		return ierr.NewError("invoice version conflict").
			WithHintf("Invoice %s was modified concurrently", inv.ID).
			Mark(ierr.ErrInvalidOperation)
	}

	updated := copyInvoice(inv)
	updated.Version++
	if err := s.InMemoryStore.Update(ctx, inv.ID, updated); err != nil {
		return err
	}
	inv.Version++
	return nil
}

// MarkPaid flips an invoice to paid, for test setup
func (s *InMemoryInvoiceStore) MarkPaid(ctx context.Context, id string) error {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return err
	}
	updated := copyInvoice(inv)
	updated.PaymentStatus = types.InvoicePaymentStatusSucceeded
	now := time.Now().UTC()
	updated.PaidAt = &now
	return s.InMemoryStore.Update(ctx, id, updated)
}
