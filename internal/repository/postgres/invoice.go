package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/recivo/recivo/internal/domain/invoice"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/logger"
	"github.com/recivo/recivo/internal/postgres"
	"github.com/recivo/recivo/internal/types"
)

type invoiceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{db: db, logger: logger}
}

const invoiceColumns = `
	id, customer_id, customer_type, currency, subtotal, total_amount,
	amount_due, payment_status, due_date, paid_at, metadata, version,
	tenant_id, status, created_at, updated_at, created_by, updated_by
`

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	query := `
	SELECT ` + invoiceColumns + `
	FROM invoices
	WHERE id = $1 AND tenant_id = $2 AND status != $3
	`

	var inv invoice.Invoice
	err := r.db.GetQuerier(ctx).GetContext(ctx, &inv, query,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("invoice not found").
				WithHintf("Invoice %s does not exist", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get invoice").
			Mark(ierr.ErrDatabase)
	}
	return &inv, nil
}

func (r *invoiceRepository) ListOverdue(ctx context.Context, tenantID string, asOf time.Time) ([]*invoice.Invoice, error) {
	query := `
	SELECT ` + invoiceColumns + `
	FROM invoices
	WHERE tenant_id = $1
	  AND status != $2
	  AND payment_status != $3
	  AND due_date IS NOT NULL
	  AND due_date < $4
	ORDER BY due_date ASC
	`

	invoices := make([]*invoice.Invoice, 0)
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &invoices, query,
		tenantID, types.StatusDeleted, types.InvoicePaymentStatusSucceeded, asOf)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list overdue invoices").
			Mark(ierr.ErrDatabase)
	}
	return invoices, nil
}

func (r *invoiceRepository) ListTenantsWithOverdue(ctx context.Context, asOf time.Time) ([]string, error) {
	query := `
	SELECT DISTINCT tenant_id
	FROM invoices
	WHERE status != $1
	  AND payment_status != $2
	  AND due_date IS NOT NULL
	  AND due_date < $3
	`

	tenantIDs := make([]string, 0)
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &tenantIDs, query,
		types.StatusDeleted, types.InvoicePaymentStatusSucceeded, asOf)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list tenants with overdue invoices").
			Mark(ierr.ErrDatabase)
	}
	return tenantIDs, nil
}

func (r *invoiceRepository) UpdateAmountDue(ctx context.Context, inv *invoice.Invoice) error {
	// Optimistic concurrency: the update only lands when the row version
	// still matches the version the invoice was read at.
	query := `
	UPDATE invoices
	SET amount_due = $1, version = version + 1, updated_at = $2, updated_by = $3
	WHERE id = $4 AND tenant_id = $5 AND version = $6
	`

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		inv.AmountDue,
		time.Now().UTC(),
		types.GetUserID(ctx),
		inv.ID,
		inv.TenantID,
		inv.Version,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update invoice amount due").
			Mark(ierr.ErrDatabase)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read update result").
			Mark(ierr.ErrDatabase)
	}
	if rows == 0 {
		return ierr.NewError("invoice version conflict").
			WithHintf("Invoice %s was modified concurrently", inv.ID).
			Mark(ierr.ErrInvalidOperation)
	}

	inv.Version++
	return nil
}
