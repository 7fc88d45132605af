package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/recivo/recivo/internal/domain/discount_application"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/logger"
	"github.com/recivo/recivo/internal/postgres"
	"github.com/recivo/recivo/internal/types"
)

type discountApplicationRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewDiscountApplicationRepository(db *postgres.DB, logger *logger.Logger) discount_application.Repository {
	return &discountApplicationRepository{db: db, logger: logger}
}

const discountApplicationColumns = `
	id, rule_id, invoice_id, transaction_id, idempotency_key,
	original_amount, discount_amount, final_amount, application_status,
	applied_at, days_before_due_date, experiment_id, variant_id,
	rule_snapshot, metadata,
	tenant_id, status, created_at, updated_at, created_by, updated_by
`

func (r *discountApplicationRepository) Create(ctx context.Context, app *discount_application.DiscountApplication) error {
	query := `
	INSERT INTO discount_applications (` + discountApplicationColumns + `)
	VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21
	)
	`

	snapshotJSON, err := json.Marshal(app.RuleSnapshot)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode rule snapshot").
			Mark(ierr.ErrInternal)
	}

	_, err = r.db.GetQuerier(ctx).ExecContext(ctx, query,
		app.ID, app.RuleID, app.InvoiceID, app.TransactionID,
		app.IdempotencyKey, app.OriginalAmount, app.DiscountAmount,
		app.FinalAmount, app.ApplicationStatus, app.AppliedAt,
		app.DaysBeforeDueDate, app.ExperimentID, app.VariantID,
		snapshotJSON, app.Metadata,
		app.TenantID, app.Status, app.CreatedAt, app.UpdatedAt,
		app.CreatedBy, app.UpdatedBy,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create discount application").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *discountApplicationRepository) Get(ctx context.Context, id string) (*discount_application.DiscountApplication, error) {
	query := `
	SELECT ` + discountApplicationColumns + `
	FROM discount_applications
	WHERE id = $1 AND tenant_id = $2 AND status != $3
	`

	row := r.db.GetQuerier(ctx).QueryRowContext(ctx, query,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	app, err := scanDiscountApplication(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("discount application not found").
				WithHintf("Discount application %s does not exist", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get discount application").
			Mark(ierr.ErrDatabase)
	}
	return app, nil
}

func (r *discountApplicationRepository) Update(ctx context.Context, app *discount_application.DiscountApplication) error {
	query := `
	UPDATE discount_applications
	SET transaction_id = $1, application_status = $2, metadata = $3,
		updated_at = $4, updated_by = $5
	WHERE id = $6 AND tenant_id = $7 AND status != $8
	`

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		app.TransactionID, app.ApplicationStatus, app.Metadata,
		time.Now().UTC(), types.GetUserID(ctx),
		app.ID, app.TenantID, types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update discount application").
			Mark(ierr.ErrDatabase)
	}
	return requireRowsAffected(result, "discount application", app.ID)
}

func (r *discountApplicationRepository) GetByInvoice(ctx context.Context, invoiceID string) ([]*discount_application.DiscountApplication, error) {
	query := `
	SELECT ` + discountApplicationColumns + `
	FROM discount_applications
	WHERE invoice_id = $1 AND tenant_id = $2 AND status != $3
	ORDER BY applied_at DESC
	`

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query,
		invoiceID, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list discount applications").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	apps := make([]*discount_application.DiscountApplication, 0)
	for rows.Next() {
		app, err := scanDiscountApplication(rows)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan discount application").
				Mark(ierr.ErrDatabase)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to iterate discount applications").
			Mark(ierr.ErrDatabase)
	}
	return apps, nil
}

func (r *discountApplicationRepository) FindApplied(ctx context.Context, invoiceID string) (*discount_application.DiscountApplication, error) {
	query := `
	SELECT ` + discountApplicationColumns + `
	FROM discount_applications
	WHERE invoice_id = $1 AND tenant_id = $2 AND status != $3
	  AND application_status = $4
	`

	row := r.db.GetQuerier(ctx).QueryRowContext(ctx, query,
		invoiceID, types.GetTenantID(ctx), types.StatusDeleted,
		types.ApplicationStatusApplied)
	app, err := scanDiscountApplication(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("no applied discount for invoice").
				WithHintf("Invoice %s has no applied discount", invoiceID).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to find applied discount").
			Mark(ierr.ErrDatabase)
	}
	return app, nil
}

func (r *discountApplicationRepository) FindByTransaction(ctx context.Context, transactionID string) (*discount_application.DiscountApplication, error) {
	query := `
	SELECT ` + discountApplicationColumns + `
	FROM discount_applications
	WHERE transaction_id = $1 AND tenant_id = $2 AND status != $3
	`

	row := r.db.GetQuerier(ctx).QueryRowContext(ctx, query,
		transactionID, types.GetTenantID(ctx), types.StatusDeleted)
	app, err := scanDiscountApplication(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("discount application not found for transaction").
				WithHintf("No discount application references transaction %s", transactionID).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to find discount application by transaction").
			Mark(ierr.ErrDatabase)
	}
	return app, nil
}

func scanDiscountApplication(row rowScanner) (*discount_application.DiscountApplication, error) {
	var app discount_application.DiscountApplication
	var snapshotJSON []byte

	err := row.Scan(
		&app.ID, &app.RuleID, &app.InvoiceID, &app.TransactionID,
		&app.IdempotencyKey, &app.OriginalAmount, &app.DiscountAmount,
		&app.FinalAmount, &app.ApplicationStatus, &app.AppliedAt,
		&app.DaysBeforeDueDate, &app.ExperimentID, &app.VariantID,
		&snapshotJSON, &app.Metadata,
		&app.TenantID, &app.Status, &app.CreatedAt, &app.UpdatedAt,
		&app.CreatedBy, &app.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	if len(snapshotJSON) > 0 {
		if err := json.Unmarshal(snapshotJSON, &app.RuleSnapshot); err != nil {
			return nil, err
		}
	}
	return &app, nil
}
