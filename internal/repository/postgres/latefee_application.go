package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/recivo/recivo/internal/domain/latefee_application"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/logger"
	"github.com/recivo/recivo/internal/postgres"
	"github.com/recivo/recivo/internal/types"
)

type lateFeeApplicationRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewLateFeeApplicationRepository(db *postgres.DB, logger *logger.Logger) latefee_application.Repository {
	return &lateFeeApplicationRepository{db: db, logger: logger}
}

const lateFeeApplicationColumns = `
	id, rule_id, invoice_id, transaction_id, idempotency_key,
	original_amount, fee_amount, total_amount, days_overdue,
	application_status, applied_at, waived_at, waived_reason, waived_by,
	waiver_reference, experiment_id, variant_id, rule_snapshot, metadata,
	tenant_id, status, created_at, updated_at, created_by, updated_by
`

func (r *lateFeeApplicationRepository) Create(ctx context.Context, app *latefee_application.LateFeeApplication) error {
	query := `
	INSERT INTO late_fee_applications (` + lateFeeApplicationColumns + `)
	VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23, $24, $25
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
		app.IdempotencyKey, app.OriginalAmount, app.FeeAmount,
		app.TotalAmount, app.DaysOverdue, app.ApplicationStatus,
		app.AppliedAt, app.WaivedAt, app.WaivedReason, app.WaivedBy,
		app.WaiverReference, app.ExperimentID, app.VariantID, snapshotJSON,
		app.Metadata, app.TenantID, app.Status, app.CreatedAt, app.UpdatedAt,
		app.CreatedBy, app.UpdatedBy,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create late fee application").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *lateFeeApplicationRepository) Get(ctx context.Context, id string) (*latefee_application.LateFeeApplication, error) {
	query := `
	SELECT ` + lateFeeApplicationColumns + `
	FROM late_fee_applications
	WHERE id = $1 AND tenant_id = $2 AND status != $3
	`

	row := r.db.GetQuerier(ctx).QueryRowContext(ctx, query,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	app, err := scanLateFeeApplication(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("late fee application not found").
				WithHintf("Late fee application %s does not exist", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get late fee application").
			Mark(ierr.ErrDatabase)
	}
	return app, nil
}

func (r *lateFeeApplicationRepository) Update(ctx context.Context, app *latefee_application.LateFeeApplication) error {
	query := `
	UPDATE late_fee_applications
	SET transaction_id = $1, application_status = $2, waived_at = $3,
		waived_reason = $4, waived_by = $5, waiver_reference = $6,
		metadata = $7, updated_at = $8, updated_by = $9
	WHERE id = $10 AND tenant_id = $11 AND status != $12
	`

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		app.TransactionID, app.ApplicationStatus, app.WaivedAt,
		app.WaivedReason, app.WaivedBy, app.WaiverReference, app.Metadata,
		time.Now().UTC(), types.GetUserID(ctx),
		app.ID, app.TenantID, types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update late fee application").
			Mark(ierr.ErrDatabase)
	}
	return requireRowsAffected(result, "late fee application", app.ID)
}

func (r *lateFeeApplicationRepository) GetByInvoice(ctx context.Context, invoiceID string) ([]*latefee_application.LateFeeApplication, error) {
	query := `
	SELECT ` + lateFeeApplicationColumns + `
	FROM late_fee_applications
	WHERE invoice_id = $1 AND tenant_id = $2 AND status != $3
	ORDER BY applied_at DESC
	`

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query,
		invoiceID, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list late fee applications").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	apps := make([]*latefee_application.LateFeeApplication, 0)
	for rows.Next() {
		app, err := scanLateFeeApplication(rows)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan late fee application").
				Mark(ierr.ErrDatabase)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to iterate late fee applications").
			Mark(ierr.ErrDatabase)
	}
	return apps, nil
}

func (r *lateFeeApplicationRepository) FindApplied(ctx context.Context, invoiceID string) (*latefee_application.LateFeeApplication, error) {
	query := `
	SELECT ` + lateFeeApplicationColumns + `
	FROM late_fee_applications
	WHERE invoice_id = $1 AND tenant_id = $2 AND status != $3
	  AND application_status = $4
	`

	row := r.db.GetQuerier(ctx).QueryRowContext(ctx, query,
		invoiceID, types.GetTenantID(ctx), types.StatusDeleted,
		types.ApplicationStatusApplied)
	app, err := scanLateFeeApplication(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("no applied late fee for invoice").
				WithHintf("Invoice %s has no applied late fee", invoiceID).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to find applied late fee").
			Mark(ierr.ErrDatabase)
	}
	return app, nil
}

func (r *lateFeeApplicationRepository) FindByIdempotencyKey(ctx context.Context, key string) (*latefee_application.LateFeeApplication, error) {
	query := `
	SELECT ` + lateFeeApplicationColumns + `
	FROM late_fee_applications
	WHERE idempotency_key = $1 AND tenant_id = $2 AND status != $3
	`

	row := r.db.GetQuerier(ctx).QueryRowContext(ctx, query,
		key, types.GetTenantID(ctx), types.StatusDeleted)
	app, err := scanLateFeeApplication(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("late fee application not found for key").
				WithHint("No late fee application exists under this idempotency key").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to find late fee application by idempotency key").
			Mark(ierr.ErrDatabase)
	}
	return app, nil
}

func scanLateFeeApplication(row rowScanner) (*latefee_application.LateFeeApplication, error) {
	var app latefee_application.LateFeeApplication
	var snapshotJSON []byte

	err := row.Scan(
		&app.ID, &app.RuleID, &app.InvoiceID, &app.TransactionID,
		&app.IdempotencyKey, &app.OriginalAmount, &app.FeeAmount,
		&app.TotalAmount, &app.DaysOverdue, &app.ApplicationStatus,
		&app.AppliedAt, &app.WaivedAt, &app.WaivedReason, &app.WaivedBy,
		&app.WaiverReference, &app.ExperimentID, &app.VariantID,
		&snapshotJSON, &app.Metadata, &app.TenantID, &app.Status,
		&app.CreatedAt, &app.UpdatedAt, &app.CreatedBy, &app.UpdatedBy,
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
