package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/recivo/recivo/internal/domain/latefeerule"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/logger"
	"github.com/recivo/recivo/internal/postgres"
	"github.com/recivo/recivo/internal/types"
)

type lateFeeRuleRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewLateFeeRuleRepository(db *postgres.DB, logger *logger.Logger) latefeerule.Repository {
	return &lateFeeRuleRepository{db: db, logger: logger}
}

const lateFeeRuleColumns = `
	id, name, fee_type, fee_value, frequency, grace_period_days,
	maximum_fee_amount, maximum_fee_percentage, rule_status, is_enabled,
	valid_from, valid_until, minimum_invoice_amount, currency, priority,
	experiment_id, metadata, tenant_id, status, created_at, updated_at,
	created_by, updated_by
`

func (r *lateFeeRuleRepository) Create(ctx context.Context, rule *latefeerule.LateFeeRule) error {
	query := `
	INSERT INTO late_fee_rules (` + lateFeeRuleColumns + `)
	VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23
	)
	`

	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		rule.ID, rule.Name, rule.FeeType, rule.FeeValue, rule.Frequency,
		rule.GracePeriodDays, rule.MaximumFeeAmount, rule.MaximumFeePercentage,
		rule.RuleStatus, rule.IsEnabled, rule.ValidFrom, rule.ValidUntil,
		rule.MinimumInvoiceAmount, rule.Currency, rule.Priority,
		rule.ExperimentID, rule.Metadata, rule.TenantID, rule.Status,
		rule.CreatedAt, rule.UpdatedAt, rule.CreatedBy, rule.UpdatedBy,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create late fee rule").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *lateFeeRuleRepository) Get(ctx context.Context, id string) (*latefeerule.LateFeeRule, error) {
	query := `
	SELECT ` + lateFeeRuleColumns + `
	FROM late_fee_rules
	WHERE id = $1 AND tenant_id = $2 AND status != $3
	`

	var rule latefeerule.LateFeeRule
	err := r.db.GetQuerier(ctx).GetContext(ctx, &rule, query,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("late fee rule not found").
				WithHintf("Late fee rule %s does not exist", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get late fee rule").
			Mark(ierr.ErrDatabase)
	}
	return &rule, nil
}

func (r *lateFeeRuleRepository) Update(ctx context.Context, rule *latefeerule.LateFeeRule) error {
	query := `
	UPDATE late_fee_rules
	SET name = $1, fee_value = $2, grace_period_days = $3,
		maximum_fee_amount = $4, maximum_fee_percentage = $5,
		rule_status = $6, is_enabled = $7, valid_from = $8, valid_until = $9,
		priority = $10, metadata = $11, updated_at = $12, updated_by = $13
	WHERE id = $14 AND tenant_id = $15 AND status != $16
	`

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		rule.Name, rule.FeeValue, rule.GracePeriodDays, rule.MaximumFeeAmount,
		rule.MaximumFeePercentage, rule.RuleStatus, rule.IsEnabled,
		rule.ValidFrom, rule.ValidUntil, rule.Priority, rule.Metadata,
		time.Now().UTC(), types.GetUserID(ctx),
		rule.ID, rule.TenantID, types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update late fee rule").
			Mark(ierr.ErrDatabase)
	}
	return requireRowsAffected(result, "late fee rule", rule.ID)
}

func (r *lateFeeRuleRepository) Delete(ctx context.Context, id string) error {
	query := `
	UPDATE late_fee_rules
	SET status = $1, updated_at = $2, updated_by = $3
	WHERE id = $4 AND tenant_id = $5 AND status != $1
	`

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		types.StatusDeleted, time.Now().UTC(), types.GetUserID(ctx),
		id, types.GetTenantID(ctx),
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete late fee rule").
			Mark(ierr.ErrDatabase)
	}
	return requireRowsAffected(result, "late fee rule", id)
}

func (r *lateFeeRuleRepository) List(ctx context.Context, tenantID string) ([]*latefeerule.LateFeeRule, error) {
	query := `
	SELECT ` + lateFeeRuleColumns + `
	FROM late_fee_rules
	WHERE tenant_id = $1 AND status != $2
	ORDER BY priority DESC, created_at DESC
	`

	rules := make([]*latefeerule.LateFeeRule, 0)
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &rules, query, tenantID, types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list late fee rules").
			Mark(ierr.ErrDatabase)
	}
	return rules, nil
}

func (r *lateFeeRuleRepository) ListActive(ctx context.Context, tenantID string, asOf time.Time) ([]*latefeerule.LateFeeRule, error) {
	query := `
	SELECT ` + lateFeeRuleColumns + `
	FROM late_fee_rules
	WHERE tenant_id = $1
	  AND status != $2
	  AND rule_status = $3
	  AND is_enabled = true
	  AND (valid_from IS NULL OR valid_from <= $4)
	  AND (valid_until IS NULL OR valid_until >= $4)
	ORDER BY priority DESC, created_at DESC
	`

	rules := make([]*latefeerule.LateFeeRule, 0)
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &rules, query,
		tenantID, types.StatusDeleted, types.RuleStatusActive, asOf)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list active late fee rules").
			Mark(ierr.ErrDatabase)
	}
	return rules, nil
}
