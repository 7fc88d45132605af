package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/recivo/recivo/internal/domain/discountrule"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/logger"
	"github.com/recivo/recivo/internal/postgres"
	"github.com/recivo/recivo/internal/types"
)

type discountRuleRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewDiscountRuleRepository(db *postgres.DB, logger *logger.Logger) discountrule.Repository {
	return &discountRuleRepository{db: db, logger: logger}
}

const discountRuleColumns = `
	id, name, discount_type, discount_value, trigger_type, trigger_conditions,
	rule_status, is_enabled, valid_from, valid_until, minimum_amount,
	maximum_amount, currency, priority, is_automatically_applied,
	experiment_id, metadata, tenant_id, status, created_at, updated_at,
	created_by, updated_by
`

func (r *discountRuleRepository) Create(ctx context.Context, rule *discountrule.DiscountRule) error {
	query := `
	INSERT INTO discount_rules (` + discountRuleColumns + `)
	VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23
	)
	`

	conditionsJSON, err := json.Marshal(rule.TriggerConditions)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode trigger conditions").
			Mark(ierr.ErrInternal)
	}

	_, err = r.db.GetQuerier(ctx).ExecContext(ctx, query,
		rule.ID, rule.Name, rule.DiscountType, rule.DiscountValue,
		rule.TriggerType, conditionsJSON, rule.RuleStatus, rule.IsEnabled,
		rule.ValidFrom, rule.ValidUntil, rule.MinimumAmount, rule.MaximumAmount,
		rule.Currency, rule.Priority, rule.IsAutomaticallyApplied,
		rule.ExperimentID, rule.Metadata, rule.TenantID, rule.Status,
		rule.CreatedAt, rule.UpdatedAt, rule.CreatedBy, rule.UpdatedBy,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create discount rule").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *discountRuleRepository) Get(ctx context.Context, id string) (*discountrule.DiscountRule, error) {
	query := `
	SELECT ` + discountRuleColumns + `
	FROM discount_rules
	WHERE id = $1 AND tenant_id = $2 AND status != $3
	`

	row := r.db.GetQuerier(ctx).QueryRowContext(ctx, query,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	rule, err := scanDiscountRule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("discount rule not found").
				WithHintf("Discount rule %s does not exist", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get discount rule").
			Mark(ierr.ErrDatabase)
	}
	return rule, nil
}

func (r *discountRuleRepository) Update(ctx context.Context, rule *discountrule.DiscountRule) error {
	query := `
	UPDATE discount_rules
	SET name = $1, discount_value = $2, trigger_conditions = $3,
		rule_status = $4, is_enabled = $5, valid_from = $6, valid_until = $7,
		minimum_amount = $8, maximum_amount = $9, priority = $10,
		metadata = $11, updated_at = $12, updated_by = $13
	WHERE id = $14 AND tenant_id = $15 AND status != $16
	`

	conditionsJSON, err := json.Marshal(rule.TriggerConditions)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode trigger conditions").
			Mark(ierr.ErrInternal)
	}

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		rule.Name, rule.DiscountValue, conditionsJSON, rule.RuleStatus,
		rule.IsEnabled, rule.ValidFrom, rule.ValidUntil, rule.MinimumAmount,
		rule.MaximumAmount, rule.Priority, rule.Metadata,
		time.Now().UTC(), types.GetUserID(ctx),
		rule.ID, rule.TenantID, types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update discount rule").
			Mark(ierr.ErrDatabase)
	}
	return requireRowsAffected(result, "discount rule", rule.ID)
}

func (r *discountRuleRepository) Delete(ctx context.Context, id string) error {
	query := `
	UPDATE discount_rules
	SET status = $1, updated_at = $2, updated_by = $3
	WHERE id = $4 AND tenant_id = $5 AND status != $1
	`

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		types.StatusDeleted, time.Now().UTC(), types.GetUserID(ctx),
		id, types.GetTenantID(ctx),
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete discount rule").
			Mark(ierr.ErrDatabase)
	}
	return requireRowsAffected(result, "discount rule", id)
}

func (r *discountRuleRepository) List(ctx context.Context, tenantID string) ([]*discountrule.DiscountRule, error) {
	query := `
	SELECT ` + discountRuleColumns + `
	FROM discount_rules
	WHERE tenant_id = $1 AND status != $2
	ORDER BY priority DESC, created_at DESC
	`

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query, tenantID, types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list discount rules").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	return collectDiscountRules(rows)
}

func (r *discountRuleRepository) ListActive(ctx context.Context, tenantID string, asOf time.Time) ([]*discountrule.DiscountRule, error) {
	query := `
	SELECT ` + discountRuleColumns + `
	FROM discount_rules
	WHERE tenant_id = $1
	  AND status != $2
	  AND rule_status = $3
	  AND is_enabled = true
	  AND (valid_from IS NULL OR valid_from <= $4)
	  AND (valid_until IS NULL OR valid_until >= $4)
	ORDER BY priority DESC, created_at DESC
	`

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query,
		tenantID, types.StatusDeleted, types.RuleStatusActive, asOf)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list active discount rules").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	return collectDiscountRules(rows)
}

func collectDiscountRules(rows *sql.Rows) ([]*discountrule.DiscountRule, error) {
	rules := make([]*discountrule.DiscountRule, 0)
	for rows.Next() {
		rule, err := scanDiscountRule(rows)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan discount rule").
				Mark(ierr.ErrDatabase)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to iterate discount rules").
			Mark(ierr.ErrDatabase)
	}
	return rules, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDiscountRule(row rowScanner) (*discountrule.DiscountRule, error) {
	var rule discountrule.DiscountRule
	var conditionsJSON []byte

	err := row.Scan(
		&rule.ID, &rule.Name, &rule.DiscountType, &rule.DiscountValue,
		&rule.TriggerType, &conditionsJSON, &rule.RuleStatus, &rule.IsEnabled,
		&rule.ValidFrom, &rule.ValidUntil, &rule.MinimumAmount,
		&rule.MaximumAmount, &rule.Currency, &rule.Priority,
		&rule.IsAutomaticallyApplied, &rule.ExperimentID, &rule.Metadata,
		&rule.TenantID, &rule.Status, &rule.CreatedAt, &rule.UpdatedAt,
		&rule.CreatedBy, &rule.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	if len(conditionsJSON) > 0 {
		if err := json.Unmarshal(conditionsJSON, &rule.TriggerConditions); err != nil {
			return nil, err
		}
	}
	return &rule, nil
}

// requireRowsAffected maps a zero-row write to a NotFound error
func requireRowsAffected(result sql.Result, entity string, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read update result").
			Mark(ierr.ErrDatabase)
	}
	if rows == 0 {
		return ierr.NewError(entity + " not found").
			WithHintf("No %s row matched id %s", entity, id).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
