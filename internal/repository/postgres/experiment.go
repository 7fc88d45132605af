package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/recivo/recivo/internal/domain/experiment"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/logger"
	"github.com/recivo/recivo/internal/postgres"
	"github.com/recivo/recivo/internal/types"
	"github.com/shopspring/decimal"
)

type experimentRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewExperimentRepository(db *postgres.DB, logger *logger.Logger) experiment.Repository {
	return &experimentRepository{db: db, logger: logger}
}

const experimentColumns = `
	id, name, description, experiment_status, experiment_type, variants,
	target_criteria, metrics, is_automatic_winner_selection,
	winner_variant_id, start_date, end_date, tenant_id, status,
	created_at, updated_at, created_by, updated_by
`

func (r *experimentRepository) Create(ctx context.Context, exp *experiment.Experiment) error {
	query := `
	INSERT INTO experiments (` + experimentColumns + `)
	VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18
	)
	`

	variantsJSON, criteriaJSON, metricsJSON, err := marshalExperimentFields(exp)
	if err != nil {
		return err
	}

	_, err = r.db.GetQuerier(ctx).ExecContext(ctx, query,
		exp.ID, exp.Name, exp.Description, exp.ExperimentStatus,
		exp.ExperimentType, variantsJSON, criteriaJSON, metricsJSON,
		exp.IsAutomaticWinnerSelection, exp.WinnerVariantID, exp.StartDate,
		exp.EndDate, exp.TenantID, exp.Status, exp.CreatedAt, exp.UpdatedAt,
		exp.CreatedBy, exp.UpdatedBy,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create experiment").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *experimentRepository) Get(ctx context.Context, id string) (*experiment.Experiment, error) {
	query := `
	SELECT ` + experimentColumns + `
	FROM experiments
	WHERE id = $1 AND tenant_id = $2 AND status != $3
	`

	row := r.db.GetQuerier(ctx).QueryRowContext(ctx, query,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	exp, err := scanExperiment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("experiment not found").
				WithHintf("Experiment %s does not exist", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get experiment").
			Mark(ierr.ErrDatabase)
	}
	return exp, nil
}

func (r *experimentRepository) Update(ctx context.Context, exp *experiment.Experiment) error {
	query := `
	UPDATE experiments
	SET name = $1, description = $2, experiment_status = $3, variants = $4,
		target_criteria = $5, metrics = $6, winner_variant_id = $7,
		start_date = $8, end_date = $9, updated_at = $10, updated_by = $11
	WHERE id = $12 AND tenant_id = $13 AND status != $14
	`

	variantsJSON, criteriaJSON, metricsJSON, err := marshalExperimentFields(exp)
	if err != nil {
		return err
	}

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		exp.Name, exp.Description, exp.ExperimentStatus, variantsJSON,
		criteriaJSON, metricsJSON, exp.WinnerVariantID, exp.StartDate,
		exp.EndDate, time.Now().UTC(), types.GetUserID(ctx),
		exp.ID, exp.TenantID, types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update experiment").
			Mark(ierr.ErrDatabase)
	}
	return requireRowsAffected(result, "experiment", exp.ID)
}

func (r *experimentRepository) List(ctx context.Context, tenantID string, filter *experiment.ListFilter) ([]*experiment.Experiment, error) {
	query := `
	SELECT ` + experimentColumns + `
	FROM experiments
	WHERE tenant_id = $1 AND status != $2
	  AND ($3::text IS NULL OR experiment_status = $3)
	  AND ($4::text IS NULL OR experiment_type = $4)
	ORDER BY created_at DESC
	`

	var statusFilter, typeFilter *string
	if filter != nil {
		if filter.Status != nil {
			s := string(*filter.Status)
			statusFilter = &s
		}
		if filter.Type != nil {
			t := string(*filter.Type)
			typeFilter = &t
		}
	}

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query,
		tenantID, types.StatusDeleted, statusFilter, typeFilter)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list experiments").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	return collectExperiments(rows)
}

func (r *experimentRepository) ListActiveByType(ctx context.Context, tenantID string, expType types.ExperimentType) ([]*experiment.Experiment, error) {
	query := `
	SELECT ` + experimentColumns + `
	FROM experiments
	WHERE tenant_id = $1 AND status != $2
	  AND experiment_status = $3
	  AND experiment_type = $4
	ORDER BY created_at ASC
	`

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query,
		tenantID, types.StatusDeleted, types.ExperimentStatusActive, expType)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list active experiments").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	return collectExperiments(rows)
}

func (r *experimentRepository) RecordEvent(ctx context.Context, experimentID, eventType, variantID string, value *decimal.Decimal) error {
	// Single statement upsert so concurrent observations never lose counts.
	// The values sample stays bounded at 1000 entries; sums keep growing.
	query := `
	INSERT INTO experiment_results (
		experiment_id, event_type, variant_id, count, sum, sum_squares, sample_values
	) VALUES (
		$1, $2, $3, 1, COALESCE($4, 0), COALESCE($4 * $4, 0),
		CASE WHEN $4::numeric IS NULL THEN ARRAY[]::numeric[] ELSE ARRAY[$4::numeric] END
	)
	ON CONFLICT (experiment_id, event_type, variant_id) DO UPDATE SET
		count = experiment_results.count + 1,
		sum = experiment_results.sum + COALESCE($4, 0),
		sum_squares = experiment_results.sum_squares + COALESCE($4 * $4, 0),
		sample_values = CASE
			WHEN $4::numeric IS NULL THEN experiment_results.sample_values
			WHEN array_length(experiment_results.sample_values, 1) >= 1000 THEN experiment_results.sample_values
			ELSE array_append(experiment_results.sample_values, $4::numeric)
		END
	`

	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		experimentID, eventType, variantID, value)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to record experiment event").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *experimentRepository) GetResults(ctx context.Context, experimentID string) ([]*experiment.Result, error) {
	query := `
	SELECT experiment_id, event_type, variant_id, count, sum, sum_squares, sample_values
	FROM experiment_results
	WHERE experiment_id = $1
	ORDER BY event_type, variant_id
	`

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query, experimentID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get experiment results").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	results := make([]*experiment.Result, 0)
	for rows.Next() {
		var res experiment.Result
		var values []string

		err := rows.Scan(
			&res.ExperimentID, &res.EventType, &res.VariantID,
			&res.Count, &res.Sum, &res.SumSquares, pq.Array(&values),
		)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan experiment result").
				Mark(ierr.ErrDatabase)
		}

		for _, v := range values {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return nil, ierr.WithError(err).
					WithHint("Failed to decode recorded value").
					Mark(ierr.ErrDatabase)
			}
			res.Values = append(res.Values, d)
		}
		results = append(results, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to iterate experiment results").
			Mark(ierr.ErrDatabase)
	}
	return results, nil
}

func marshalExperimentFields(exp *experiment.Experiment) ([]byte, []byte, []byte, error) {
	variantsJSON, err := json.Marshal(exp.Variants)
	if err != nil {
		return nil, nil, nil, ierr.WithError(err).
			WithHint("Failed to encode variants").
			Mark(ierr.ErrInternal)
	}

	var criteriaJSON []byte
	if exp.TargetCriteria != nil {
		criteriaJSON, err = json.Marshal(exp.TargetCriteria)
		if err != nil {
			return nil, nil, nil, ierr.WithError(err).
				WithHint("Failed to encode target criteria").
				Mark(ierr.ErrInternal)
		}
	}

	metricsJSON, err := json.Marshal(exp.Metrics)
	if err != nil {
		return nil, nil, nil, ierr.WithError(err).
			WithHint("Failed to encode metrics").
			Mark(ierr.ErrInternal)
	}
	return variantsJSON, criteriaJSON, metricsJSON, nil
}

func collectExperiments(rows *sql.Rows) ([]*experiment.Experiment, error) {
	experiments := make([]*experiment.Experiment, 0)
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan experiment").
				Mark(ierr.ErrDatabase)
		}
		experiments = append(experiments, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to iterate experiments").
			Mark(ierr.ErrDatabase)
	}
	return experiments, nil
}

func scanExperiment(row rowScanner) (*experiment.Experiment, error) {
	var exp experiment.Experiment
	var variantsJSON, criteriaJSON, metricsJSON []byte

	err := row.Scan(
		&exp.ID, &exp.Name, &exp.Description, &exp.ExperimentStatus,
		&exp.ExperimentType, &variantsJSON, &criteriaJSON, &metricsJSON,
		&exp.IsAutomaticWinnerSelection, &exp.WinnerVariantID,
		&exp.StartDate, &exp.EndDate, &exp.TenantID, &exp.Status,
		&exp.CreatedAt, &exp.UpdatedAt, &exp.CreatedBy, &exp.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	if len(variantsJSON) > 0 {
		if err := json.Unmarshal(variantsJSON, &exp.Variants); err != nil {
			return nil, err
		}
	}
	if len(criteriaJSON) > 0 {
		if err := json.Unmarshal(criteriaJSON, &exp.TargetCriteria); err != nil {
			return nil, err
		}
	}
	if len(metricsJSON) > 0 {
		if err := json.Unmarshal(metricsJSON, &exp.Metrics); err != nil {
			return nil, err
		}
	}
	return &exp, nil
}
