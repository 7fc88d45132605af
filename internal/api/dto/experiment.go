package dto

import (
	"context"
	"time"

	"github.com/recivo/recivo/internal/domain/experiment"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/types"
	"github.com/recivo/recivo/internal/validator"
	"github.com/shopspring/decimal"
)

// CreateExperimentRequest represents the request payload for creating an experiment
type CreateExperimentRequest struct {
	Name                       string                     `json:"name" validate:"required"`
	Description                string                     `json:"description,omitempty"`
	ExperimentType             types.ExperimentType       `json:"experiment_type" validate:"required"`
	Variants                   []CreateVariantRequest     `json:"variants" validate:"required,min=2,dive"`
	TargetCriteria             *experiment.TargetCriteria `json:"target_criteria,omitempty"`
	Metrics                    experiment.Metrics         `json:"metrics"`
	IsAutomaticWinnerSelection bool                       `json:"is_automatic_winner_selection"`
	StartDate                  *time.Time                 `json:"start_date,omitempty"`
	EndDate                    *time.Time                 `json:"end_date,omitempty"`
}

// CreateVariantRequest represents one variant arm in a create request
type CreateVariantRequest struct {
	Name              string                          `json:"name,omitempty"`
	TrafficAllocation float64                         `json:"traffic_allocation" validate:"gt=0,lte=100"`
	Configuration     experiment.VariantConfiguration `json:"configuration"`
}

func (r *CreateExperimentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.StartDate != nil && r.EndDate != nil && r.EndDate.Before(*r.StartDate) {
		return ierr.NewError("end_date must be after start_date").
			WithHint("Check the experiment schedule").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *CreateExperimentRequest) ToExperiment(ctx context.Context) (*experiment.Experiment, error) {
	exp := &experiment.Experiment{
		ID:                         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EXPERIMENT),
		Name:                       r.Name,
		Description:                r.Description,
		ExperimentStatus:           types.ExperimentStatusDraft,
		ExperimentType:             r.ExperimentType,
		TargetCriteria:             r.TargetCriteria,
		Metrics:                    r.Metrics,
		IsAutomaticWinnerSelection: r.IsAutomaticWinnerSelection,
		StartDate:                  r.StartDate,
		EndDate:                    r.EndDate,
		BaseModel:                  types.GetDefaultBaseModel(ctx),
	}
	for _, v := range r.Variants {
		exp.Variants = append(exp.Variants, experiment.Variant{
			ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_VARIANT),
			Name:              v.Name,
			TrafficAllocation: v.TrafficAllocation,
			Configuration:     v.Configuration,
		})
	}
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return exp, nil
}

// UpdateExperimentRequest represents the request payload for updating an
// experiment. Once an experiment is active, only status and end date may
// change; other fields are rejected to keep recorded results meaningful.
type UpdateExperimentRequest struct {
	Name             *string                    `json:"name,omitempty"`
	Description      *string                    `json:"description,omitempty"`
	ExperimentStatus *types.ExperimentStatus    `json:"experiment_status,omitempty"`
	Variants         []CreateVariantRequest     `json:"variants,omitempty"`
	TargetCriteria   *experiment.TargetCriteria `json:"target_criteria,omitempty"`
	Metrics          *experiment.Metrics        `json:"metrics,omitempty"`
	StartDate        *time.Time                 `json:"start_date,omitempty"`
	EndDate          *time.Time                 `json:"end_date,omitempty"`
}

func (r *UpdateExperimentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.ExperimentStatus != nil {
		if err := r.ExperimentStatus.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MutatesBeyondStatusAndEndDate reports whether the request touches any
// field that is frozen once the experiment is active
func (r *UpdateExperimentRequest) MutatesBeyondStatusAndEndDate() bool {
	return r.Name != nil ||
		r.Description != nil ||
		len(r.Variants) > 0 ||
		r.TargetCriteria != nil ||
		r.Metrics != nil ||
		r.StartDate != nil
}

// ListExperimentsRequest filters experiment listings
type ListExperimentsRequest struct {
	Status *types.ExperimentStatus `json:"status,omitempty" form:"status"`
	Type   *types.ExperimentType   `json:"type,omitempty" form:"type"`
}

func (r *ListExperimentsRequest) Validate() error {
	if r.Status != nil {
		if err := r.Status.Validate(); err != nil {
			return err
		}
	}
	if r.Type != nil {
		if err := r.Type.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *ListExperimentsRequest) ToFilter() *experiment.ListFilter {
	if r == nil {
		return nil
	}
	return &experiment.ListFilter{
		Status: r.Status,
		Type:   r.Type,
	}
}

// ExperimentResponse represents the experiment response structure
type ExperimentResponse struct {
	*experiment.Experiment
}

// ListExperimentsResponse represents a list of experiments
type ListExperimentsResponse struct {
	Items []*ExperimentResponse `json:"items"`
	Total int                   `json:"total"`
}

// RecordExperimentEventRequest represents one outcome observation for a
// variant of a running experiment
type RecordExperimentEventRequest struct {
	EventType string           `json:"event_type" validate:"required"`
	VariantID string           `json:"variant_id" validate:"required"`
	Value     *decimal.Decimal `json:"value,omitempty"`
	// EventData carries contextual dimensions of the observation, such as
	// the payment lead time alongside a conversion's realized value
	EventData map[string]interface{} `json:"event_data,omitempty"`
}

// Data merges the value into the event data map for downstream consumers
func (r *RecordExperimentEventRequest) Data() map[string]interface{} {
	data := make(map[string]interface{}, len(r.EventData)+1)
	for k, v := range r.EventData {
		data[k] = v
	}
	if r.Value != nil {
		data["value"] = r.Value
	}
	return data
}

func (r *RecordExperimentEventRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// VariantResultResponse summarizes one result cell with derived statistics
type VariantResultResponse struct {
	VariantID   string          `json:"variant_id"`
	VariantName string          `json:"variant_name,omitempty"`
	EventType   string          `json:"event_type"`
	Count       int64           `json:"count"`
	Sum         decimal.Decimal `json:"sum"`
	Mean        decimal.Decimal `json:"mean"`
	StdDev      float64         `json:"std_dev"`
}

// ExperimentResultsResponse represents recorded outcomes of an experiment
type ExperimentResultsResponse struct {
	ExperimentID    string                   `json:"experiment_id"`
	WinnerVariantID *string                  `json:"winner_variant_id,omitempty"`
	Results         []*VariantResultResponse `json:"results"`
}
