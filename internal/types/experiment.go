package types

import (
	ierr "github.com/recivo/recivo/internal/errors"
)

// ExperimentStatus is the lifecycle state of an A/B experiment
type ExperimentStatus string

const (
	ExperimentStatusDraft     ExperimentStatus = "draft"
	ExperimentStatusActive    ExperimentStatus = "active"
	ExperimentStatusPaused    ExperimentStatus = "paused"
	ExperimentStatusCompleted ExperimentStatus = "completed"
	ExperimentStatusArchived  ExperimentStatus = "archived"
)

// ExperimentType is the pricing lever an experiment varies
type ExperimentType string

const (
	ExperimentTypeDiscountStrategy        ExperimentType = "discount_strategy"
	ExperimentTypeLateFeeStrategy         ExperimentType = "late_fee_strategy"
	ExperimentTypePaymentMethodPreference ExperimentType = "payment_method_preference"
	ExperimentTypeCommunicationStrategy   ExperimentType = "communication_strategy"
)

func (s ExperimentStatus) Validate() error {
	switch s {
	case ExperimentStatusDraft, ExperimentStatusActive, ExperimentStatusPaused,
		ExperimentStatusCompleted, ExperimentStatusArchived:
		return nil
	default:
		return ierr.NewError("invalid experiment status").
			WithHint("Unknown experiment status").
			Mark(ierr.ErrValidation)
	}
}

func (t ExperimentType) Validate() error {
	switch t {
	case ExperimentTypeDiscountStrategy, ExperimentTypeLateFeeStrategy,
		ExperimentTypePaymentMethodPreference, ExperimentTypeCommunicationStrategy:
		return nil
	default:
		return ierr.NewError("invalid experiment type").
			WithHint("Unknown experiment type").
			Mark(ierr.ErrValidation)
	}
}

// Well-known experiment event types. recordExperimentEvent accepts arbitrary
// event names; these are the two the orchestrator emits.
const (
	ExperimentEventExposure   = "exposure"
	ExperimentEventConversion = "conversion"
)

// CustomerType segments customers for experiment targeting
type CustomerType string

const (
	CustomerTypeBusiness   CustomerType = "business"
	CustomerTypeIndividual CustomerType = "individual"
)
