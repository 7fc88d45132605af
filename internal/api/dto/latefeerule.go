package dto

import (
	"context"
	"time"

	"github.com/recivo/recivo/internal/domain/latefeerule"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/types"
	"github.com/recivo/recivo/internal/validator"
	"github.com/shopspring/decimal"
)

// CreateLateFeeRuleRequest represents the request payload for creating a late fee rule
type CreateLateFeeRuleRequest struct {
	Name                 string                 `json:"name" validate:"required"`
	FeeType              types.LateFeeType      `json:"fee_type" validate:"required"`
	FeeValue             decimal.Decimal        `json:"fee_value" validate:"required"`
	Frequency            types.LateFeeFrequency `json:"frequency" validate:"required"`
	GracePeriodDays      int                    `json:"grace_period_days" validate:"gte=0"`
	MaximumFeeAmount     *decimal.Decimal       `json:"maximum_fee_amount,omitempty"`
	MaximumFeePercentage *decimal.Decimal       `json:"maximum_fee_percentage,omitempty"`
	IsEnabled            *bool                  `json:"is_enabled,omitempty"`
	ValidFrom            *time.Time             `json:"valid_from,omitempty"`
	ValidUntil           *time.Time             `json:"valid_until,omitempty"`
	MinimumInvoiceAmount *decimal.Decimal       `json:"minimum_invoice_amount,omitempty"`
	Currency             *string                `json:"currency,omitempty"`
	Priority             int                    `json:"priority"`
	Metadata             types.Metadata         `json:"metadata,omitempty"`
}

func (r *CreateLateFeeRuleRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.FeeType.Validate(); err != nil {
		return err
	}
	if err := r.Frequency.Validate(); err != nil {
		return err
	}
	if r.FeeValue.IsNegative() {
		return ierr.NewError("fee value must not be negative").
			WithHint("Provide a fee value of zero or more").
			Mark(ierr.ErrValidation)
	}
	if r.MaximumFeePercentage != nil && r.MaximumFeePercentage.GreaterThan(decimal.NewFromInt(100)) {
		return ierr.NewError("maximum fee percentage cannot exceed 100").
			WithHint("Fee caps are expressed as a percentage of the invoice amount").
			Mark(ierr.ErrValidation)
	}
	if r.ValidFrom != nil && r.ValidUntil != nil && r.ValidUntil.Before(*r.ValidFrom) {
		return ierr.NewError("valid_until must be after valid_from").
			WithHint("Check the rule validity window").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *CreateLateFeeRuleRequest) ToLateFeeRule(ctx context.Context) *latefeerule.LateFeeRule {
	rule := &latefeerule.LateFeeRule{
		ID:                   types.GenerateUUIDWithPrefix(types.UUID_PREFIX_LATE_FEE_RULE),
		Name:                 r.Name,
		FeeType:              r.FeeType,
		FeeValue:             r.FeeValue,
		Frequency:            r.Frequency,
		GracePeriodDays:      r.GracePeriodDays,
		MaximumFeeAmount:     r.MaximumFeeAmount,
		MaximumFeePercentage: r.MaximumFeePercentage,
		RuleStatus:           types.RuleStatusActive,
		IsEnabled:            true,
		ValidFrom:            r.ValidFrom,
		ValidUntil:           r.ValidUntil,
		MinimumInvoiceAmount: r.MinimumInvoiceAmount,
		Currency:             r.Currency,
		Priority:             r.Priority,
		Metadata:             r.Metadata,
		BaseModel:            types.GetDefaultBaseModel(ctx),
	}
	if r.IsEnabled != nil {
		rule.IsEnabled = *r.IsEnabled
	}
	if r.ValidFrom != nil && r.ValidFrom.After(time.Now().UTC()) {
		rule.RuleStatus = types.RuleStatusScheduled
	}
	return rule
}

// UpdateLateFeeRuleRequest represents the request payload for updating a late fee rule
type UpdateLateFeeRuleRequest struct {
	Name                 *string           `json:"name,omitempty"`
	FeeValue             *decimal.Decimal  `json:"fee_value,omitempty"`
	GracePeriodDays      *int              `json:"grace_period_days,omitempty"`
	MaximumFeeAmount     *decimal.Decimal  `json:"maximum_fee_amount,omitempty"`
	MaximumFeePercentage *decimal.Decimal  `json:"maximum_fee_percentage,omitempty"`
	RuleStatus           *types.RuleStatus `json:"rule_status,omitempty"`
	IsEnabled            *bool             `json:"is_enabled,omitempty"`
	ValidFrom            *time.Time        `json:"valid_from,omitempty"`
	ValidUntil           *time.Time        `json:"valid_until,omitempty"`
	Priority             *int              `json:"priority,omitempty"`
	Metadata             types.Metadata    `json:"metadata,omitempty"`
}

func (r *UpdateLateFeeRuleRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.FeeValue != nil && r.FeeValue.IsNegative() {
		return ierr.NewError("fee value must not be negative").
			WithHint("Provide a fee value of zero or more").
			Mark(ierr.ErrValidation)
	}
	if r.GracePeriodDays != nil && *r.GracePeriodDays < 0 {
		return ierr.NewError("grace period must not be negative").
			WithHint("Provide a grace period of zero or more days").
			Mark(ierr.ErrValidation)
	}
	if r.RuleStatus != nil {
		if err := r.RuleStatus.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Apply copies the set fields of the request onto the rule
func (r *UpdateLateFeeRuleRequest) Apply(rule *latefeerule.LateFeeRule) {
	if r.Name != nil {
		rule.Name = *r.Name
	}
	if r.FeeValue != nil {
		rule.FeeValue = *r.FeeValue
	}
	if r.GracePeriodDays != nil {
		rule.GracePeriodDays = *r.GracePeriodDays
	}
	if r.MaximumFeeAmount != nil {
		rule.MaximumFeeAmount = r.MaximumFeeAmount
	}
	if r.MaximumFeePercentage != nil {
		rule.MaximumFeePercentage = r.MaximumFeePercentage
	}
	if r.RuleStatus != nil {
		rule.RuleStatus = *r.RuleStatus
	}
	if r.IsEnabled != nil {
		rule.IsEnabled = *r.IsEnabled
	}
	if r.ValidFrom != nil {
		rule.ValidFrom = r.ValidFrom
	}
	if r.ValidUntil != nil {
		rule.ValidUntil = r.ValidUntil
	}
	if r.Priority != nil {
		rule.Priority = *r.Priority
	}
	if r.Metadata != nil {
		rule.Metadata = r.Metadata
	}
}

// LateFeeRuleResponse represents the late fee rule response structure
type LateFeeRuleResponse struct {
	*latefeerule.LateFeeRule
}

// ListLateFeeRulesResponse represents a list of late fee rules
type ListLateFeeRulesResponse struct {
	Items []*LateFeeRuleResponse `json:"items"`
	Total int                    `json:"total"`
}

// LateFeeEvaluationResponse is the outcome of evaluating the late fee
// rules against one overdue invoice
type LateFeeEvaluationResponse struct {
	InvoiceID    string          `json:"invoice_id"`
	Applicable   bool            `json:"applicable"`
	RuleID       *string         `json:"rule_id,omitempty"`
	RuleName     *string         `json:"rule_name,omitempty"`
	FeeAmount    decimal.Decimal `json:"fee_amount"`
	NewAmountDue decimal.Decimal `json:"new_amount_due"`
	DaysOverdue  int             `json:"days_overdue"`
	ExperimentID *string         `json:"experiment_id,omitempty"`
	VariantID    *string         `json:"variant_id,omitempty"`
}

// WaiveLateFeeRequest represents the request payload for waiving an
// applied late fee
type WaiveLateFeeRequest struct {
	Reason   string `json:"reason" validate:"required"`
	WaivedBy string `json:"waived_by" validate:"required"`
}

func (r *WaiveLateFeeRequest) Validate() error {
	return validator.ValidateRequest(r)
}
