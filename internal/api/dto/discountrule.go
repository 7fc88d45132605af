package dto

import (
	"context"
	"time"

	"github.com/recivo/recivo/internal/domain/discountrule"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/types"
	"github.com/recivo/recivo/internal/validator"
	"github.com/shopspring/decimal"
)

// CreateDiscountRuleRequest represents the request payload for creating a discount rule
type CreateDiscountRuleRequest struct {
	Name                   string                   `json:"name" validate:"required"`
	DiscountType           types.DiscountType       `json:"discount_type" validate:"required"`
	DiscountValue          decimal.Decimal          `json:"discount_value" validate:"required"`
	TriggerType            types.DiscountTriggerType `json:"trigger_type" validate:"required"`
	TriggerConditions      types.TriggerConditions  `json:"trigger_conditions"`
	IsEnabled              *bool                    `json:"is_enabled,omitempty"`
	ValidFrom              *time.Time               `json:"valid_from,omitempty"`
	ValidUntil             *time.Time               `json:"valid_until,omitempty"`
	MinimumAmount          *decimal.Decimal         `json:"minimum_amount,omitempty"`
	MaximumAmount          *decimal.Decimal         `json:"maximum_amount,omitempty"`
	Currency               *string                  `json:"currency,omitempty"`
	Priority               int                      `json:"priority"`
	IsAutomaticallyApplied bool                     `json:"is_automatically_applied"`
	Metadata               types.Metadata           `json:"metadata,omitempty"`
}

func (r *CreateDiscountRuleRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.DiscountType.Validate(); err != nil {
		return err
	}
	if err := r.TriggerType.Validate(); err != nil {
		return err
	}
	if r.DiscountValue.IsNegative() {
		return ierr.NewError("discount value must not be negative").
			WithHint("Provide a discount value of zero or more").
			Mark(ierr.ErrValidation)
	}
	if r.DiscountType == types.DiscountTypePercentage && r.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return ierr.NewError("percentage discount cannot exceed 100").
			WithHint("Percentage discounts are expressed as 0-100").
			Mark(ierr.ErrValidation)
	}
	if r.ValidFrom != nil && r.ValidUntil != nil && r.ValidUntil.Before(*r.ValidFrom) {
		return ierr.NewError("valid_until must be after valid_from").
			WithHint("Check the rule validity window").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *CreateDiscountRuleRequest) ToDiscountRule(ctx context.Context) *discountrule.DiscountRule {
	rule := &discountrule.DiscountRule{
		ID:                     types.GenerateUUIDWithPrefix(types.UUID_PREFIX_DISCOUNT_RULE),
		Name:                   r.Name,
		DiscountType:           r.DiscountType,
		DiscountValue:          r.DiscountValue,
		TriggerType:            r.TriggerType,
		TriggerConditions:      r.TriggerConditions,
		RuleStatus:             types.RuleStatusActive,
		IsEnabled:              true,
		ValidFrom:              r.ValidFrom,
		ValidUntil:             r.ValidUntil,
		MinimumAmount:          r.MinimumAmount,
		MaximumAmount:          r.MaximumAmount,
		Currency:               r.Currency,
		Priority:               r.Priority,
		IsAutomaticallyApplied: r.IsAutomaticallyApplied,
		Metadata:               r.Metadata,
		BaseModel:              types.GetDefaultBaseModel(ctx),
	}
	if r.IsEnabled != nil {
		rule.IsEnabled = *r.IsEnabled
	}
	if r.ValidFrom != nil && r.ValidFrom.After(time.Now().UTC()) {
		rule.RuleStatus = types.RuleStatusScheduled
	}
	return rule
}

// UpdateDiscountRuleRequest represents the request payload for updating a discount rule
type UpdateDiscountRuleRequest struct {
	Name              *string                  `json:"name,omitempty"`
	DiscountValue     *decimal.Decimal         `json:"discount_value,omitempty"`
	TriggerConditions *types.TriggerConditions `json:"trigger_conditions,omitempty"`
	RuleStatus        *types.RuleStatus        `json:"rule_status,omitempty"`
	IsEnabled         *bool                    `json:"is_enabled,omitempty"`
	ValidFrom         *time.Time               `json:"valid_from,omitempty"`
	ValidUntil        *time.Time               `json:"valid_until,omitempty"`
	MinimumAmount     *decimal.Decimal         `json:"minimum_amount,omitempty"`
	MaximumAmount     *decimal.Decimal         `json:"maximum_amount,omitempty"`
	Priority          *int                     `json:"priority,omitempty"`
	Metadata          types.Metadata           `json:"metadata,omitempty"`
}

func (r *UpdateDiscountRuleRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.DiscountValue != nil && r.DiscountValue.IsNegative() {
		return ierr.NewError("discount value must not be negative").
			WithHint("Provide a discount value of zero or more").
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
func (r *UpdateDiscountRuleRequest) Apply(rule *discountrule.DiscountRule) {
	if r.Name != nil {
		rule.Name = *r.Name
	}
	if r.DiscountValue != nil {
		rule.DiscountValue = *r.DiscountValue
	}
	if r.TriggerConditions != nil {
		rule.TriggerConditions = *r.TriggerConditions
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
	if r.MinimumAmount != nil {
		rule.MinimumAmount = r.MinimumAmount
	}
	if r.MaximumAmount != nil {
		rule.MaximumAmount = r.MaximumAmount
	}
	if r.Priority != nil {
		rule.Priority = *r.Priority
	}
	if r.Metadata != nil {
		rule.Metadata = r.Metadata
	}
}

// DiscountRuleResponse represents the discount rule response structure
type DiscountRuleResponse struct {
	*discountrule.DiscountRule
}

// ListDiscountRulesResponse represents a list of discount rules
type ListDiscountRulesResponse struct {
	Items []*DiscountRuleResponse `json:"items"`
	Total int                     `json:"total"`
}

// DiscountEvaluationResponse is the outcome of evaluating the discount
// rules against one invoice
type DiscountEvaluationResponse struct {
	InvoiceID      string           `json:"invoice_id"`
	Applicable     bool             `json:"applicable"`
	RuleID         *string          `json:"rule_id,omitempty"`
	RuleName       *string          `json:"rule_name,omitempty"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	FinalAmount    decimal.Decimal  `json:"final_amount"`
	ExperimentID   *string          `json:"experiment_id,omitempty"`
	VariantID      *string          `json:"variant_id,omitempty"`
}
