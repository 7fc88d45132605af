package types

import (
	ierr "github.com/recivo/recivo/internal/errors"
)

// DiscountType represents how the discount value is interpreted
type DiscountType string

const (
	// DiscountTypePercentage discounts a percentage of the invoice subtotal
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFixed discounts a fixed amount in the invoice currency
	DiscountTypeFixed DiscountType = "fixed"
)

func (t DiscountType) Validate() error {
	switch t {
	case DiscountTypePercentage, DiscountTypeFixed:
		return nil
	default:
		return ierr.NewError("invalid discount type").
			WithHintf("Discount type must be one of: %s, %s", DiscountTypePercentage, DiscountTypeFixed).
			Mark(ierr.ErrValidation)
	}
}

// DiscountTriggerType represents the condition family that makes a rule fire
type DiscountTriggerType string

const (
	DiscountTriggerEarlyPayment DiscountTriggerType = "early_payment"
	DiscountTriggerVolumeBased  DiscountTriggerType = "volume_based"
	DiscountTriggerLoyaltyBased DiscountTriggerType = "loyalty_based"
	DiscountTriggerCustom       DiscountTriggerType = "custom"
)

func (t DiscountTriggerType) Validate() error {
	switch t {
	case DiscountTriggerEarlyPayment, DiscountTriggerVolumeBased,
		DiscountTriggerLoyaltyBased, DiscountTriggerCustom:
		return nil
	default:
		return ierr.NewError("invalid discount trigger type").
			WithHint("Unknown trigger type for discount rule").
			Mark(ierr.ErrValidation)
	}
}

// RuleStatus is the business status of a pricing rule, distinct from the
// row-level Status used for soft deletion
type RuleStatus string

const (
	RuleStatusActive    RuleStatus = "active"
	RuleStatusInactive  RuleStatus = "inactive"
	RuleStatusScheduled RuleStatus = "scheduled"
	RuleStatusExpired   RuleStatus = "expired"
)

func (s RuleStatus) Validate() error {
	switch s {
	case RuleStatusActive, RuleStatusInactive, RuleStatusScheduled, RuleStatusExpired:
		return nil
	default:
		return ierr.NewError("invalid rule status").
			WithHint("Unknown rule status").
			Mark(ierr.ErrValidation)
	}
}

// TriggerConditions holds the structured conditions evaluated against an
// invoice before a discount rule applies. Stored as JSONB.
type TriggerConditions struct {
	// DaysBeforeDueDate is the minimum lead time, in days, between the
	// payment date and the invoice due date for early payment discounts
	DaysBeforeDueDate *int `json:"days_before_due_date,omitempty"`
	// MinimumVolume is the minimum invoice count for volume based discounts
	MinimumVolume *int `json:"minimum_volume,omitempty"`
	// LoyaltyMonths is the minimum customer tenure for loyalty based discounts
	LoyaltyMonths *int `json:"loyalty_months,omitempty"`
	// Custom carries free-form conditions for custom triggers
	Custom map[string]interface{} `json:"custom,omitempty"`
}
