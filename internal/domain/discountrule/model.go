package discountrule

import (
	"time"

	"github.com/recivo/recivo/internal/domain/invoice"
	"github.com/recivo/recivo/internal/types"
	"github.com/shopspring/decimal"
)

// DiscountRule defines an early payment (or other trigger based) discount
// owned by a tenant. Rules are never mutated by evaluation; experiment
// variants overlay ephemeral copies instead.
type DiscountRule struct {
	ID                     string                  `json:"id" db:"id"`
	Name                   string                  `json:"name" db:"name"`
	DiscountType           types.DiscountType      `json:"discount_type" db:"discount_type"`
	DiscountValue          decimal.Decimal         `json:"discount_value" db:"discount_value"`
	TriggerType            types.DiscountTriggerType `json:"trigger_type" db:"trigger_type"`
	TriggerConditions      types.TriggerConditions `json:"trigger_conditions" db:"trigger_conditions"`
	RuleStatus             types.RuleStatus        `json:"rule_status" db:"rule_status"`
	IsEnabled              bool                    `json:"is_enabled" db:"is_enabled"`
	ValidFrom              *time.Time              `json:"valid_from,omitempty" db:"valid_from"`
	ValidUntil             *time.Time              `json:"valid_until,omitempty" db:"valid_until"`
	MinimumAmount          *decimal.Decimal        `json:"minimum_amount,omitempty" db:"minimum_amount"`
	MaximumAmount          *decimal.Decimal        `json:"maximum_amount,omitempty" db:"maximum_amount"`
	Currency               *string                 `json:"currency,omitempty" db:"currency"`
	Priority               int                     `json:"priority" db:"priority"`
	IsAutomaticallyApplied bool                    `json:"is_automatically_applied" db:"is_automatically_applied"`
	// ExperimentID links the rule to an experiment when it participates in
	// an A/B test
	ExperimentID *string        `json:"experiment_id,omitempty" db:"experiment_id"`
	Metadata     types.Metadata `json:"metadata,omitempty" db:"metadata"`
	types.BaseModel
}

// IsActiveAt checks the rule status, enablement and validity window
func (r *DiscountRule) IsActiveAt(now time.Time) bool {
	if r.RuleStatus != types.RuleStatusActive || !r.IsEnabled {
		return false
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return false
	}
	return true
}

// AppliesTo checks the currency and amount bounds against an invoice.
// A nil currency on the rule is a wildcard.
func (r *DiscountRule) AppliesTo(inv *invoice.Invoice) bool {
	if r.Currency != nil && *r.Currency != inv.Currency {
		return false
	}
	if r.MinimumAmount != nil && inv.TotalAmount.LessThan(*r.MinimumAmount) {
		return false
	}
	if r.MaximumAmount != nil && inv.TotalAmount.GreaterThan(*r.MaximumAmount) {
		return false
	}
	return true
}

// CalculateDiscount computes the discount amount for an invoice, clamped to
// [0, originalAmount]. Percentage discounts are taken off the subtotal.
func (r *DiscountRule) CalculateDiscount(inv *invoice.Invoice) decimal.Decimal {
	var discount decimal.Decimal

	switch r.DiscountType {
	case types.DiscountTypePercentage:
		discount = inv.Subtotal.Mul(r.DiscountValue).Div(decimal.NewFromInt(100))
	case types.DiscountTypeFixed:
		discount = r.DiscountValue
	default:
		return decimal.Zero
	}

	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(inv.TotalAmount) {
		return inv.TotalAmount
	}
	return discount
}
