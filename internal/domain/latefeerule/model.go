package latefeerule

import (
	"time"

	"github.com/recivo/recivo/internal/domain/invoice"
	"github.com/recivo/recivo/internal/types"
	"github.com/shopspring/decimal"
)

// LateFeeRule defines a late payment fee owned by a tenant
type LateFeeRule struct {
	ID                   string                 `json:"id" db:"id"`
	Name                 string                 `json:"name" db:"name"`
	FeeType              types.LateFeeType      `json:"fee_type" db:"fee_type"`
	FeeValue             decimal.Decimal        `json:"fee_value" db:"fee_value"`
	Frequency            types.LateFeeFrequency `json:"frequency" db:"frequency"`
	GracePeriodDays      int                    `json:"grace_period_days" db:"grace_period_days"`
	MaximumFeeAmount     *decimal.Decimal       `json:"maximum_fee_amount,omitempty" db:"maximum_fee_amount"`
	MaximumFeePercentage *decimal.Decimal       `json:"maximum_fee_percentage,omitempty" db:"maximum_fee_percentage"`
	RuleStatus           types.RuleStatus       `json:"rule_status" db:"rule_status"`
	IsEnabled            bool                   `json:"is_enabled" db:"is_enabled"`
	ValidFrom            *time.Time             `json:"valid_from,omitempty" db:"valid_from"`
	ValidUntil           *time.Time             `json:"valid_until,omitempty" db:"valid_until"`
	MinimumInvoiceAmount *decimal.Decimal       `json:"minimum_invoice_amount,omitempty" db:"minimum_invoice_amount"`
	Currency             *string                `json:"currency,omitempty" db:"currency"`
	Priority             int                    `json:"priority" db:"priority"`
	ExperimentID         *string                `json:"experiment_id,omitempty" db:"experiment_id"`
	Metadata             types.Metadata         `json:"metadata,omitempty" db:"metadata"`
	types.BaseModel
}

// IsActiveAt checks the rule status, enablement and validity window
func (r *LateFeeRule) IsActiveAt(now time.Time) bool {
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

// AppliesTo checks the currency and minimum amount against an invoice.
// A nil currency on the rule is a wildcard.
func (r *LateFeeRule) AppliesTo(inv *invoice.Invoice) bool {
	if r.Currency != nil && *r.Currency != inv.Currency {
		return false
	}
	if r.MinimumInvoiceAmount != nil && inv.TotalAmount.LessThan(*r.MinimumInvoiceAmount) {
		return false
	}
	return true
}

// CalculateFee computes the uncapped fee for the given original amount and
// effective days overdue (days past due minus the grace period).
//
// compound_percentage compounds once per elapsed day; the iterative loop is
// the contract because the daily rate may change mid-cycle under a future
// rule revision, which a closed form would silently paper over.
func (r *LateFeeRule) CalculateFee(originalAmount decimal.Decimal, effectiveDaysOverdue int) decimal.Decimal {
	if effectiveDaysOverdue <= 0 {
		return decimal.Zero
	}

	hundred := decimal.NewFromInt(100)

	switch r.FeeType {
	case types.LateFeeTypeFixedAmount:
		periods := r.Frequency.PeriodCount(effectiveDaysOverdue)
		return r.FeeValue.Mul(decimal.NewFromInt(int64(periods)))
	case types.LateFeeTypePercentage:
		periods := r.Frequency.PeriodCount(effectiveDaysOverdue)
		perPeriod := originalAmount.Mul(r.FeeValue).Div(hundred)
		return perPeriod.Mul(decimal.NewFromInt(int64(periods)))
	case types.LateFeeTypeCompoundPercentage:
		rate := decimal.NewFromInt(1).Add(r.FeeValue.Div(hundred))
		compounded := originalAmount
		for i := 0; i < effectiveDaysOverdue; i++ {
			compounded = compounded.Mul(rate)
		}
		return compounded.Sub(originalAmount)
	default:
		return decimal.Zero
	}
}

// CapFee applies the configured caps to a computed fee, taking the lower of
// the absolute and percentage caps when both are set
func (r *LateFeeRule) CapFee(originalAmount, feeAmount decimal.Decimal) decimal.Decimal {
	capped := feeAmount
	if r.MaximumFeeAmount != nil && capped.GreaterThan(*r.MaximumFeeAmount) {
		capped = *r.MaximumFeeAmount
	}
	if r.MaximumFeePercentage != nil {
		pctCap := originalAmount.Mul(*r.MaximumFeePercentage).Div(decimal.NewFromInt(100))
		if capped.GreaterThan(pctCap) {
			capped = pctCap
		}
	}
	return capped
}
