package experiment

import (
	"hash/fnv"
	"math"
	"time"

	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/domain/invoice"
	"github.com/recivo/recivo/internal/types"
	"github.com/shopspring/decimal"
)

// allocationTolerance is how far the variant traffic allocations may drift
// from summing to exactly 100.
const allocationTolerance = 0.01

// Experiment represents an A/B test over pricing rule configuration.
// Variant order is part of the persisted configuration: deterministic
// assignment walks the variants in stored order.
type Experiment struct {
	ID                         string                `json:"id" db:"id"`
	Name                       string                `json:"name" db:"name"`
	Description                string                `json:"description,omitempty" db:"description"`
	ExperimentStatus           types.ExperimentStatus `json:"experiment_status" db:"experiment_status"`
	ExperimentType             types.ExperimentType  `json:"experiment_type" db:"experiment_type"`
	Variants                   []Variant             `json:"variants" db:"variants"`
	TargetCriteria             *TargetCriteria       `json:"target_criteria,omitempty" db:"target_criteria"`
	Metrics                    Metrics               `json:"metrics" db:"metrics"`
	IsAutomaticWinnerSelection bool                  `json:"is_automatic_winner_selection" db:"is_automatic_winner_selection"`
	WinnerVariantID            *string               `json:"winner_variant_id,omitempty" db:"winner_variant_id"`
	StartDate                  *time.Time            `json:"start_date,omitempty" db:"start_date"`
	EndDate                    *time.Time            `json:"end_date,omitempty" db:"end_date"`
	types.BaseModel
}

// Variant is one configuration arm of an experiment
type Variant struct {
	ID string `json:"id"`
	// Name is an operator-facing label, e.g. "control" or "aggressive"
	Name string `json:"name,omitempty"`
	// TrafficAllocation is this variant's share of traffic in percent
	TrafficAllocation float64 `json:"traffic_allocation"`
	// Configuration holds the rule field overrides this arm applies
	Configuration VariantConfiguration `json:"configuration"`
}

// VariantConfiguration carries optional rule-field overrides. Nil fields
// fall back to the engine defaults when the ephemeral rule is built.
type VariantConfiguration struct {
	// discount rule overrides
	DiscountType      *types.DiscountType      `json:"discount_type,omitempty"`
	DiscountValue     *decimal.Decimal         `json:"discount_value,omitempty"`
	TriggerConditions *types.TriggerConditions `json:"trigger_conditions,omitempty"`

	// late fee rule overrides
	FeeType              *types.LateFeeType      `json:"fee_type,omitempty"`
	FeeValue             *decimal.Decimal        `json:"fee_value,omitempty"`
	Frequency            *types.LateFeeFrequency `json:"frequency,omitempty"`
	GracePeriodDays      *int                    `json:"grace_period_days,omitempty"`
	MaximumFeeAmount     *decimal.Decimal        `json:"maximum_fee_amount,omitempty"`
	MaximumFeePercentage *decimal.Decimal        `json:"maximum_fee_percentage,omitempty"`
}

// TargetCriteria narrows which invoices an experiment applies to
type TargetCriteria struct {
	MinAmount    *decimal.Decimal    `json:"min_amount,omitempty"`
	MaxAmount    *decimal.Decimal    `json:"max_amount,omitempty"`
	Currency     *string             `json:"currency,omitempty"`
	CustomerType *types.CustomerType `json:"customer_type,omitempty"`
}

// Metrics names the outcome metrics an experiment tracks. The primary
// metric drives automatic winner selection.
type Metrics struct {
	Primary   string   `json:"primary"`
	Secondary []string `json:"secondary,omitempty"`
}

// Validate checks the structural invariants required before an experiment
// may be created or started
func (e *Experiment) Validate() error {
	if len(e.Variants) < 2 {
		return ierr.NewError("experiment must have at least 2 variants").
			WithHint("Experiments need a control and at least one treatment variant").
			Mark(ierr.ErrValidation)
	}

	total := 0.0
	for _, v := range e.Variants {
		total += v.TrafficAllocation
	}
	if math.Abs(total-100) > allocationTolerance {
		return ierr.NewError("total traffic allocation must be 100%").
			WithHintf("Variant allocations sum to %.2f%%, expected 100%%", total).
			WithReportableDetails(map[string]any{
				"total_allocation": total,
			}).
			Mark(ierr.ErrValidation)
	}

	if err := e.ExperimentType.Validate(); err != nil {
		return err
	}

	if e.Metrics.Primary == "" {
		return ierr.NewError("experiment must have a primary metric").
			WithHint("Set a primary metric before activating the experiment").
			Mark(ierr.ErrValidation)
	}

	return nil
}

// Variant returns the variant with the given id, or nil
func (e *Experiment) Variant(id string) *Variant {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i]
		}
	}
	return nil
}

// MatchesInvoice checks the targeting criteria against an invoice.
// An experiment without criteria matches every invoice.
func (e *Experiment) MatchesInvoice(inv *invoice.Invoice) bool {
	if e.TargetCriteria == nil {
		return true
	}

	c := e.TargetCriteria
	if c.MinAmount != nil && inv.TotalAmount.LessThan(*c.MinAmount) {
		return false
	}
	if c.MaxAmount != nil && inv.TotalAmount.GreaterThan(*c.MaxAmount) {
		return false
	}
	if c.Currency != nil && *c.Currency != inv.Currency {
		return false
	}
	if c.CustomerType != nil && *c.CustomerType != inv.CustomerType {
		return false
	}
	return true
}

// AssignVariant deterministically maps an invoice id to a variant using a
// stable hash, so a given invoice always lands in the same variant for the
// life of the experiment without persisting assignment state.
func (e *Experiment) AssignVariant(invoiceID string) *Variant {
	bucket := assignmentBucket(invoiceID)

	cumulative := 0.0
	for i := range e.Variants {
		cumulative += e.Variants[i].TrafficAllocation
		if bucket < cumulative {
			return &e.Variants[i]
		}
	}

	// Allocation rounding can leave a sliver at the top of the range;
	// fall through to the last variant.
	if len(e.Variants) > 0 {
		return &e.Variants[len(e.Variants)-1]
	}
	return nil
}

// assignmentBucket hashes an invoice id into [0, 100) with two decimal
// places of resolution so fractional allocations bucket correctly.
// FNV-1a is stable across processes and restarts.
func assignmentBucket(invoiceID string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(invoiceID))
	return float64(h.Sum32()%10000) / 100
}
