package discount_application

import (
	"time"

	"github.com/recivo/recivo/internal/types"
	"github.com/shopspring/decimal"
)

// DiscountApplication records a discount computed and attached to an
// invoice. At most one application per invoice may be in applied status;
// superseding applications expire the prior one.
type DiscountApplication struct {
	ID             string                 `json:"id" db:"id"`
	RuleID         string                 `json:"rule_id" db:"rule_id"`
	InvoiceID      string                 `json:"invoice_id" db:"invoice_id"`
	TransactionID  *string                `json:"transaction_id,omitempty" db:"transaction_id"`
	IdempotencyKey *string                `json:"idempotency_key,omitempty" db:"idempotency_key"`
	OriginalAmount decimal.Decimal        `json:"original_amount" db:"original_amount"`
	DiscountAmount decimal.Decimal        `json:"discount_amount" db:"discount_amount"`
	FinalAmount    decimal.Decimal        `json:"final_amount" db:"final_amount"`
	ApplicationStatus types.ApplicationStatus `json:"application_status" db:"application_status"`
	AppliedAt      time.Time              `json:"applied_at" db:"applied_at"`
	// DaysBeforeDueDate is the payment lead time captured at apply time; it
	// travels with the conversion recorded when the payment settles
	DaysBeforeDueDate *int `json:"days_before_due_date,omitempty" db:"days_before_due_date"`
	// ExperimentID and VariantID are set when the applied rule came from an
	// experiment variant overlay
	ExperimentID *string                `json:"experiment_id,omitempty" db:"experiment_id"`
	VariantID    *string                `json:"variant_id,omitempty" db:"variant_id"`
	RuleSnapshot map[string]interface{} `json:"rule_snapshot,omitempty" db:"rule_snapshot"`
	Metadata     types.Metadata         `json:"metadata,omitempty" db:"metadata"`
	types.BaseModel
}

// IsApplied returns true while this is the live application on its invoice
func (a *DiscountApplication) IsApplied() bool {
	return a.ApplicationStatus == types.ApplicationStatusApplied
}
