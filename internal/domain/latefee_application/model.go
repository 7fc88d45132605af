package latefee_application

import (
	"time"

	"github.com/recivo/recivo/internal/types"
	"github.com/shopspring/decimal"
)

// LateFeeApplication records a late fee computed and attached to an
// invoice. At most one application per invoice may be in applied status.
type LateFeeApplication struct {
	ID                string                  `json:"id" db:"id"`
	RuleID            string                  `json:"rule_id" db:"rule_id"`
	InvoiceID         string                  `json:"invoice_id" db:"invoice_id"`
	TransactionID     *string                 `json:"transaction_id,omitempty" db:"transaction_id"`
	IdempotencyKey    *string                 `json:"idempotency_key,omitempty" db:"idempotency_key"`
	OriginalAmount    decimal.Decimal         `json:"original_amount" db:"original_amount"`
	FeeAmount         decimal.Decimal         `json:"fee_amount" db:"fee_amount"`
	TotalAmount       decimal.Decimal         `json:"total_amount" db:"total_amount"`
	DaysOverdue       int                     `json:"days_overdue" db:"days_overdue"`
	ApplicationStatus types.ApplicationStatus `json:"application_status" db:"application_status"`
	AppliedAt         time.Time               `json:"applied_at" db:"applied_at"`
	WaivedAt          *time.Time              `json:"waived_at,omitempty" db:"waived_at"`
	WaivedReason      *string                 `json:"waived_reason,omitempty" db:"waived_reason"`
	WaivedBy          *string                 `json:"waived_by,omitempty" db:"waived_by"`
	// WaiverReference is a short operator-facing reference for the waiver
	WaiverReference *string                `json:"waiver_reference,omitempty" db:"waiver_reference"`
	ExperimentID    *string                `json:"experiment_id,omitempty" db:"experiment_id"`
	VariantID       *string                `json:"variant_id,omitempty" db:"variant_id"`
	RuleSnapshot    map[string]interface{} `json:"rule_snapshot,omitempty" db:"rule_snapshot"`
	Metadata        types.Metadata         `json:"metadata,omitempty" db:"metadata"`
	types.BaseModel
}

// IsApplied returns true while this is the live application on its invoice
func (a *LateFeeApplication) IsApplied() bool {
	return a.ApplicationStatus == types.ApplicationStatusApplied
}

// IsWaived returns true once an operator has waived the fee
func (a *LateFeeApplication) IsWaived() bool {
	return a.ApplicationStatus == types.ApplicationStatusWaived
}
