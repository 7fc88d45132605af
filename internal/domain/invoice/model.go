package invoice

import (
	"time"

	"github.com/recivo/recivo/internal/types"
	"github.com/shopspring/decimal"
)

// Invoice is the read model the incentive engine evaluates against. Invoice
// creation and line item math are owned elsewhere; the engine only reads the
// snapshot and adjusts the amount due when a discount or fee applies.
type Invoice struct {
	ID            string                     `json:"id" db:"id"`
	CustomerID    string                     `json:"customer_id" db:"customer_id"`
	CustomerType  types.CustomerType         `json:"customer_type" db:"customer_type"`
	Currency      string                     `json:"currency" db:"currency"`
	Subtotal      decimal.Decimal            `json:"subtotal" db:"subtotal"`
	TotalAmount   decimal.Decimal            `json:"total_amount" db:"total_amount"`
	AmountDue     decimal.Decimal            `json:"amount_due" db:"amount_due"`
	PaymentStatus types.InvoicePaymentStatus `json:"payment_status" db:"payment_status"`
	DueDate       *time.Time                 `json:"due_date,omitempty" db:"due_date"`
	PaidAt        *time.Time                 `json:"paid_at,omitempty" db:"paid_at"`
	Metadata      types.Metadata             `json:"metadata,omitempty" db:"metadata"`
	Version       int                        `json:"version" db:"version"`
	types.BaseModel
}

// IsPaid returns true once the invoice has settled
func (i *Invoice) IsPaid() bool {
	return i.PaymentStatus == types.InvoicePaymentStatusSucceeded
}

// DaysOverdue returns the number of full days past due at the reference
// date, or 0 when the invoice has no due date
func (i *Invoice) DaysOverdue(referenceDate time.Time) int {
	if i.DueDate == nil {
		return 0
	}
	return types.DaysOverdue(*i.DueDate, referenceDate)
}

// IsOverdue returns true when the invoice is unpaid and at least one full
// day past its due date
func (i *Invoice) IsOverdue(referenceDate time.Time) bool {
	return !i.IsPaid() && i.DaysOverdue(referenceDate) > 0
}
