package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoicePaymentStatus is the payment state of the invoice read model
type InvoicePaymentStatus string

const (
	InvoicePaymentStatusPending   InvoicePaymentStatus = "pending"
	InvoicePaymentStatusSucceeded InvoicePaymentStatus = "succeeded"
	InvoicePaymentStatusFailed    InvoicePaymentStatus = "failed"
)

// payment lifecycle event names consumed from the event bus
const (
	PaymentEventProcessing = "payment.processing"
	PaymentEventCompleted  = "payment.completed"
)

// PaymentProcessingEvent is published by the payment gateway integration when
// a payment for an invoice starts processing
type PaymentProcessingEvent struct {
	InvoiceID     string          `json:"invoice_id"`
	TransactionID string          `json:"transaction_id"`
	PaymentDate   time.Time       `json:"payment_date"`
	Amount        decimal.Decimal `json:"amount"`
}

// PaymentCompletedEvent is published when a payment settles. Delivery is at
// least once; handlers must be idempotent.
type PaymentCompletedEvent struct {
	InvoiceID     string `json:"invoice_id"`
	TransactionID string `json:"transaction_id"`
}
