package types

import (
	"encoding/json"
	"time"
)

// WebhookEvent represents an outbound event published on the event bus
type WebhookEvent struct {
	ID        string          `json:"id"`
	EventName string          `json:"event_name"`
	TenantID  string          `json:"tenant_id"`
	UserID    string          `json:"user_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// incentive event names
const (
	WebhookEventDiscountApplied = "invoice.discount.applied"
	WebhookEventLateFeeApplied  = "invoice.late_fee.applied"
	WebhookEventLateFeeWaived   = "invoice.late_fee.waived"
)

// experiment event names
const (
	WebhookEventExperimentStarted      = "experiment.started"
	WebhookEventExperimentPaused       = "experiment.paused"
	WebhookEventExperimentCompleted    = "experiment.completed"
	WebhookEventExperimentDataRecorded = "experiment.data_recorded"
)
