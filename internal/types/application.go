package types

// ApplicationStatus tracks the lifecycle of a discount or late fee
// application. Applications are never deleted, only status-transitioned, so
// the full history of incentives on an invoice stays auditable.
type ApplicationStatus string

const (
	// ApplicationStatusPending is set when an application has been computed
	// but the triggering payment has not completed yet
	ApplicationStatusPending ApplicationStatus = "pending"
	// ApplicationStatusApplied is the single live application per invoice per kind
	ApplicationStatusApplied ApplicationStatus = "applied"
	// ApplicationStatusExpired marks a superseded discount application
	ApplicationStatusExpired ApplicationStatus = "expired"
	// ApplicationStatusWaived marks a late fee waived by an operator
	ApplicationStatusWaived ApplicationStatus = "waived"
	// ApplicationStatusCancelled marks an application voided before settling
	ApplicationStatusCancelled ApplicationStatus = "cancelled"
	// ApplicationStatusPaid marks an application settled by a completed payment
	ApplicationStatusPaid ApplicationStatus = "paid"
)

// IsTerminal returns true when the application can no longer transition
func (s ApplicationStatus) IsTerminal() bool {
	switch s {
	case ApplicationStatusExpired, ApplicationStatusWaived, ApplicationStatusCancelled, ApplicationStatusPaid:
		return true
	default:
		return false
	}
}
