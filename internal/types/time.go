package types

import (
	"math"
	"time"
)

func ParseTime(t string) (time.Time, error) {
	return time.Parse(time.RFC3339, t)
}

func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// DaysBeforeDue returns the number of whole or partial days between the
// payment date and the due date, rounded up. A payment made 12 hours before
// the due date still counts as 1 day of lead time. Negative values mean the
// payment date is past the due date.
func DaysBeforeDue(dueDate, paymentDate time.Time) int {
	return int(math.Ceil(dueDate.Sub(paymentDate).Hours() / 24))
}

// DaysOverdue returns the number of full days the reference date is past the
// due date, rounded down. A reference date 23 hours past due is 0 days
// overdue. Negative values mean the invoice is not yet due.
func DaysOverdue(dueDate, referenceDate time.Time) int {
	return int(math.Floor(referenceDate.Sub(dueDate).Hours() / 24))
}
