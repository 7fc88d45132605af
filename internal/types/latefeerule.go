package types

import (
	ierr "github.com/recivo/recivo/internal/errors"
)

// LateFeeType represents how the late fee value is interpreted
type LateFeeType string

const (
	// LateFeeTypeFixedAmount charges a fixed amount per period
	LateFeeTypeFixedAmount LateFeeType = "fixed_amount"
	// LateFeeTypePercentage charges a percentage of the invoice amount per period
	LateFeeTypePercentage LateFeeType = "percentage"
	// LateFeeTypeCompoundPercentage compounds the invoice amount daily
	LateFeeTypeCompoundPercentage LateFeeType = "compound_percentage"
)

func (t LateFeeType) Validate() error {
	switch t {
	case LateFeeTypeFixedAmount, LateFeeTypePercentage, LateFeeTypeCompoundPercentage:
		return nil
	default:
		return ierr.NewError("invalid late fee type").
			WithHint("Unknown fee type for late fee rule").
			Mark(ierr.ErrValidation)
	}
}

// LateFeeFrequency represents how often a late fee accrues once the grace
// period has elapsed
type LateFeeFrequency string

const (
	LateFeeFrequencyOneTime LateFeeFrequency = "one_time"
	LateFeeFrequencyDaily   LateFeeFrequency = "daily"
	LateFeeFrequencyWeekly  LateFeeFrequency = "weekly"
	LateFeeFrequencyMonthly LateFeeFrequency = "monthly"
	LateFeeFrequencyCustom  LateFeeFrequency = "custom"
)

func (f LateFeeFrequency) Validate() error {
	switch f {
	case LateFeeFrequencyOneTime, LateFeeFrequencyDaily, LateFeeFrequencyWeekly,
		LateFeeFrequencyMonthly, LateFeeFrequencyCustom:
		return nil
	default:
		return ierr.NewError("invalid late fee frequency").
			WithHint("Unknown frequency for late fee rule").
			Mark(ierr.ErrValidation)
	}
}

// PeriodCount returns the number of accrual periods for the given effective
// days overdue (days past due minus the grace period). Weekly and monthly
// periods round up so a partial period still accrues.
func (f LateFeeFrequency) PeriodCount(effectiveDaysOverdue int) int {
	if effectiveDaysOverdue <= 0 {
		return 0
	}

	switch f {
	case LateFeeFrequencyDaily:
		return effectiveDaysOverdue
	case LateFeeFrequencyWeekly:
		return (effectiveDaysOverdue + 6) / 7
	case LateFeeFrequencyMonthly:
		return (effectiveDaysOverdue + 29) / 30
	default:
		// one_time and custom accrue a single period
		return 1
	}
}
