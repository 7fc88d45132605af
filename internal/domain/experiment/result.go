package experiment

import (
	"math"

	"github.com/shopspring/decimal"
)

// maxResultSamples caps the raw value sample retained per result cell so a
// long-running experiment cannot grow a row without bound. Count, Sum and
// SumSquares keep accumulating past the cap.
const maxResultSamples = 1000

// Result is one aggregate cell of experiment outcomes, keyed by
// (experiment_id, event_type, variant_id)
type Result struct {
	ExperimentID string            `json:"experiment_id" db:"experiment_id"`
	EventType    string            `json:"event_type" db:"event_type"`
	VariantID    string            `json:"variant_id" db:"variant_id"`
	Count        int64             `json:"count" db:"count"`
	Sum          decimal.Decimal   `json:"sum" db:"sum"`
	SumSquares   decimal.Decimal   `json:"sum_squares" db:"sum_squares"`
	Values       []decimal.Decimal `json:"values,omitempty" db:"values"`
}

// Record folds one observation into the aggregate. A nil value counts the
// event without contributing to the sums.
func (r *Result) Record(value *decimal.Decimal) {
	r.Count++
	if value == nil {
		return
	}
	r.Sum = r.Sum.Add(*value)
	r.SumSquares = r.SumSquares.Add(value.Mul(*value))
	if len(r.Values) < maxResultSamples {
		r.Values = append(r.Values, *value)
	}
}

// Mean returns the average recorded value, zero when nothing was recorded
func (r *Result) Mean() decimal.Decimal {
	if r.Count == 0 {
		return decimal.Zero
	}
	return r.Sum.Div(decimal.NewFromInt(r.Count))
}

// StdDev returns the population standard deviation of the recorded values
func (r *Result) StdDev() float64 {
	if r.Count == 0 {
		return 0
	}
	n := float64(r.Count)
	mean, _ := r.Mean().Float64()
	sumSq, _ := r.SumSquares.Float64()
	variance := sumSq/n - mean*mean
	if variance < 0 {
		// decimal-to-float rounding can push a zero variance slightly negative
		return 0
	}
	return math.Sqrt(variance)
}

// Score is the value automatic winner selection compares across variants.
// Variants with recorded values compare by total value, otherwise by count.
func (r *Result) Score() decimal.Decimal {
	if r.Sum.IsZero() {
		return decimal.NewFromInt(r.Count)
	}
	return r.Sum
}
