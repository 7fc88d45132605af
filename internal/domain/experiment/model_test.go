package experiment

import (
	"fmt"
	"testing"

	"github.com/recivo/recivo/internal/domain/discountrule"
	"github.com/recivo/recivo/internal/domain/invoice"
	"github.com/recivo/recivo/internal/domain/latefeerule"
	"github.com/recivo/recivo/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoVariantExperiment(allocA, allocB float64) *Experiment {
	return &Experiment{
		ID:               "exp_test",
		Name:             "test experiment",
		ExperimentStatus: types.ExperimentStatusDraft,
		ExperimentType:   types.ExperimentTypeDiscountStrategy,
		Variants: []Variant{
			{ID: "var_a", Name: "control", TrafficAllocation: allocA},
			{ID: "var_b", Name: "treatment", TrafficAllocation: allocB},
		},
		Metrics: Metrics{Primary: "conversion"},
	}
}

func TestExperimentValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, twoVariantExperiment(50, 50).Validate())
	})

	t.Run("single variant rejected", func(t *testing.T) {
		exp := twoVariantExperiment(50, 50)
		exp.Variants = exp.Variants[:1]
		assert.Error(t, exp.Validate())
	})

	t.Run("allocation sum must be 100", func(t *testing.T) {
		assert.Error(t, twoVariantExperiment(60, 50).Validate())
		assert.Error(t, twoVariantExperiment(40, 50).Validate())
	})

	t.Run("allocation within tolerance", func(t *testing.T) {
		assert.NoError(t, twoVariantExperiment(33.33, 66.67).Validate())
	})

	t.Run("primary metric required", func(t *testing.T) {
		exp := twoVariantExperiment(50, 50)
		exp.Metrics.Primary = ""
		assert.Error(t, exp.Validate())
	})

	t.Run("experiment type must be known", func(t *testing.T) {
		exp := twoVariantExperiment(50, 50)
		exp.ExperimentType = "bogus"
		assert.Error(t, exp.Validate())
	})
}

func TestAssignVariantDeterministic(t *testing.T) {
	exp := twoVariantExperiment(50, 50)

	first := exp.AssignVariant("inv_determinism_check")
	require.NotNil(t, first)
	for i := 0; i < 100; i++ {
		again := exp.AssignVariant("inv_determinism_check")
		require.NotNil(t, again)
		assert.Equal(t, first.ID, again.ID)
	}
}

func TestAssignVariantDistribution(t *testing.T) {
	exp := twoVariantExperiment(50, 50)

	const n = 10000
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		v := exp.AssignVariant(fmt.Sprintf("inv_%d", i))
		require.NotNil(t, v)
		counts[v.ID]++
	}

	// a uniform hash should land within a few percent of the allocation
	assert.InDelta(t, n/2, counts["var_a"], n*0.03)
	assert.InDelta(t, n/2, counts["var_b"], n*0.03)
}

func TestAssignVariantSkewedAllocation(t *testing.T) {
	exp := twoVariantExperiment(90, 10)

	const n = 10000
	treatment := 0
	for i := 0; i < n; i++ {
		v := exp.AssignVariant(fmt.Sprintf("inv_skew_%d", i))
		require.NotNil(t, v)
		if v.ID == "var_b" {
			treatment++
		}
	}

	assert.InDelta(t, n/10, treatment, n*0.02)
}

func TestMatchesInvoice(t *testing.T) {
	currency := "USD"
	minAmount := decimal.NewFromInt(500)
	customerType := types.CustomerTypeBusiness

	exp := twoVariantExperiment(50, 50)
	exp.TargetCriteria = &TargetCriteria{
		MinAmount:    &minAmount,
		Currency:     &currency,
		CustomerType: &customerType,
	}

	inv := &invoice.Invoice{
		Currency:     "USD",
		TotalAmount:  decimal.NewFromInt(1000),
		CustomerType: types.CustomerTypeBusiness,
	}
	assert.True(t, exp.MatchesInvoice(inv))

	small := *inv
	small.TotalAmount = decimal.NewFromInt(100)
	assert.False(t, exp.MatchesInvoice(&small))

	foreign := *inv
	foreign.Currency = "EUR"
	assert.False(t, exp.MatchesInvoice(&foreign))

	exp.TargetCriteria = nil
	assert.True(t, exp.MatchesInvoice(&small))
}

func TestBuildDiscountRuleOverlay(t *testing.T) {
	exp := twoVariantExperiment(50, 50)
	value := decimal.NewFromInt(5)
	days := 3
	exp.Variants[1].Configuration = VariantConfiguration{
		DiscountValue:     &value,
		TriggerConditions: &types.TriggerConditions{DaysBeforeDueDate: &days},
	}

	base := &discountrule.DiscountRule{
		ID:           exp.Variants[1].ID,
		DiscountType: types.DiscountTypePercentage,
		TriggerType:  types.DiscountTriggerEarlyPayment,
		RuleStatus:   types.RuleStatusActive,
		IsEnabled:    true,
	}
	overlaid := exp.BuildDiscountRule(base, &exp.Variants[1])

	assert.Equal(t, base.ID, overlaid.ID)
	assert.True(t, overlaid.DiscountValue.Equal(value))
	require.NotNil(t, overlaid.TriggerConditions.DaysBeforeDueDate)
	assert.Equal(t, days, *overlaid.TriggerConditions.DaysBeforeDueDate)
	require.NotNil(t, overlaid.ExperimentID)
	assert.Equal(t, exp.ID, *overlaid.ExperimentID)

	// the base rule is never mutated
	assert.True(t, base.DiscountValue.IsZero())
	assert.Nil(t, base.TriggerConditions.DaysBeforeDueDate)
	assert.Nil(t, base.ExperimentID)
}

func TestBuildLateFeeRuleOverlay(t *testing.T) {
	exp := twoVariantExperiment(50, 50)
	feeValue := decimal.NewFromInt(2)
	grace := 5
	frequency := types.LateFeeFrequencyDaily
	exp.Variants[0].Configuration = VariantConfiguration{
		FeeValue:        &feeValue,
		Frequency:       &frequency,
		GracePeriodDays: &grace,
	}

	base := &latefeerule.LateFeeRule{
		ID:         exp.Variants[0].ID,
		FeeType:    types.LateFeeTypePercentage,
		Frequency:  types.LateFeeFrequencyOneTime,
		RuleStatus: types.RuleStatusActive,
		IsEnabled:  true,
	}
	overlaid := exp.BuildLateFeeRule(base, &exp.Variants[0])

	assert.True(t, overlaid.FeeValue.Equal(feeValue))
	assert.Equal(t, types.LateFeeFrequencyDaily, overlaid.Frequency)
	assert.Equal(t, grace, overlaid.GracePeriodDays)
	require.NotNil(t, overlaid.ExperimentID)
	assert.Equal(t, exp.ID, *overlaid.ExperimentID)

	assert.True(t, base.FeeValue.IsZero())
	assert.Equal(t, 0, base.GracePeriodDays)
}

func TestResultAggregation(t *testing.T) {
	r := &Result{ExperimentID: "exp_test", EventType: "conversion", VariantID: "var_a"}

	for _, v := range []int64{2, 4, 6} {
		val := decimal.NewFromInt(v)
		r.Record(&val)
	}

	assert.Equal(t, int64(3), r.Count)
	assert.True(t, r.Sum.Equal(decimal.NewFromInt(12)))
	assert.True(t, r.Mean().Equal(decimal.NewFromInt(4)))
	// population stddev of {2, 4, 6}
	assert.InDelta(t, 1.63299, r.StdDev(), 0.0001)
	assert.True(t, r.Score().Equal(decimal.NewFromInt(12)))
}

func TestResultCountOnlyEvents(t *testing.T) {
	r := &Result{ExperimentID: "exp_test", EventType: "exposure", VariantID: "var_a"}

	for i := 0; i < 5; i++ {
		r.Record(nil)
	}

	assert.Equal(t, int64(5), r.Count)
	assert.True(t, r.Sum.IsZero())
	assert.True(t, r.Mean().IsZero())
	// without recorded values the score falls back to the event count
	assert.True(t, r.Score().Equal(decimal.NewFromInt(5)))
}

func TestResultSampleCap(t *testing.T) {
	r := &Result{ExperimentID: "exp_test", EventType: "conversion", VariantID: "var_a"}

	one := decimal.NewFromInt(1)
	for i := 0; i < maxResultSamples+50; i++ {
		r.Record(&one)
	}

	assert.Len(t, r.Values, maxResultSamples)
	assert.Equal(t, int64(maxResultSamples+50), r.Count)
	assert.True(t, r.Sum.Equal(decimal.NewFromInt(int64(maxResultSamples+50))))
}
