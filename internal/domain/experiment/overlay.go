package experiment

import (
	"github.com/recivo/recivo/internal/domain/discountrule"
	"github.com/recivo/recivo/internal/domain/latefeerule"
)

// BuildDiscountRule overlays a variant's configuration on top of a base
// discount rule and returns an ephemeral rule for evaluation. The returned
// rule is never persisted; the base rule is not mutated.
func (e *Experiment) BuildDiscountRule(base *discountrule.DiscountRule, v *Variant) *discountrule.DiscountRule {
	rule := *base
	rule.ExperimentID = &e.ID

	cfg := v.Configuration
	if cfg.DiscountType != nil {
		rule.DiscountType = *cfg.DiscountType
	}
	if cfg.DiscountValue != nil {
		rule.DiscountValue = *cfg.DiscountValue
	}
	if cfg.TriggerConditions != nil {
		rule.TriggerConditions = *cfg.TriggerConditions
	}
	return &rule
}

// BuildLateFeeRule overlays a variant's configuration on top of a base
// late fee rule and returns an ephemeral rule for evaluation
func (e *Experiment) BuildLateFeeRule(base *latefeerule.LateFeeRule, v *Variant) *latefeerule.LateFeeRule {
	rule := *base
	rule.ExperimentID = &e.ID

	cfg := v.Configuration
	if cfg.FeeType != nil {
		rule.FeeType = *cfg.FeeType
	}
	if cfg.FeeValue != nil {
		rule.FeeValue = *cfg.FeeValue
	}
	if cfg.Frequency != nil {
		rule.Frequency = *cfg.Frequency
	}
	if cfg.GracePeriodDays != nil {
		rule.GracePeriodDays = *cfg.GracePeriodDays
	}
	if cfg.MaximumFeeAmount != nil {
		rule.MaximumFeeAmount = cfg.MaximumFeeAmount
	}
	if cfg.MaximumFeePercentage != nil {
		rule.MaximumFeePercentage = cfg.MaximumFeePercentage
	}
	return &rule
}
