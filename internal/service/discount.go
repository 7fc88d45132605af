package service

import (
	"context"
	"time"

	"github.com/recivo/recivo/internal/api/dto"
	"github.com/recivo/recivo/internal/cache"
	"github.com/recivo/recivo/internal/domain/discount_application"
	"github.com/recivo/recivo/internal/domain/discountrule"
	"github.com/recivo/recivo/internal/domain/invoice"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/idempotency"
	"github.com/recivo/recivo/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// activeRuleCacheTTL bounds how stale the hot rule list may get
const activeRuleCacheTTL = 30 * time.Second

// DiscountCalculationResult holds the outcome of evaluating the discount
// rules against one invoice
type DiscountCalculationResult struct {
	IsEligible       bool
	OriginalAmount   decimal.Decimal
	DiscountAmount   decimal.Decimal
	DiscountedAmount decimal.Decimal
	AppliedRule      *discountrule.DiscountRule
}

// ApplyDiscountParams drives one discount application. CandidateRules, when
// set, replaces the stored rule set for this single evaluation (experiment
// variant overlays); stored rules are never mutated.
type ApplyDiscountParams struct {
	InvoiceID      string
	RuleID         string
	PaymentDate    time.Time
	TransactionID  *string
	CandidateRules []*discountrule.DiscountRule
	ExperimentID   *string
	VariantID      *string
}

type DiscountService interface {
	CreateRule(ctx context.Context, req dto.CreateDiscountRuleRequest) (*dto.DiscountRuleResponse, error)
	GetRule(ctx context.Context, id string) (*dto.DiscountRuleResponse, error)
	UpdateRule(ctx context.Context, id string, req dto.UpdateDiscountRuleRequest) (*dto.DiscountRuleResponse, error)
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) (*dto.ListDiscountRulesResponse, error)

	// Calculate evaluates the stored rules against an invoice without side
	// effects
	Calculate(ctx context.Context, invoiceID string, paymentDate time.Time) (*DiscountCalculationResult, error)
	// CalculateForInvoice evaluates an explicit rule set against an already
	// loaded invoice
	CalculateForInvoice(ctx context.Context, inv *invoice.Invoice, rules []*discountrule.DiscountRule, paymentDate time.Time) *DiscountCalculationResult
	// Apply re-runs the calculation and persists an application when the
	// requested rule is still the winning one
	Apply(ctx context.Context, params ApplyDiscountParams) (*discount_application.DiscountApplication, error)
}

type discountService struct {
	ServiceParams
}

func NewDiscountService(params ServiceParams) DiscountService {
	return &discountService{ServiceParams: params}
}

func (s *discountService) CreateRule(ctx context.Context, req dto.CreateDiscountRuleRequest) (*dto.DiscountRuleResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rule := req.ToDiscountRule(ctx)
	if err := s.DiscountRuleRepo.Create(ctx, rule); err != nil {
		return nil, err
	}

	s.invalidateRuleCache(ctx)
	return &dto.DiscountRuleResponse{DiscountRule: rule}, nil
}

func (s *discountService) GetRule(ctx context.Context, id string) (*dto.DiscountRuleResponse, error) {
	rule, err := s.DiscountRuleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.DiscountRuleResponse{DiscountRule: rule}, nil
}

func (s *discountService) UpdateRule(ctx context.Context, id string, req dto.UpdateDiscountRuleRequest) (*dto.DiscountRuleResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rule, err := s.DiscountRuleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	req.Apply(rule)
	if err := s.DiscountRuleRepo.Update(ctx, rule); err != nil {
		return nil, err
	}

	s.invalidateRuleCache(ctx)
	return &dto.DiscountRuleResponse{DiscountRule: rule}, nil
}

func (s *discountService) DeleteRule(ctx context.Context, id string) error {
	if err := s.DiscountRuleRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateRuleCache(ctx)
	return nil
}

func (s *discountService) ListRules(ctx context.Context) (*dto.ListDiscountRulesResponse, error) {
	rules, err := s.DiscountRuleRepo.List(ctx, types.GetTenantID(ctx))
	if err != nil {
		return nil, err
	}

	items := lo.Map(rules, func(rule *discountrule.DiscountRule, _ int) *dto.DiscountRuleResponse {
		return &dto.DiscountRuleResponse{DiscountRule: rule}
	})
	return &dto.ListDiscountRulesResponse{Items: items, Total: len(items)}, nil
}

func (s *discountService) Calculate(ctx context.Context, invoiceID string, paymentDate time.Time) (*DiscountCalculationResult, error) {
	inv, err := s.InvoiceRepo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	rules, err := s.activeRules(ctx)
	if err != nil {
		return nil, err
	}

	return s.CalculateForInvoice(ctx, inv, rules, paymentDate), nil
}

// CalculateForInvoice walks the candidate rules in priority order and stops
// at the first rule whose trigger conditions pass. Paid invoices are never
// eligible.
func (s *discountService) CalculateForInvoice(ctx context.Context, inv *invoice.Invoice, rules []*discountrule.DiscountRule, paymentDate time.Time) *DiscountCalculationResult {
	result := &DiscountCalculationResult{
		OriginalAmount:   inv.TotalAmount,
		DiscountedAmount: inv.TotalAmount,
	}

	if inv.IsPaid() {
		return result
	}

	now := time.Now().UTC()
	for _, rule := range rules {
		if rule.TriggerType != types.DiscountTriggerEarlyPayment {
			continue
		}
		if !rule.IsActiveAt(now) || !rule.AppliesTo(inv) {
			continue
		}
		if !s.triggerConditionsPass(rule, inv, paymentDate) {
			continue
		}

		discount := rule.CalculateDiscount(inv)
		result.IsEligible = true
		result.DiscountAmount = discount
		result.DiscountedAmount = inv.TotalAmount.Sub(discount)
		result.AppliedRule = rule
		return result
	}

	return result
}

// triggerConditionsPass evaluates the early payment lead time condition.
// A rule requiring N days lead time rejects payments made closer to the due
// date than that.
func (s *discountService) triggerConditionsPass(rule *discountrule.DiscountRule, inv *invoice.Invoice, paymentDate time.Time) bool {
	required := rule.TriggerConditions.DaysBeforeDueDate
	if required == nil {
		return true
	}
	if inv.DueDate == nil {
		return false
	}
	return types.DaysBeforeDue(*inv.DueDate, paymentDate) >= *required
}

func (s *discountService) Apply(ctx context.Context, params ApplyDiscountParams) (*discount_application.DiscountApplication, error) {
	var application *discount_application.DiscountApplication

	err := s.DB.WithTx(ctx, func(txCtx context.Context) error {
		inv, err := s.InvoiceRepo.Get(txCtx, params.InvoiceID)
		if err != nil {
			return err
		}

		rules := params.CandidateRules
		if rules == nil {
			rules, err = s.activeRules(txCtx)
			if err != nil {
				return err
			}
		}

		// Recalculate against current state so a stale client cannot apply
		// a rule that is no longer the winning one.
		result := s.CalculateForInvoice(txCtx, inv, rules, params.PaymentDate)
		if !result.IsEligible || result.AppliedRule.ID != params.RuleID {
			return ierr.NewError("rule not eligible").
				WithHintf("Discount rule %s is not currently eligible for invoice %s", params.RuleID, params.InvoiceID).
				WithReportableDetails(map[string]any{
					"invoice_id": params.InvoiceID,
					"rule_id":    params.RuleID,
				}).
				Mark(ierr.ErrValidation)
		}

		// At most one application per invoice may read as applied. A prior
		// applied application is expired inside the same transaction before
		// the new one lands.
		if prior, err := s.DiscountApplicationRepo.FindApplied(txCtx, inv.ID); err == nil {
			prior.ApplicationStatus = types.ApplicationStatusExpired
			if err := s.DiscountApplicationRepo.Update(txCtx, prior); err != nil {
				return err
			}
		} else if !ierr.IsNotFound(err) {
			return err
		}

		key := s.IdempotencyGen.GenerateKey(idempotency.ScopeDiscountApplication, map[string]interface{}{
			"invoice_id":     inv.ID,
			"rule_id":        params.RuleID,
			"transaction_id": lo.FromPtr(params.TransactionID),
		})

		var daysBeforeDue *int
		if inv.DueDate != nil {
			daysBeforeDue = lo.ToPtr(types.DaysBeforeDue(*inv.DueDate, params.PaymentDate))
		}

		application = &discount_application.DiscountApplication{
			ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_DISCOUNT_APPLICATION),
			RuleID:            result.AppliedRule.ID,
			InvoiceID:         inv.ID,
			TransactionID:     params.TransactionID,
			IdempotencyKey:    &key,
			DaysBeforeDueDate: daysBeforeDue,
			OriginalAmount:    result.OriginalAmount,
			DiscountAmount:    result.DiscountAmount,
			FinalAmount:       result.DiscountedAmount,
			ApplicationStatus: types.ApplicationStatusApplied,
			AppliedAt:         time.Now().UTC(),
			ExperimentID:      params.ExperimentID,
			VariantID:         params.VariantID,
			RuleSnapshot:      ruleSnapshot(result.AppliedRule),
			BaseModel:         types.GetDefaultBaseModel(txCtx),
		}
		if err := s.DiscountApplicationRepo.Create(txCtx, application); err != nil {
			return err
		}

		inv.AmountDue = result.DiscountedAmount
		return s.InvoiceRepo.UpdateAmountDue(txCtx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.publishWebhookEvent(ctx, types.WebhookEventDiscountApplied, map[string]interface{}{
		"invoice_id":              application.InvoiceID,
		"transaction_id":          application.TransactionID,
		"discount_amount":         application.DiscountAmount,
		"discount_rule_id":        application.RuleID,
		"discount_application_id": application.ID,
	})

	return application, nil
}

// activeRules loads the tenant's active discount rules, served from the hot
// cache when fresh
func (s *discountService) activeRules(ctx context.Context) ([]*discountrule.DiscountRule, error) {
	tenantID := types.GetTenantID(ctx)
	key := cache.GenerateKey(cache.PrefixDiscountRule, tenantID, "active")

	if s.Cache != nil {
		if cached, found := s.Cache.Get(ctx, key); found {
			if rules, ok := cached.([]*discountrule.DiscountRule); ok {
				return rules, nil
			}
		}
	}

	rules, err := s.DiscountRuleRepo.ListActive(ctx, tenantID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		s.Cache.Set(ctx, key, rules, activeRuleCacheTTL)
	}
	return rules, nil
}

func (s *discountService) invalidateRuleCache(ctx context.Context) {
	if s.Cache != nil {
		s.Cache.DeleteByPrefix(ctx, cache.PrefixDiscountRule)
	}
}

// ruleSnapshot captures the rule fields that produced an application, for
// the audit trail
func ruleSnapshot(rule *discountrule.DiscountRule) map[string]interface{} {
	return map[string]interface{}{
		"rule_id":        rule.ID,
		"name":           rule.Name,
		"discount_type":  string(rule.DiscountType),
		"discount_value": rule.DiscountValue.String(),
		"trigger_type":   string(rule.TriggerType),
		"priority":       rule.Priority,
	}
}
