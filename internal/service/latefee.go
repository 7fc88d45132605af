package service

import (
	"context"
	"time"

	"github.com/recivo/recivo/internal/api/dto"
	"github.com/recivo/recivo/internal/cache"
	"github.com/recivo/recivo/internal/domain/invoice"
	"github.com/recivo/recivo/internal/domain/latefee_application"
	"github.com/recivo/recivo/internal/domain/latefeerule"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/idempotency"
	"github.com/recivo/recivo/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// LateFeeCalculationResult holds the outcome of evaluating the late fee
// rules against one overdue invoice
type LateFeeCalculationResult struct {
	IsApplicable   bool
	OriginalAmount decimal.Decimal
	FeeAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
	DaysOverdue    int
	AppliedRule    *latefeerule.LateFeeRule
}

// ApplyLateFeeParams drives one late fee application. CandidateRules, when
// set, replaces the stored rule set for this single evaluation.
type ApplyLateFeeParams struct {
	InvoiceID      string
	RuleID         string
	ReferenceDate  time.Time
	TransactionID  *string
	CandidateRules []*latefeerule.LateFeeRule
	ExperimentID   *string
	VariantID      *string
}

type LateFeeService interface {
	CreateRule(ctx context.Context, req dto.CreateLateFeeRuleRequest) (*dto.LateFeeRuleResponse, error)
	GetRule(ctx context.Context, id string) (*dto.LateFeeRuleResponse, error)
	UpdateRule(ctx context.Context, id string, req dto.UpdateLateFeeRuleRequest) (*dto.LateFeeRuleResponse, error)
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) (*dto.ListLateFeeRulesResponse, error)

	Calculate(ctx context.Context, invoiceID string, referenceDate time.Time) (*LateFeeCalculationResult, error)
	CalculateForInvoice(ctx context.Context, inv *invoice.Invoice, rules []*latefeerule.LateFeeRule, referenceDate time.Time) *LateFeeCalculationResult
	Apply(ctx context.Context, params ApplyLateFeeParams) (*latefee_application.LateFeeApplication, error)
	// Waive reverses an applied fee, restoring the invoice amount due
	Waive(ctx context.Context, applicationID string, req dto.WaiveLateFeeRequest) (*latefee_application.LateFeeApplication, error)
}

type lateFeeService struct {
	ServiceParams
}

func NewLateFeeService(params ServiceParams) LateFeeService {
	return &lateFeeService{ServiceParams: params}
}

func (s *lateFeeService) CreateRule(ctx context.Context, req dto.CreateLateFeeRuleRequest) (*dto.LateFeeRuleResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rule := req.ToLateFeeRule(ctx)
	if err := s.LateFeeRuleRepo.Create(ctx, rule); err != nil {
		return nil, err
	}

	s.invalidateRuleCache(ctx)
	return &dto.LateFeeRuleResponse{LateFeeRule: rule}, nil
}

func (s *lateFeeService) GetRule(ctx context.Context, id string) (*dto.LateFeeRuleResponse, error) {
	rule, err := s.LateFeeRuleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.LateFeeRuleResponse{LateFeeRule: rule}, nil
}

func (s *lateFeeService) UpdateRule(ctx context.Context, id string, req dto.UpdateLateFeeRuleRequest) (*dto.LateFeeRuleResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rule, err := s.LateFeeRuleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	req.Apply(rule)
	if err := s.LateFeeRuleRepo.Update(ctx, rule); err != nil {
		return nil, err
	}

	s.invalidateRuleCache(ctx)
	return &dto.LateFeeRuleResponse{LateFeeRule: rule}, nil
}

func (s *lateFeeService) DeleteRule(ctx context.Context, id string) error {
	if err := s.LateFeeRuleRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateRuleCache(ctx)
	return nil
}

func (s *lateFeeService) ListRules(ctx context.Context) (*dto.ListLateFeeRulesResponse, error) {
	rules, err := s.LateFeeRuleRepo.List(ctx, types.GetTenantID(ctx))
	if err != nil {
		return nil, err
	}

	items := lo.Map(rules, func(rule *latefeerule.LateFeeRule, _ int) *dto.LateFeeRuleResponse {
		return &dto.LateFeeRuleResponse{LateFeeRule: rule}
	})
	return &dto.ListLateFeeRulesResponse{Items: items, Total: len(items)}, nil
}

func (s *lateFeeService) Calculate(ctx context.Context, invoiceID string, referenceDate time.Time) (*LateFeeCalculationResult, error) {
	inv, err := s.InvoiceRepo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	rules, err := s.activeRules(ctx)
	if err != nil {
		return nil, err
	}

	return s.CalculateForInvoice(ctx, inv, rules, referenceDate), nil
}

// CalculateForInvoice walks the candidate rules in priority order and stops
// at the first rule whose grace period has elapsed. Paid invoices and
// invoices not yet a full day past due are never applicable.
func (s *lateFeeService) CalculateForInvoice(ctx context.Context, inv *invoice.Invoice, rules []*latefeerule.LateFeeRule, referenceDate time.Time) *LateFeeCalculationResult {
	result := &LateFeeCalculationResult{
		OriginalAmount: inv.TotalAmount,
		TotalAmount:    inv.TotalAmount,
	}

	if inv.IsPaid() || inv.DueDate == nil {
		return result
	}

	daysOverdue := inv.DaysOverdue(referenceDate)
	result.DaysOverdue = daysOverdue
	if daysOverdue <= 0 {
		return result
	}

	now := time.Now().UTC()
	for _, rule := range rules {
		if !rule.IsActiveAt(now) || !rule.AppliesTo(inv) {
			continue
		}
		if daysOverdue <= rule.GracePeriodDays {
			continue
		}

		effectiveDays := daysOverdue - rule.GracePeriodDays
		fee := rule.CapFee(inv.TotalAmount, rule.CalculateFee(inv.TotalAmount, effectiveDays))

		result.IsApplicable = true
		result.FeeAmount = fee
		result.TotalAmount = inv.TotalAmount.Add(fee)
		result.AppliedRule = rule
		return result
	}

	return result
}

func (s *lateFeeService) Apply(ctx context.Context, params ApplyLateFeeParams) (*latefee_application.LateFeeApplication, error) {
	var application *latefee_application.LateFeeApplication

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

		result := s.CalculateForInvoice(txCtx, inv, rules, params.ReferenceDate)
		if !result.IsApplicable || result.AppliedRule.ID != params.RuleID {
			return ierr.NewError("rule not eligible").
				WithHintf("Late fee rule %s is not currently applicable to invoice %s", params.RuleID, params.InvoiceID).
				WithReportableDetails(map[string]any{
					"invoice_id": params.InvoiceID,
					"rule_id":    params.RuleID,
				}).
				Mark(ierr.ErrValidation)
		}

		// The sweep and the payment pipeline may race on the same invoice.
		// The idempotency key dedupes re-runs within the same accrual day;
		// a live application from another path is superseded first.
		key := s.IdempotencyGen.GenerateKey(idempotency.ScopeLateFeeApplication, map[string]interface{}{
			"invoice_id":   inv.ID,
			"rule_id":      params.RuleID,
			"days_overdue": result.DaysOverdue,
		})

		if existing, err := s.LateFeeApplicationRepo.FindByIdempotencyKey(txCtx, key); err == nil {
			application = existing
			return nil
		} else if !ierr.IsNotFound(err) {
			return err
		}

		if prior, err := s.LateFeeApplicationRepo.FindApplied(txCtx, inv.ID); err == nil {
			prior.ApplicationStatus = types.ApplicationStatusExpired
			if err := s.LateFeeApplicationRepo.Update(txCtx, prior); err != nil {
				return err
			}
			// Back the prior fee out before the new one is added.
			inv.AmountDue = inv.AmountDue.Sub(prior.FeeAmount)
		} else if !ierr.IsNotFound(err) {
			return err
		}

		application = &latefee_application.LateFeeApplication{
			ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_LATE_FEE_APPLICATION),
			RuleID:            result.AppliedRule.ID,
			InvoiceID:         inv.ID,
			TransactionID:     params.TransactionID,
			IdempotencyKey:    &key,
			OriginalAmount:    result.OriginalAmount,
			FeeAmount:         result.FeeAmount,
			TotalAmount:       result.TotalAmount,
			DaysOverdue:       result.DaysOverdue,
			ApplicationStatus: types.ApplicationStatusApplied,
			AppliedAt:         time.Now().UTC(),
			ExperimentID:      params.ExperimentID,
			VariantID:         params.VariantID,
			RuleSnapshot:      lateFeeRuleSnapshot(result.AppliedRule),
			BaseModel:         types.GetDefaultBaseModel(txCtx),
		}
		if err := s.LateFeeApplicationRepo.Create(txCtx, application); err != nil {
			return err
		}

		inv.AmountDue = inv.AmountDue.Add(result.FeeAmount)
		return s.InvoiceRepo.UpdateAmountDue(txCtx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.publishWebhookEvent(ctx, types.WebhookEventLateFeeApplied, map[string]interface{}{
		"invoice_id":              application.InvoiceID,
		"late_fee_application_id": application.ID,
		"fee_amount":              application.FeeAmount,
		"total_amount":            application.TotalAmount,
		"days_overdue":            application.DaysOverdue,
	})

	return application, nil
}

func (s *lateFeeService) Waive(ctx context.Context, applicationID string, req dto.WaiveLateFeeRequest) (*latefee_application.LateFeeApplication, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var application *latefee_application.LateFeeApplication

	err := s.DB.WithTx(ctx, func(txCtx context.Context) error {
		app, err := s.LateFeeApplicationRepo.Get(txCtx, applicationID)
		if err != nil {
			return err
		}

		if !app.IsApplied() {
			return ierr.NewError("late fee is not applied").
				WithHintf("Application %s is %s; only applied fees can be waived", app.ID, app.ApplicationStatus).
				Mark(ierr.ErrInvalidOperation)
		}

		now := time.Now().UTC()
		reference := types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_WAIVER)
		app.ApplicationStatus = types.ApplicationStatusWaived
		app.WaivedAt = &now
		app.WaivedReason = &req.Reason
		app.WaivedBy = &req.WaivedBy
		app.WaiverReference = &reference
		if err := s.LateFeeApplicationRepo.Update(txCtx, app); err != nil {
			return err
		}

		inv, err := s.InvoiceRepo.Get(txCtx, app.InvoiceID)
		if err != nil {
			return err
		}
		inv.AmountDue = inv.AmountDue.Sub(app.FeeAmount)
		if err := s.InvoiceRepo.UpdateAmountDue(txCtx, inv); err != nil {
			return err
		}

		application = app
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishWebhookEvent(ctx, types.WebhookEventLateFeeWaived, map[string]interface{}{
		"invoice_id":              application.InvoiceID,
		"late_fee_application_id": application.ID,
		"reason":                  req.Reason,
		"waived_by":               req.WaivedBy,
	})

	return application, nil
}

func (s *lateFeeService) activeRules(ctx context.Context) ([]*latefeerule.LateFeeRule, error) {
	tenantID := types.GetTenantID(ctx)
	key := cache.GenerateKey(cache.PrefixLateFeeRule, tenantID, "active")

	if s.Cache != nil {
		if cached, found := s.Cache.Get(ctx, key); found {
			if rules, ok := cached.([]*latefeerule.LateFeeRule); ok {
				return rules, nil
			}
		}
	}

	rules, err := s.LateFeeRuleRepo.ListActive(ctx, tenantID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		s.Cache.Set(ctx, key, rules, activeRuleCacheTTL)
	}
	return rules, nil
}

func (s *lateFeeService) invalidateRuleCache(ctx context.Context) {
	if s.Cache != nil {
		s.Cache.DeleteByPrefix(ctx, cache.PrefixLateFeeRule)
	}
}

func lateFeeRuleSnapshot(rule *latefeerule.LateFeeRule) map[string]interface{} {
	return map[string]interface{}{
		"rule_id":           rule.ID,
		"name":              rule.Name,
		"fee_type":          string(rule.FeeType),
		"fee_value":         rule.FeeValue.String(),
		"frequency":         string(rule.Frequency),
		"grace_period_days": rule.GracePeriodDays,
		"priority":          rule.Priority,
	}
}
