package service

import (
	"context"
	"time"

	"github.com/recivo/recivo/internal/api/dto"
	"github.com/recivo/recivo/internal/domain/discountrule"
	"github.com/recivo/recivo/internal/domain/invoice"
	"github.com/recivo/recivo/internal/domain/latefee_application"
	"github.com/recivo/recivo/internal/domain/latefeerule"

	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/types"
	"github.com/shopspring/decimal"
)

// IncentiveService bridges payment lifecycle events into rule evaluation
// and experiment recording. Incentive application is best effort relative
// to payment processing: evaluation and recording failures are logged and
// never propagate back into the payment pipeline.
type IncentiveService interface {
	HandlePaymentProcessing(ctx context.Context, event types.PaymentProcessingEvent) error
	HandlePaymentCompleted(ctx context.Context, event types.PaymentCompletedEvent) error
	// ProcessLateFeeForInvoice evaluates and, when applicable, applies a
	// late fee to one invoice, honoring late fee strategy experiments
	ProcessLateFeeForInvoice(ctx context.Context, inv *invoice.Invoice, referenceDate time.Time) (*latefee_application.LateFeeApplication, bool, error)
}

type incentiveService struct {
	ServiceParams
	discountService   DiscountService
	lateFeeService    LateFeeService
	experimentService ExperimentService
}

func NewIncentiveService(
	params ServiceParams,
	discountService DiscountService,
	lateFeeService LateFeeService,
	experimentService ExperimentService,
) IncentiveService {
	return &incentiveService{
		ServiceParams:     params,
		discountService:   discountService,
		lateFeeService:    lateFeeService,
		experimentService: experimentService,
	}
}

func (s *incentiveService) HandlePaymentProcessing(ctx context.Context, event types.PaymentProcessingEvent) error {
	inv, err := s.InvoiceRepo.Get(ctx, event.InvoiceID)
	if err != nil {
		s.Logger.Errorw("skipping incentive evaluation, invoice lookup failed",
			"invoice_id", event.InvoiceID, "error", err)
		return nil
	}
	if inv.IsPaid() {
		return nil
	}

	assignment, err := s.experimentService.GetVariantForInvoice(ctx, inv, types.ExperimentTypeDiscountStrategy)
	if err != nil {
		s.Logger.Errorw("variant lookup failed, evaluating stored rules only",
			"invoice_id", inv.ID, "error", err)
		assignment = nil
	}

	var result *DiscountCalculationResult
	var candidateRules []*discountrule.DiscountRule
	var experimentID, variantID *string

	if assignment != nil {
		experimentID = &assignment.Experiment.ID
		variantID = &assignment.Variant.ID
		s.recordExperimentEvent(ctx, assignment, types.ExperimentEventExposure, nil)

		overlaid := assignment.Experiment.BuildDiscountRule(s.defaultDiscountRule(ctx, assignment.Variant.ID), assignment.Variant)
		candidateRules = []*discountrule.DiscountRule{overlaid}
		result = s.discountService.CalculateForInvoice(ctx, inv, candidateRules, event.PaymentDate)
	} else {
		result, err = s.discountService.Calculate(ctx, inv.ID, event.PaymentDate)
		if err != nil {
			s.Logger.Errorw("discount calculation failed",
				"invoice_id", inv.ID, "error", err)
			return nil
		}
	}

	if !result.IsEligible {
		return nil
	}
	if assignment == nil && !result.AppliedRule.IsAutomaticallyApplied {
		s.Logger.Debugw("discount eligible but not automatic, skipping",
			"invoice_id", inv.ID, "rule_id", result.AppliedRule.ID)
		return nil
	}

	application, err := s.discountService.Apply(ctx, ApplyDiscountParams{
		InvoiceID:      inv.ID,
		RuleID:         result.AppliedRule.ID,
		PaymentDate:    event.PaymentDate,
		TransactionID:  &event.TransactionID,
		CandidateRules: candidateRules,
		ExperimentID:   experimentID,
		VariantID:      variantID,
	})
	if err != nil {
		s.Logger.Errorw("discount application failed",
			"invoice_id", inv.ID, "rule_id", result.AppliedRule.ID, "error", err)
		return nil
	}

	s.Logger.Infow("discount applied",
		"invoice_id", inv.ID,
		"application_id", application.ID,
		"discount_amount", application.DiscountAmount,
		"experiment_id", experimentID)
	return nil
}

// HandlePaymentCompleted settles the application tied to the completed
// transaction. Re-delivery of the same completion event finds the already
// settled application and no-ops.
func (s *incentiveService) HandlePaymentCompleted(ctx context.Context, event types.PaymentCompletedEvent) error {
	application, err := s.DiscountApplicationRepo.FindByTransaction(ctx, event.TransactionID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		s.Logger.Errorw("application lookup failed on payment completion",
			"transaction_id", event.TransactionID, "error", err)
		return nil
	}

	if application.ApplicationStatus == types.ApplicationStatusPaid {
		return nil
	}
	if application.ApplicationStatus != types.ApplicationStatusApplied &&
		application.ApplicationStatus != types.ApplicationStatusPending {
		s.Logger.Warnw("completed payment references a non-live application",
			"application_id", application.ID,
			"application_status", application.ApplicationStatus)
		return nil
	}

	application.ApplicationStatus = types.ApplicationStatusPaid
	if err := s.DiscountApplicationRepo.Update(ctx, application); err != nil {
		s.Logger.Errorw("failed to settle discount application",
			"application_id", application.ID, "error", err)
		return nil
	}

	// A settled discounted payment is the conversion outcome for the
	// variant the invoice was exposed to.
	if application.ExperimentID != nil && application.VariantID != nil {
		value := application.DiscountAmount
		eventData := map[string]interface{}{}
		if application.DaysBeforeDueDate != nil {
			eventData["days_before_due_date"] = *application.DaysBeforeDueDate
		}
		s.recordConversion(ctx, *application.ExperimentID, *application.VariantID, dto.RecordExperimentEventRequest{
			EventType: types.ExperimentEventConversion,
			VariantID: *application.VariantID,
			Value:     &value,
			EventData: eventData,
		})
	}

	s.Logger.Infow("discount application settled",
		"application_id", application.ID,
		"transaction_id", event.TransactionID)
	return nil
}

func (s *incentiveService) ProcessLateFeeForInvoice(ctx context.Context, inv *invoice.Invoice, referenceDate time.Time) (*latefee_application.LateFeeApplication, bool, error) {
	assignment, err := s.experimentService.GetVariantForInvoice(ctx, inv, types.ExperimentTypeLateFeeStrategy)
	if err != nil {
		s.Logger.Errorw("variant lookup failed, evaluating stored rules only",
			"invoice_id", inv.ID, "error", err)
		assignment = nil
	}

	var result *LateFeeCalculationResult
	var candidateRules []*latefeerule.LateFeeRule
	var experimentID, variantID *string

	if assignment != nil {
		experimentID = &assignment.Experiment.ID
		variantID = &assignment.Variant.ID
		s.recordExperimentEvent(ctx, assignment, types.ExperimentEventExposure, nil)

		overlaid := assignment.Experiment.BuildLateFeeRule(s.defaultLateFeeRule(ctx, assignment.Variant.ID), assignment.Variant)
		candidateRules = []*latefeerule.LateFeeRule{overlaid}
		result = s.lateFeeService.CalculateForInvoice(ctx, inv, candidateRules, referenceDate)
	} else {
		result, err = s.lateFeeService.Calculate(ctx, inv.ID, referenceDate)
		if err != nil {
			return nil, false, err
		}
	}

	if !result.IsApplicable {
		return nil, false, nil
	}

	application, err := s.lateFeeService.Apply(ctx, ApplyLateFeeParams{
		InvoiceID:      inv.ID,
		RuleID:         result.AppliedRule.ID,
		ReferenceDate:  referenceDate,
		CandidateRules: candidateRules,
		ExperimentID:   experimentID,
		VariantID:      variantID,
	})
	if err != nil {
		return nil, false, err
	}

	if assignment != nil {
		value := application.FeeAmount
		s.recordConversion(ctx, assignment.Experiment.ID, assignment.Variant.ID, dto.RecordExperimentEventRequest{
			EventType: types.ExperimentEventConversion,
			VariantID: assignment.Variant.ID,
			Value:     &value,
			EventData: map[string]interface{}{
				"days_overdue": application.DaysOverdue,
			},
		})
	}
	return application, true, nil
}

// recordExperimentEvent records an observation best effort
func (s *incentiveService) recordExperimentEvent(ctx context.Context, assignment *VariantAssignment, eventType string, value *decimal.Decimal) {
	req := dto.RecordExperimentEventRequest{
		EventType: eventType,
		VariantID: assignment.Variant.ID,
		Value:     value,
	}
	if err := s.experimentService.RecordEvent(ctx, assignment.Experiment.ID, req); err != nil {
		s.Logger.Errorw("failed to record experiment event",
			"experiment_id", assignment.Experiment.ID,
			"variant_id", assignment.Variant.ID,
			"event_type", eventType,
			"error", err)
	}
}

func (s *incentiveService) recordConversion(ctx context.Context, experimentID, variantID string, req dto.RecordExperimentEventRequest) {
	if err := s.experimentService.RecordEvent(ctx, experimentID, req); err != nil {
		s.Logger.Errorw("failed to record experiment conversion",
			"experiment_id", experimentID,
			"variant_id", variantID,
			"error", err)
	}
}

// defaultDiscountRule is the base the variant configuration overlays. The
// ephemeral rule carries the variant id so applications trace back to the
// arm that produced them; it is never persisted.
func (s *incentiveService) defaultDiscountRule(ctx context.Context, variantID string) *discountrule.DiscountRule {
	return &discountrule.DiscountRule{
		ID:                     variantID,
		Name:                   "experiment variant rule",
		DiscountType:           types.DiscountTypePercentage,
		DiscountValue:          decimal.Zero,
		TriggerType:            types.DiscountTriggerEarlyPayment,
		RuleStatus:             types.RuleStatusActive,
		IsEnabled:              true,
		IsAutomaticallyApplied: true,
		BaseModel:              types.GetDefaultBaseModel(ctx),
	}
}

func (s *incentiveService) defaultLateFeeRule(ctx context.Context, variantID string) *latefeerule.LateFeeRule {
	return &latefeerule.LateFeeRule{
		ID:         variantID,
		Name:       "experiment variant rule",
		FeeType:    types.LateFeeTypePercentage,
		FeeValue:   decimal.Zero,
		Frequency:  types.LateFeeFrequencyOneTime,
		RuleStatus: types.RuleStatusActive,
		IsEnabled:  true,
		BaseModel:  types.GetDefaultBaseModel(ctx),
	}
}
