package service

import (
	"testing"
	"time"

	"github.com/recivo/recivo/internal/api/dto"
	"github.com/recivo/recivo/internal/domain/invoice"
	"github.com/recivo/recivo/internal/testutil"
	"github.com/recivo/recivo/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type LateFeeServiceSuite struct {
	testutil.BaseServiceTestSuite
	service     LateFeeService
	invoiceRepo *testutil.InMemoryInvoiceStore
}

func TestLateFeeService(t *testing.T) {
	suite.Run(t, new(LateFeeServiceSuite))
}

func (s *LateFeeServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.invoiceRepo = s.GetStores().InvoiceRepo.(*testutil.InMemoryInvoiceStore)
	s.service = NewLateFeeService(testServiceParams(&s.BaseServiceTestSuite))
}

// seedOverdueInvoice creates an invoice that is daysOverdue full days past
// its due date at the returned reference time
func (s *LateFeeServiceSuite) seedOverdueInvoice(total int64, daysOverdue int) (*invoice.Invoice, time.Time) {
	reference := time.Now().UTC()
	due := reference.AddDate(0, 0, -daysOverdue).Add(-time.Hour)
	inv := &invoice.Invoice{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		CustomerID:    "cust_1",
		CustomerType:  types.CustomerTypeBusiness,
		Currency:      "USD",
		Subtotal:      decimal.NewFromInt(total),
		TotalAmount:   decimal.NewFromInt(total),
		AmountDue:     decimal.NewFromInt(total),
		PaymentStatus: types.InvoicePaymentStatusPending,
		DueDate:       &due,
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.invoiceRepo.CreateInvoice(s.GetContext(), inv))
	return inv, reference
}

func (s *LateFeeServiceSuite) seedRule(req dto.CreateLateFeeRuleRequest) *dto.LateFeeRuleResponse {
	resp, err := s.service.CreateRule(s.GetContext(), req)
	s.NoError(err)
	return resp
}

func (s *LateFeeServiceSuite) TestOneTimeFixedFee() {
	inv, reference := s.seedOverdueInvoice(1000, 5)
	s.seedRule(dto.CreateLateFeeRuleRequest{
		Name:      "one time fee",
		FeeType:   types.LateFeeTypeFixedAmount,
		FeeValue:  decimal.NewFromInt(100),
		Frequency: types.LateFeeFrequencyOneTime,
	})

	result, err := s.service.Calculate(s.GetContext(), inv.ID, reference)
	s.NoError(err)
	s.True(result.IsApplicable)
	s.Equal(5, result.DaysOverdue)
	// a one time fee does not multiply with the days overdue
	s.True(result.FeeAmount.Equal(decimal.NewFromInt(100)))
	s.True(result.TotalAmount.Equal(decimal.NewFromInt(1100)))
}

func (s *LateFeeServiceSuite) TestDailyFixedFeeAfterGracePeriod() {
	inv, reference := s.seedOverdueInvoice(1000, 7)
	s.seedRule(dto.CreateLateFeeRuleRequest{
		Name:            "daily fee",
		FeeType:         types.LateFeeTypeFixedAmount,
		FeeValue:        decimal.NewFromInt(10),
		Frequency:       types.LateFeeFrequencyDaily,
		GracePeriodDays: 2,
	})

	result, err := s.service.Calculate(s.GetContext(), inv.ID, reference)
	s.NoError(err)
	s.True(result.IsApplicable)
	// 7 days overdue minus 2 grace days accrues 5 daily periods
	s.True(result.FeeAmount.Equal(decimal.NewFromInt(50)))
}

func (s *LateFeeServiceSuite) TestWithinGracePeriodNotApplicable() {
	inv, reference := s.seedOverdueInvoice(1000, 2)
	s.seedRule(dto.CreateLateFeeRuleRequest{
		Name:            "daily fee",
		FeeType:         types.LateFeeTypeFixedAmount,
		FeeValue:        decimal.NewFromInt(10),
		Frequency:       types.LateFeeFrequencyDaily,
		GracePeriodDays: 3,
	})

	result, err := s.service.Calculate(s.GetContext(), inv.ID, reference)
	s.NoError(err)
	s.False(result.IsApplicable)
	s.True(result.TotalAmount.Equal(decimal.NewFromInt(1000)))
}

func (s *LateFeeServiceSuite) TestCompoundPercentageFee() {
	inv, reference := s.seedOverdueInvoice(1000, 10)
	s.seedRule(dto.CreateLateFeeRuleRequest{
		Name:      "compound fee",
		FeeType:   types.LateFeeTypeCompoundPercentage,
		FeeValue:  decimal.NewFromInt(1),
		Frequency: types.LateFeeFrequencyDaily,
	})

	result, err := s.service.Calculate(s.GetContext(), inv.ID, reference)
	s.NoError(err)
	s.True(result.IsApplicable)
	// 1000 * 1.01^10 - 1000
	s.Equal("104.62", result.FeeAmount.Round(2).String())
}

func (s *LateFeeServiceSuite) TestMaximumFeeAmountCap() {
	inv, reference := s.seedOverdueInvoice(1000, 7)
	maxFee := decimal.NewFromInt(40)
	s.seedRule(dto.CreateLateFeeRuleRequest{
		Name:             "capped daily fee",
		FeeType:          types.LateFeeTypeFixedAmount,
		FeeValue:         decimal.NewFromInt(10),
		Frequency:        types.LateFeeFrequencyDaily,
		GracePeriodDays:  2,
		MaximumFeeAmount: &maxFee,
	})

	result, err := s.service.Calculate(s.GetContext(), inv.ID, reference)
	s.NoError(err)
	s.True(result.IsApplicable)
	s.True(result.FeeAmount.Equal(maxFee))
}

func (s *LateFeeServiceSuite) TestMaximumFeePercentageCap() {
	inv, reference := s.seedOverdueInvoice(1000, 30)
	maxPct := decimal.NewFromInt(2)
	s.seedRule(dto.CreateLateFeeRuleRequest{
		Name:                 "percentage capped fee",
		FeeType:              types.LateFeeTypeFixedAmount,
		FeeValue:             decimal.NewFromInt(10),
		Frequency:            types.LateFeeFrequencyDaily,
		MaximumFeePercentage: &maxPct,
	})

	result, err := s.service.Calculate(s.GetContext(), inv.ID, reference)
	s.NoError(err)
	s.True(result.IsApplicable)
	// 2% of 1000 caps the accrued 300
	s.True(result.FeeAmount.Equal(decimal.NewFromInt(20)))
}

func (s *LateFeeServiceSuite) TestApplyUpdatesAmountDue() {
	inv, reference := s.seedOverdueInvoice(1000, 7)
	rule := s.seedRule(dto.CreateLateFeeRuleRequest{
		Name:            "daily fee",
		FeeType:         types.LateFeeTypeFixedAmount,
		FeeValue:        decimal.NewFromInt(10),
		Frequency:       types.LateFeeFrequencyDaily,
		GracePeriodDays: 2,
	})

	application, err := s.service.Apply(s.GetContext(), ApplyLateFeeParams{
		InvoiceID:     inv.ID,
		RuleID:        rule.ID,
		ReferenceDate: reference,
	})
	s.NoError(err)
	s.Equal(types.ApplicationStatusApplied, application.ApplicationStatus)
	s.Equal(7, application.DaysOverdue)
	s.True(application.FeeAmount.Equal(decimal.NewFromInt(50)))

	stored, err := s.invoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(stored.AmountDue.Equal(decimal.NewFromInt(1050)))

	events := s.GetWebhookPublisher().EventsByName(types.WebhookEventLateFeeApplied)
	s.Len(events, 1)
}

func (s *LateFeeServiceSuite) TestApplyIdempotentWithinSameDay() {
	inv, reference := s.seedOverdueInvoice(1000, 7)
	rule := s.seedRule(dto.CreateLateFeeRuleRequest{
		Name:            "daily fee",
		FeeType:         types.LateFeeTypeFixedAmount,
		FeeValue:        decimal.NewFromInt(10),
		Frequency:       types.LateFeeFrequencyDaily,
		GracePeriodDays: 2,
	})

	first, err := s.service.Apply(s.GetContext(), ApplyLateFeeParams{
		InvoiceID:     inv.ID,
		RuleID:        rule.ID,
		ReferenceDate: reference,
	})
	s.NoError(err)

	second, err := s.service.Apply(s.GetContext(), ApplyLateFeeParams{
		InvoiceID:     inv.ID,
		RuleID:        rule.ID,
		ReferenceDate: reference,
	})
	s.NoError(err)
	s.Equal(first.ID, second.ID)

	// the fee is charged exactly once
	stored, err := s.invoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(stored.AmountDue.Equal(decimal.NewFromInt(1050)))
}

func (s *LateFeeServiceSuite) TestApplySupersedesPriorFee() {
	inv, reference := s.seedOverdueInvoice(1000, 7)
	rule := s.seedRule(dto.CreateLateFeeRuleRequest{
		Name:            "daily fee",
		FeeType:         types.LateFeeTypeFixedAmount,
		FeeValue:        decimal.NewFromInt(10),
		Frequency:       types.LateFeeFrequencyDaily,
		GracePeriodDays: 2,
	})

	first, err := s.service.Apply(s.GetContext(), ApplyLateFeeParams{
		InvoiceID:     inv.ID,
		RuleID:        rule.ID,
		ReferenceDate: reference,
	})
	s.NoError(err)
	s.True(first.FeeAmount.Equal(decimal.NewFromInt(50)))

	// a day later the accrual grows and replaces the prior application
	second, err := s.service.Apply(s.GetContext(), ApplyLateFeeParams{
		InvoiceID:     inv.ID,
		RuleID:        rule.ID,
		ReferenceDate: reference.AddDate(0, 0, 1),
	})
	s.NoError(err)
	s.NotEqual(first.ID, second.ID)
	s.True(second.FeeAmount.Equal(decimal.NewFromInt(60)))

	appRepo := s.GetStores().LateFeeApplicationRepo
	applied, err := appRepo.FindApplied(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(second.ID, applied.ID)

	// the prior fee is backed out, so only the current accrual is owed
	stored, err := s.invoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(stored.AmountDue.Equal(decimal.NewFromInt(1060)))
}

func (s *LateFeeServiceSuite) TestWaive() {
	inv, reference := s.seedOverdueInvoice(1000, 7)
	rule := s.seedRule(dto.CreateLateFeeRuleRequest{
		Name:            "daily fee",
		FeeType:         types.LateFeeTypeFixedAmount,
		FeeValue:        decimal.NewFromInt(10),
		Frequency:       types.LateFeeFrequencyDaily,
		GracePeriodDays: 2,
	})

	application, err := s.service.Apply(s.GetContext(), ApplyLateFeeParams{
		InvoiceID:     inv.ID,
		RuleID:        rule.ID,
		ReferenceDate: reference,
	})
	s.NoError(err)

	waived, err := s.service.Waive(s.GetContext(), application.ID, dto.WaiveLateFeeRequest{
		Reason:   "customer goodwill",
		WaivedBy: "user_ops",
	})
	s.NoError(err)
	s.Equal(types.ApplicationStatusWaived, waived.ApplicationStatus)
	s.NotNil(waived.WaivedAt)
	s.NotNil(waived.WaiverReference)

	// the fee is reversed on the invoice
	stored, err := s.invoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(stored.AmountDue.Equal(decimal.NewFromInt(1000)))

	events := s.GetWebhookPublisher().EventsByName(types.WebhookEventLateFeeWaived)
	s.Len(events, 1)

	// waiving twice is rejected
	_, err = s.service.Waive(s.GetContext(), application.ID, dto.WaiveLateFeeRequest{
		Reason:   "again",
		WaivedBy: "user_ops",
	})
	s.Error(err)
}

func (s *LateFeeServiceSuite) TestPaidInvoiceNeverApplicable() {
	inv, reference := s.seedOverdueInvoice(1000, 7)
	s.seedRule(dto.CreateLateFeeRuleRequest{
		Name:      "one time fee",
		FeeType:   types.LateFeeTypeFixedAmount,
		FeeValue:  decimal.NewFromInt(100),
		Frequency: types.LateFeeFrequencyOneTime,
	})
	s.NoError(s.invoiceRepo.MarkPaid(s.GetContext(), inv.ID))

	result, err := s.service.Calculate(s.GetContext(), inv.ID, reference)
	s.NoError(err)
	s.False(result.IsApplicable)
}
