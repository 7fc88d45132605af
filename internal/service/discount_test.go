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

// testServiceParams assembles ServiceParams over the in-memory stores
func testServiceParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	stores := s.GetStores()
	return NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetDB(),
		stores.InvoiceRepo,
		stores.DiscountRuleRepo,
		stores.LateFeeRuleRepo,
		stores.DiscountApplicationRepo,
		stores.LateFeeApplicationRepo,
		stores.ExperimentRepo,
		s.GetWebhookPublisher(),
	)
}

type DiscountServiceSuite struct {
	testutil.BaseServiceTestSuite
	service     DiscountService
	invoiceRepo *testutil.InMemoryInvoiceStore
}

func TestDiscountService(t *testing.T) {
	suite.Run(t, new(DiscountServiceSuite))
}

func (s *DiscountServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.invoiceRepo = s.GetStores().InvoiceRepo.(*testutil.InMemoryInvoiceStore)
	s.service = NewDiscountService(testServiceParams(&s.BaseServiceTestSuite))
}

func (s *DiscountServiceSuite) seedInvoice(total int64, dueInDays int) *invoice.Invoice {
	due := time.Now().UTC().AddDate(0, 0, dueInDays)
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
	return inv
}

func (s *DiscountServiceSuite) seedRule(value int64, daysBeforeDue int, automatic bool) *dto.DiscountRuleResponse {
	resp, err := s.service.CreateRule(s.GetContext(), dto.CreateDiscountRuleRequest{
		Name:          "early payment discount",
		DiscountType:  types.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(value),
		TriggerType:   types.DiscountTriggerEarlyPayment,
		TriggerConditions: types.TriggerConditions{
			DaysBeforeDueDate: &daysBeforeDue,
		},
		IsAutomaticallyApplied: automatic,
	})
	s.NoError(err)
	return resp
}

func (s *DiscountServiceSuite) TestCreateRuleValidation() {
	_, err := s.service.CreateRule(s.GetContext(), dto.CreateDiscountRuleRequest{
		Name:          "negative value",
		DiscountType:  types.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(-5),
		TriggerType:   types.DiscountTriggerEarlyPayment,
	})
	s.Error(err)

	_, err = s.service.CreateRule(s.GetContext(), dto.CreateDiscountRuleRequest{
		Name:          "over 100 percent",
		DiscountType:  types.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(150),
		TriggerType:   types.DiscountTriggerEarlyPayment,
	})
	s.Error(err)
}

func (s *DiscountServiceSuite) TestCalculateEligible() {
	inv := s.seedInvoice(1000, 10)
	s.seedRule(10, 5, true)

	paymentDate := time.Now().UTC()
	result, err := s.service.Calculate(s.GetContext(), inv.ID, paymentDate)
	s.NoError(err)
	s.True(result.IsEligible)
	s.True(result.DiscountAmount.Equal(decimal.NewFromInt(100)))
	s.True(result.DiscountedAmount.Equal(decimal.NewFromInt(900)))

	// calculation has no side effects: re-running yields the same outcome
	// and the invoice is untouched
	again, err := s.service.Calculate(s.GetContext(), inv.ID, paymentDate)
	s.NoError(err)
	s.True(again.DiscountAmount.Equal(result.DiscountAmount))

	stored, err := s.invoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(stored.AmountDue.Equal(decimal.NewFromInt(1000)))
}

func (s *DiscountServiceSuite) TestCalculateInsufficientLeadTime() {
	inv := s.seedInvoice(1000, 2)
	s.seedRule(10, 5, true)

	result, err := s.service.Calculate(s.GetContext(), inv.ID, time.Now().UTC())
	s.NoError(err)
	s.False(result.IsEligible)
	s.True(result.DiscountedAmount.Equal(decimal.NewFromInt(1000)))
}

func (s *DiscountServiceSuite) TestCalculatePaidInvoiceNeverEligible() {
	inv := s.seedInvoice(1000, 10)
	s.seedRule(10, 5, true)
	s.NoError(s.invoiceRepo.MarkPaid(s.GetContext(), inv.ID))

	result, err := s.service.Calculate(s.GetContext(), inv.ID, time.Now().UTC())
	s.NoError(err)
	s.False(result.IsEligible)
}

func (s *DiscountServiceSuite) TestFixedDiscountClampedToTotal() {
	inv := s.seedInvoice(50, 10)
	resp, err := s.service.CreateRule(s.GetContext(), dto.CreateDiscountRuleRequest{
		Name:          "big fixed discount",
		DiscountType:  types.DiscountTypeFixed,
		DiscountValue: decimal.NewFromInt(200),
		TriggerType:   types.DiscountTriggerEarlyPayment,
	})
	s.NoError(err)
	_ = resp

	result, err := s.service.Calculate(s.GetContext(), inv.ID, time.Now().UTC())
	s.NoError(err)
	s.True(result.IsEligible)
	s.True(result.DiscountAmount.Equal(decimal.NewFromInt(50)))
	s.True(result.DiscountedAmount.IsZero())
}

func (s *DiscountServiceSuite) TestApply() {
	inv := s.seedInvoice(1000, 10)
	rule := s.seedRule(10, 5, true)

	txID := "txn_1"
	application, err := s.service.Apply(s.GetContext(), ApplyDiscountParams{
		InvoiceID:     inv.ID,
		RuleID:        rule.ID,
		PaymentDate:   time.Now().UTC(),
		TransactionID: &txID,
	})
	s.NoError(err)
	s.Equal(types.ApplicationStatusApplied, application.ApplicationStatus)
	s.True(application.DiscountAmount.Equal(decimal.NewFromInt(100)))
	s.NotNil(application.IdempotencyKey)

	stored, err := s.invoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(stored.AmountDue.Equal(decimal.NewFromInt(900)))

	events := s.GetWebhookPublisher().EventsByName(types.WebhookEventDiscountApplied)
	s.Len(events, 1)
}

func (s *DiscountServiceSuite) TestApplyRejectsNonWinningRule() {
	inv := s.seedInvoice(1000, 2)
	rule := s.seedRule(10, 5, true)

	_, err := s.service.Apply(s.GetContext(), ApplyDiscountParams{
		InvoiceID:   inv.ID,
		RuleID:      rule.ID,
		PaymentDate: time.Now().UTC(),
	})
	s.Error(err)

	stored, err := s.invoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(stored.AmountDue.Equal(decimal.NewFromInt(1000)))
}

func (s *DiscountServiceSuite) TestApplySupersedesPriorApplication() {
	inv := s.seedInvoice(1000, 10)
	rule := s.seedRule(10, 5, true)

	txA := "txn_a"
	first, err := s.service.Apply(s.GetContext(), ApplyDiscountParams{
		InvoiceID:     inv.ID,
		RuleID:        rule.ID,
		PaymentDate:   time.Now().UTC(),
		TransactionID: &txA,
	})
	s.NoError(err)

	txB := "txn_b"
	second, err := s.service.Apply(s.GetContext(), ApplyDiscountParams{
		InvoiceID:     inv.ID,
		RuleID:        rule.ID,
		PaymentDate:   time.Now().UTC(),
		TransactionID: &txB,
	})
	s.NoError(err)
	s.NotEqual(first.ID, second.ID)

	appRepo := s.GetStores().DiscountApplicationRepo
	applied, err := appRepo.FindApplied(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(second.ID, applied.ID)

	all, err := appRepo.GetByInvoice(s.GetContext(), inv.ID)
	s.NoError(err)
	liveCount := 0
	for _, app := range all {
		if app.IsApplied() {
			liveCount++
		}
	}
	s.Equal(1, liveCount)

	stored, err := s.invoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(stored.AmountDue.Equal(decimal.NewFromInt(900)))
}

func (s *DiscountServiceSuite) TestRulePriorityOrder() {
	inv := s.seedInvoice(1000, 10)

	_, err := s.service.CreateRule(s.GetContext(), dto.CreateDiscountRuleRequest{
		Name:          "low priority",
		DiscountType:  types.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(5),
		TriggerType:   types.DiscountTriggerEarlyPayment,
		Priority:      1,
	})
	s.NoError(err)
	high, err := s.service.CreateRule(s.GetContext(), dto.CreateDiscountRuleRequest{
		Name:          "high priority",
		DiscountType:  types.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
		TriggerType:   types.DiscountTriggerEarlyPayment,
		Priority:      10,
	})
	s.NoError(err)

	result, err := s.service.Calculate(s.GetContext(), inv.ID, time.Now().UTC())
	s.NoError(err)
	s.True(result.IsEligible)
	s.Equal(high.ID, result.AppliedRule.ID)
}

func (s *DiscountServiceSuite) TestDeleteRuleRemovesItFromEvaluation() {
	inv := s.seedInvoice(1000, 10)
	rule := s.seedRule(10, 5, true)

	s.NoError(s.service.DeleteRule(s.GetContext(), rule.ID))

	result, err := s.service.Calculate(s.GetContext(), inv.ID, time.Now().UTC())
	s.NoError(err)
	s.False(result.IsEligible)

	_, err = s.service.GetRule(s.GetContext(), rule.ID)
	s.Error(err)
}
