package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/recivo/recivo/internal/api/dto"
	"github.com/recivo/recivo/internal/domain/experiment"
	"github.com/recivo/recivo/internal/domain/invoice"
	"github.com/recivo/recivo/internal/testutil"
	"github.com/recivo/recivo/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type IncentiveServiceSuite struct {
	testutil.BaseServiceTestSuite
	service           IncentiveService
	discountService   DiscountService
	lateFeeService    LateFeeService
	experimentService ExperimentService
	invoiceRepo       *testutil.InMemoryInvoiceStore
}

func TestIncentiveService(t *testing.T) {
	suite.Run(t, new(IncentiveServiceSuite))
}

func (s *IncentiveServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.invoiceRepo = s.GetStores().InvoiceRepo.(*testutil.InMemoryInvoiceStore)

	params := testServiceParams(&s.BaseServiceTestSuite)
	s.discountService = NewDiscountService(params)
	s.lateFeeService = NewLateFeeService(params)
	s.experimentService = NewExperimentService(params)
	s.service = NewIncentiveService(params, s.discountService, s.lateFeeService, s.experimentService)
}

func (s *IncentiveServiceSuite) seedInvoice(total int64, dueInDays int) *invoice.Invoice {
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

func (s *IncentiveServiceSuite) seedDiscountRule(value int64, daysBeforeDue int, automatic bool) {
	_, err := s.discountService.CreateRule(s.GetContext(), dto.CreateDiscountRuleRequest{
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
}

// startDiscountExperiment creates and starts a discount strategy experiment
// whose variants discount 5% and 10%
func (s *IncentiveServiceSuite) startDiscountExperiment() *dto.ExperimentResponse {
	created, err := s.experimentService.CreateExperiment(s.GetContext(), dto.CreateExperimentRequest{
		Name:           "discount depth",
		ExperimentType: types.ExperimentTypeDiscountStrategy,
		Variants: []dto.CreateVariantRequest{
			{
				Name:              "shallow",
				TrafficAllocation: 50,
				Configuration: experiment.VariantConfiguration{
					DiscountValue: lo.ToPtr(decimal.NewFromInt(5)),
				},
			},
			{
				Name:              "deep",
				TrafficAllocation: 50,
				Configuration: experiment.VariantConfiguration{
					DiscountValue: lo.ToPtr(decimal.NewFromInt(10)),
				},
			},
		},
		Metrics: experiment.Metrics{Primary: types.ExperimentEventConversion},
	})
	s.NoError(err)

	started, err := s.experimentService.StartExperiment(s.GetContext(), created.ID)
	s.NoError(err)
	return started
}

func (s *IncentiveServiceSuite) TestHandlePaymentProcessingAppliesAutomaticDiscount() {
	inv := s.seedInvoice(1000, 10)
	s.seedDiscountRule(10, 5, true)

	err := s.service.HandlePaymentProcessing(s.GetContext(), types.PaymentProcessingEvent{
		InvoiceID:     inv.ID,
		TransactionID: "txn_1",
		PaymentDate:   time.Now().UTC(),
	})
	s.NoError(err)

	application, err := s.GetStores().DiscountApplicationRepo.FindApplied(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(application.DiscountAmount.Equal(decimal.NewFromInt(100)))
	s.NotNil(application.TransactionID)
	s.Equal("txn_1", *application.TransactionID)
	s.Nil(application.ExperimentID)

	stored, err := s.invoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(stored.AmountDue.Equal(decimal.NewFromInt(900)))
}

func (s *IncentiveServiceSuite) TestHandlePaymentProcessingSkipsManualRule() {
	inv := s.seedInvoice(1000, 10)
	s.seedDiscountRule(10, 5, false)

	err := s.service.HandlePaymentProcessing(s.GetContext(), types.PaymentProcessingEvent{
		InvoiceID:     inv.ID,
		TransactionID: "txn_1",
		PaymentDate:   time.Now().UTC(),
	})
	s.NoError(err)

	_, err = s.GetStores().DiscountApplicationRepo.FindApplied(s.GetContext(), inv.ID)
	s.Error(err)

	stored, err := s.invoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(stored.AmountDue.Equal(decimal.NewFromInt(1000)))
}

func (s *IncentiveServiceSuite) TestHandlePaymentProcessingMissingInvoiceIsIsolated() {
	err := s.service.HandlePaymentProcessing(s.GetContext(), types.PaymentProcessingEvent{
		InvoiceID:     "inv_missing",
		TransactionID: "txn_1",
		PaymentDate:   time.Now().UTC(),
	})
	s.NoError(err)
}

func (s *IncentiveServiceSuite) TestHandlePaymentProcessingWithExperiment() {
	inv := s.seedInvoice(1000, 10)
	exp := s.startDiscountExperiment()

	err := s.service.HandlePaymentProcessing(s.GetContext(), types.PaymentProcessingEvent{
		InvoiceID:     inv.ID,
		TransactionID: "txn_1",
		PaymentDate:   time.Now().UTC(),
	})
	s.NoError(err)

	application, err := s.GetStores().DiscountApplicationRepo.FindApplied(s.GetContext(), inv.ID)
	s.NoError(err)
	s.NotNil(application.ExperimentID)
	s.Equal(exp.ID, *application.ExperimentID)
	s.NotNil(application.VariantID)

	variant := exp.Variant(*application.VariantID)
	s.NotNil(variant)
	expectedDiscount := decimal.NewFromInt(1000).Mul(*variant.Configuration.DiscountValue).Div(decimal.NewFromInt(100))
	s.True(application.DiscountAmount.Equal(expectedDiscount))

	// the exposure is recorded against the assigned variant
	results, err := s.experimentService.GetResults(s.GetContext(), exp.ID)
	s.NoError(err)
	exposures := int64(0)
	for _, res := range results.Results {
		if res.EventType == types.ExperimentEventExposure && res.VariantID == *application.VariantID {
			exposures = res.Count
		}
	}
	s.Equal(int64(1), exposures)
}

func (s *IncentiveServiceSuite) TestHandlePaymentCompletedSettlesAndRecordsConversion() {
	inv := s.seedInvoice(1000, 10)
	exp := s.startDiscountExperiment()

	err := s.service.HandlePaymentProcessing(s.GetContext(), types.PaymentProcessingEvent{
		InvoiceID:     inv.ID,
		TransactionID: "txn_1",
		PaymentDate:   time.Now().UTC(),
	})
	s.NoError(err)

	err = s.service.HandlePaymentCompleted(s.GetContext(), types.PaymentCompletedEvent{
		InvoiceID:     inv.ID,
		TransactionID: "txn_1",
	})
	s.NoError(err)

	application, err := s.GetStores().DiscountApplicationRepo.FindByTransaction(s.GetContext(), "txn_1")
	s.NoError(err)
	s.Equal(types.ApplicationStatusPaid, application.ApplicationStatus)

	results, err := s.experimentService.GetResults(s.GetContext(), exp.ID)
	s.NoError(err)
	conversions := int64(0)
	for _, res := range results.Results {
		if res.EventType == types.ExperimentEventConversion {
			conversions += res.Count
		}
	}
	s.Equal(int64(1), conversions)

	// re-delivery of the completion event is a no-op
	err = s.service.HandlePaymentCompleted(s.GetContext(), types.PaymentCompletedEvent{
		InvoiceID:     inv.ID,
		TransactionID: "txn_1",
	})
	s.NoError(err)

	results, err = s.experimentService.GetResults(s.GetContext(), exp.ID)
	s.NoError(err)
	conversions = 0
	for _, res := range results.Results {
		if res.EventType == types.ExperimentEventConversion {
			conversions += res.Count
		}
	}
	s.Equal(int64(1), conversions)
}

func (s *IncentiveServiceSuite) TestConversionCarriesPaymentLeadTime() {
	inv := s.seedInvoice(1000, 10)
	exp := s.startDiscountExperiment()

	err := s.service.HandlePaymentProcessing(s.GetContext(), types.PaymentProcessingEvent{
		InvoiceID:     inv.ID,
		TransactionID: "txn_1",
		PaymentDate:   time.Now().UTC(),
	})
	s.NoError(err)

	application, err := s.GetStores().DiscountApplicationRepo.FindApplied(s.GetContext(), inv.ID)
	s.NoError(err)
	s.NotNil(application.DaysBeforeDueDate)
	s.Equal(10, *application.DaysBeforeDueDate)

	err = s.service.HandlePaymentCompleted(s.GetContext(), types.PaymentCompletedEvent{
		InvoiceID:     inv.ID,
		TransactionID: "txn_1",
	})
	s.NoError(err)

	// the conversion recorded at settlement carries the lead time captured
	// when the discount was applied
	var conversionData map[string]interface{}
	for _, event := range s.GetWebhookPublisher().EventsByName(types.WebhookEventExperimentDataRecorded) {
		var payload map[string]interface{}
		s.NoError(json.Unmarshal(event.Payload, &payload))
		if payload["event_type"] != types.ExperimentEventConversion {
			continue
		}
		s.Equal(exp.ID, payload["experiment_id"])
		conversionData, _ = payload["event_data"].(map[string]interface{})
	}
	s.NotNil(conversionData)
	s.Equal(float64(10), conversionData["days_before_due_date"])
	s.Contains(conversionData, "value")
}

func (s *IncentiveServiceSuite) TestHandlePaymentCompletedUnknownTransaction() {
	err := s.service.HandlePaymentCompleted(s.GetContext(), types.PaymentCompletedEvent{
		InvoiceID:     "inv_1",
		TransactionID: "txn_unknown",
	})
	s.NoError(err)
}

func (s *IncentiveServiceSuite) TestProcessLateFeeForInvoice() {
	reference := time.Now().UTC()
	due := reference.AddDate(0, 0, -7).Add(-time.Hour)
	inv := &invoice.Invoice{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		CustomerID:    "cust_1",
		CustomerType:  types.CustomerTypeBusiness,
		Currency:      "USD",
		Subtotal:      decimal.NewFromInt(1000),
		TotalAmount:   decimal.NewFromInt(1000),
		AmountDue:     decimal.NewFromInt(1000),
		PaymentStatus: types.InvoicePaymentStatusPending,
		DueDate:       &due,
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.invoiceRepo.CreateInvoice(s.GetContext(), inv))

	_, err := s.lateFeeService.CreateRule(s.GetContext(), dto.CreateLateFeeRuleRequest{
		Name:            "daily fee",
		FeeType:         types.LateFeeTypeFixedAmount,
		FeeValue:        decimal.NewFromInt(10),
		Frequency:       types.LateFeeFrequencyDaily,
		GracePeriodDays: 2,
	})
	s.NoError(err)

	application, applied, err := s.service.ProcessLateFeeForInvoice(s.GetContext(), inv, reference)
	s.NoError(err)
	s.True(applied)
	s.True(application.FeeAmount.Equal(decimal.NewFromInt(50)))

	after, err := s.invoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(after.AmountDue.Equal(decimal.NewFromInt(1050)))
}
