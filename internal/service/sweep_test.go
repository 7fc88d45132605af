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

type LateFeeSweepSuite struct {
	testutil.BaseServiceTestSuite
	service        LateFeeSweepService
	lateFeeService LateFeeService
	invoiceRepo    *testutil.InMemoryInvoiceStore
}

func TestLateFeeSweepService(t *testing.T) {
	suite.Run(t, new(LateFeeSweepSuite))
}

func (s *LateFeeSweepSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.invoiceRepo = s.GetStores().InvoiceRepo.(*testutil.InMemoryInvoiceStore)

	params := testServiceParams(&s.BaseServiceTestSuite)
	s.lateFeeService = NewLateFeeService(params)
	discountService := NewDiscountService(params)
	experimentService := NewExperimentService(params)
	incentiveService := NewIncentiveService(params, discountService, s.lateFeeService, experimentService)
	s.service = NewLateFeeSweepService(params, incentiveService)
}

func (s *LateFeeSweepSuite) seedTenantInvoice(tenantID string, total int64, daysOverdue int) *invoice.Invoice {
	var due time.Time
	if daysOverdue >= 0 {
		due = time.Now().UTC().AddDate(0, 0, -daysOverdue).Add(-time.Hour)
	} else {
		due = time.Now().UTC().AddDate(0, 0, -daysOverdue)
	}
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
	inv.TenantID = tenantID
	s.NoError(s.invoiceRepo.CreateInvoice(s.GetContext(), inv))
	return inv
}

func (s *LateFeeSweepSuite) seedDailyFeeRule(gracePeriodDays int) {
	_, err := s.lateFeeService.CreateRule(s.GetContext(), dto.CreateLateFeeRuleRequest{
		Name:            "daily fee",
		FeeType:         types.LateFeeTypeFixedAmount,
		FeeValue:        decimal.NewFromInt(10),
		Frequency:       types.LateFeeFrequencyDaily,
		GracePeriodDays: gracePeriodDays,
	})
	s.NoError(err)
}

func (s *LateFeeSweepSuite) TestProcessLateFees() {
	tenant := types.DefaultTenantID
	overdueA := s.seedTenantInvoice(tenant, 1000, 7)
	overdueB := s.seedTenantInvoice(tenant, 2000, 10)
	overdueC := s.seedTenantInvoice(tenant, 500, 5)
	s.seedTenantInvoice(tenant, 800, -5)
	s.seedDailyFeeRule(2)

	result, err := s.service.ProcessLateFees(s.GetContext(), tenant)
	s.NoError(err)
	s.Equal(3, result.Processed)
	s.Equal(3, result.Applied)
	s.Equal(0, result.Skipped)

	for _, tc := range []struct {
		inv *invoice.Invoice
		fee int64
	}{
		{overdueA, 50},
		{overdueB, 80},
		{overdueC, 30},
	} {
		stored, err := s.invoiceRepo.Get(s.GetContext(), tc.inv.ID)
		s.NoError(err)
		s.True(stored.AmountDue.Equal(tc.inv.TotalAmount.Add(decimal.NewFromInt(tc.fee))),
			"invoice %s amount due %s", tc.inv.ID, stored.AmountDue)
	}
}

func (s *LateFeeSweepSuite) TestSweepIsIdempotentWithinTheDay() {
	tenant := types.DefaultTenantID
	inv := s.seedTenantInvoice(tenant, 1000, 7)
	s.seedDailyFeeRule(2)

	_, err := s.service.ProcessLateFees(s.GetContext(), tenant)
	s.NoError(err)

	// a second run the same day finds the existing application and charges
	// nothing further
	_, err = s.service.ProcessLateFees(s.GetContext(), tenant)
	s.NoError(err)

	stored, err := s.invoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(stored.AmountDue.Equal(decimal.NewFromInt(1050)))

	all, err := s.GetStores().LateFeeApplicationRepo.GetByInvoice(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Len(all, 1)
}

func (s *LateFeeSweepSuite) TestInvoicesWithinGraceAreSkipped() {
	tenant := types.DefaultTenantID
	s.seedTenantInvoice(tenant, 1000, 7)
	s.seedTenantInvoice(tenant, 1000, 1)
	s.seedDailyFeeRule(3)

	result, err := s.service.ProcessLateFees(s.GetContext(), tenant)
	s.NoError(err)
	s.Equal(2, result.Processed)
	s.Equal(1, result.Applied)
	s.Equal(1, result.Skipped)
}

func (s *LateFeeSweepSuite) TestProcessAllTenants() {
	tenant := types.DefaultTenantID
	inv := s.seedTenantInvoice(tenant, 1000, 7)
	// the other tenant has overdue invoices but no rules configured
	other := s.seedTenantInvoice("tenant_other", 1000, 7)
	s.seedDailyFeeRule(2)

	s.NoError(s.service.ProcessAllTenants(s.GetContext()))

	stored, err := s.invoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(stored.AmountDue.Equal(decimal.NewFromInt(1050)))

	otherStored, err := s.invoiceRepo.Get(s.GetContext(), other.ID)
	s.NoError(err)
	s.True(otherStored.AmountDue.Equal(decimal.NewFromInt(1000)))
}
