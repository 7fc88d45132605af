package service

import (
	"testing"

	"github.com/recivo/recivo/internal/api/dto"
	"github.com/recivo/recivo/internal/domain/experiment"
	"github.com/recivo/recivo/internal/domain/invoice"
	"github.com/recivo/recivo/internal/testutil"
	"github.com/recivo/recivo/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type ExperimentServiceSuite struct {
	testutil.BaseServiceTestSuite
	service ExperimentService
}

func TestExperimentService(t *testing.T) {
	suite.Run(t, new(ExperimentServiceSuite))
}

func (s *ExperimentServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewExperimentService(testServiceParams(&s.BaseServiceTestSuite))
}

func (s *ExperimentServiceSuite) createRequest() dto.CreateExperimentRequest {
	return dto.CreateExperimentRequest{
		Name:           "discount depth test",
		ExperimentType: types.ExperimentTypeDiscountStrategy,
		Variants: []dto.CreateVariantRequest{
			{Name: "control", TrafficAllocation: 50},
			{Name: "treatment", TrafficAllocation: 50},
		},
		Metrics: experiment.Metrics{Primary: types.ExperimentEventConversion},
	}
}

func (s *ExperimentServiceSuite) createActiveExperiment() *dto.ExperimentResponse {
	created, err := s.service.CreateExperiment(s.GetContext(), s.createRequest())
	s.NoError(err)
	started, err := s.service.StartExperiment(s.GetContext(), created.ID)
	s.NoError(err)
	return started
}

func (s *ExperimentServiceSuite) TestCreateExperiment() {
	resp, err := s.service.CreateExperiment(s.GetContext(), s.createRequest())
	s.NoError(err)
	s.Equal(types.ExperimentStatusDraft, resp.ExperimentStatus)
	s.Len(resp.Variants, 2)
	s.NotEmpty(resp.Variants[0].ID)
}

func (s *ExperimentServiceSuite) TestCreateExperimentAllocationMustSumTo100() {
	req := s.createRequest()
	req.Variants[1].TrafficAllocation = 40

	_, err := s.service.CreateExperiment(s.GetContext(), req)
	s.Error(err)
}

func (s *ExperimentServiceSuite) TestLifecycleTransitions() {
	created, err := s.service.CreateExperiment(s.GetContext(), s.createRequest())
	s.NoError(err)

	// draft cannot pause
	_, err = s.service.PauseExperiment(s.GetContext(), created.ID)
	s.Error(err)

	started, err := s.service.StartExperiment(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(types.ExperimentStatusActive, started.ExperimentStatus)
	s.NotNil(started.StartDate)

	// active cannot archive
	_, err = s.service.ArchiveExperiment(s.GetContext(), created.ID)
	s.Error(err)

	paused, err := s.service.PauseExperiment(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(types.ExperimentStatusPaused, paused.ExperimentStatus)

	resumed, err := s.service.StartExperiment(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(types.ExperimentStatusActive, resumed.ExperimentStatus)

	completed, err := s.service.CompleteExperiment(s.GetContext(), created.ID, nil)
	s.NoError(err)
	s.Equal(types.ExperimentStatusCompleted, completed.ExperimentStatus)
	s.NotNil(completed.EndDate)

	// completed cannot restart
	_, err = s.service.StartExperiment(s.GetContext(), created.ID)
	s.Error(err)

	archived, err := s.service.ArchiveExperiment(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(types.ExperimentStatusArchived, archived.ExperimentStatus)
}

func (s *ExperimentServiceSuite) TestStartDateRefreshesOnEveryActivation() {
	started := s.createActiveExperiment()
	s.NotNil(started.StartDate)
	firstStart := *started.StartDate

	_, err := s.service.PauseExperiment(s.GetContext(), started.ID)
	s.NoError(err)

	resumed, err := s.service.StartExperiment(s.GetContext(), started.ID)
	s.NoError(err)
	s.NotNil(resumed.StartDate)
	s.True(resumed.StartDate.After(firstStart))
}

func (s *ExperimentServiceSuite) TestPausedExperimentLeavesAssignmentPool() {
	exp := s.createActiveExperiment()
	inv := &invoice.Invoice{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		CustomerID:    "cust_1",
		Currency:      "USD",
		TotalAmount:   decimal.NewFromInt(1000),
		PaymentStatus: types.InvoicePaymentStatusPending,
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	}

	assignment, err := s.service.GetVariantForInvoice(s.GetContext(), inv, types.ExperimentTypeDiscountStrategy)
	s.NoError(err)
	s.NotNil(assignment)
	s.Equal(exp.ID, assignment.Experiment.ID)

	// pausing must evict the cached active list, not just the stored row
	_, err = s.service.PauseExperiment(s.GetContext(), exp.ID)
	s.NoError(err)

	assignment, err = s.service.GetVariantForInvoice(s.GetContext(), inv, types.ExperimentTypeDiscountStrategy)
	s.NoError(err)
	s.Nil(assignment)
}

func (s *ExperimentServiceSuite) TestActiveExperimentFieldsAreLocked() {
	exp := s.createActiveExperiment()

	_, err := s.service.UpdateExperiment(s.GetContext(), exp.ID, dto.UpdateExperimentRequest{
		Variants: []dto.CreateVariantRequest{
			{Name: "control", TrafficAllocation: 30},
			{Name: "treatment", TrafficAllocation: 70},
		},
	})
	s.Error(err)

	_, err = s.service.UpdateExperiment(s.GetContext(), exp.ID, dto.UpdateExperimentRequest{
		Name: lo.ToPtr("renamed"),
	})
	s.Error(err)

	// status-only updates stay allowed while active
	updated, err := s.service.UpdateExperiment(s.GetContext(), exp.ID, dto.UpdateExperimentRequest{
		ExperimentStatus: lo.ToPtr(types.ExperimentStatusPaused),
	})
	s.NoError(err)
	s.Equal(types.ExperimentStatusPaused, updated.ExperimentStatus)
}

func (s *ExperimentServiceSuite) TestUpdateDraftExperiment() {
	created, err := s.service.CreateExperiment(s.GetContext(), s.createRequest())
	s.NoError(err)

	updated, err := s.service.UpdateExperiment(s.GetContext(), created.ID, dto.UpdateExperimentRequest{
		Name: lo.ToPtr("renamed"),
		Variants: []dto.CreateVariantRequest{
			{Name: "control", TrafficAllocation: 25},
			{Name: "treatment", TrafficAllocation: 75},
		},
	})
	s.NoError(err)
	s.Equal("renamed", updated.Name)
	s.Equal(75.0, updated.Variants[1].TrafficAllocation)
}

func (s *ExperimentServiceSuite) TestRecordEventAndResults() {
	exp := s.createActiveExperiment()
	variantA := exp.Variants[0].ID

	for _, v := range []int64{10, 20, 30} {
		value := decimal.NewFromInt(v)
		err := s.service.RecordEvent(s.GetContext(), exp.ID, dto.RecordExperimentEventRequest{
			EventType: types.ExperimentEventConversion,
			VariantID: variantA,
			Value:     &value,
		})
		s.NoError(err)
	}

	results, err := s.service.GetResults(s.GetContext(), exp.ID)
	s.NoError(err)
	s.Len(results.Results, 1)
	s.Equal(int64(3), results.Results[0].Count)
	s.True(results.Results[0].Sum.Equal(decimal.NewFromInt(60)))
	s.True(results.Results[0].Mean.Equal(decimal.NewFromInt(20)))

	events := s.GetWebhookPublisher().EventsByName(types.WebhookEventExperimentDataRecorded)
	s.Len(events, 3)
}

func (s *ExperimentServiceSuite) TestRecordEventUnknownVariant() {
	exp := s.createActiveExperiment()

	err := s.service.RecordEvent(s.GetContext(), exp.ID, dto.RecordExperimentEventRequest{
		EventType: types.ExperimentEventConversion,
		VariantID: "var_bogus",
	})
	s.Error(err)
}

func (s *ExperimentServiceSuite) TestRecordEventOnNonActiveExperimentDropped() {
	created, err := s.service.CreateExperiment(s.GetContext(), s.createRequest())
	s.NoError(err)

	// dropped with a warning, not an error
	err = s.service.RecordEvent(s.GetContext(), created.ID, dto.RecordExperimentEventRequest{
		EventType: types.ExperimentEventConversion,
		VariantID: created.Variants[0].ID,
	})
	s.NoError(err)

	results, err := s.service.GetResults(s.GetContext(), created.ID)
	s.NoError(err)
	s.Empty(results.Results)
}

func (s *ExperimentServiceSuite) recordConversionSum(experimentID, variantID string, total int64) {
	value := decimal.NewFromInt(total)
	err := s.service.RecordEvent(s.GetContext(), experimentID, dto.RecordExperimentEventRequest{
		EventType: types.ExperimentEventConversion,
		VariantID: variantID,
		Value:     &value,
	})
	s.NoError(err)
}

func (s *ExperimentServiceSuite) TestAutomaticWinnerSelection() {
	req := s.createRequest()
	req.IsAutomaticWinnerSelection = true
	created, err := s.service.CreateExperiment(s.GetContext(), req)
	s.NoError(err)
	_, err = s.service.StartExperiment(s.GetContext(), created.ID)
	s.NoError(err)

	variantA := created.Variants[0].ID
	variantB := created.Variants[1].ID
	s.recordConversionSum(created.ID, variantA, 120)
	s.recordConversionSum(created.ID, variantB, 95)

	completed, err := s.service.CompleteExperiment(s.GetContext(), created.ID, nil)
	s.NoError(err)
	s.NotNil(completed.WinnerVariantID)
	s.Equal(variantA, *completed.WinnerVariantID)
}

func (s *ExperimentServiceSuite) TestAutomaticWinnerTieLeavesWinnerUnset() {
	req := s.createRequest()
	req.IsAutomaticWinnerSelection = true
	created, err := s.service.CreateExperiment(s.GetContext(), req)
	s.NoError(err)
	_, err = s.service.StartExperiment(s.GetContext(), created.ID)
	s.NoError(err)

	s.recordConversionSum(created.ID, created.Variants[0].ID, 100)
	s.recordConversionSum(created.ID, created.Variants[1].ID, 100)

	completed, err := s.service.CompleteExperiment(s.GetContext(), created.ID, nil)
	s.NoError(err)
	s.Nil(completed.WinnerVariantID)
}

func (s *ExperimentServiceSuite) TestCompleteWithExplicitWinner() {
	exp := s.createActiveExperiment()
	winner := exp.Variants[1].ID

	completed, err := s.service.CompleteExperiment(s.GetContext(), exp.ID, &winner)
	s.NoError(err)
	s.NotNil(completed.WinnerVariantID)
	s.Equal(winner, *completed.WinnerVariantID)

	// an explicit winner must belong to the experiment
	other := s.createActiveExperiment()
	bogus := "var_bogus"
	_, err = s.service.CompleteExperiment(s.GetContext(), other.ID, &bogus)
	s.Error(err)
}

func (s *ExperimentServiceSuite) TestListExperiments() {
	s.createActiveExperiment()
	_, err := s.service.CreateExperiment(s.GetContext(), s.createRequest())
	s.NoError(err)

	all, err := s.service.ListExperiments(s.GetContext(), &dto.ListExperimentsRequest{})
	s.NoError(err)
	s.Equal(2, all.Total)

	active, err := s.service.ListExperiments(s.GetContext(), &dto.ListExperimentsRequest{
		Status: lo.ToPtr(types.ExperimentStatusActive),
	})
	s.NoError(err)
	s.Equal(1, active.Total)
}
