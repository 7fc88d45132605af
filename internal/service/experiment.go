package service

import (
	"context"
	"time"

	"github.com/recivo/recivo/internal/api/dto"
	"github.com/recivo/recivo/internal/cache"
	"github.com/recivo/recivo/internal/domain/experiment"
	"github.com/recivo/recivo/internal/domain/invoice"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// VariantAssignment couples an experiment with the variant an invoice was
// deterministically assigned to
type VariantAssignment struct {
	Experiment *experiment.Experiment
	Variant    *experiment.Variant
}

type ExperimentService interface {
	CreateExperiment(ctx context.Context, req dto.CreateExperimentRequest) (*dto.ExperimentResponse, error)
	GetExperiment(ctx context.Context, id string) (*dto.ExperimentResponse, error)
	ListExperiments(ctx context.Context, req *dto.ListExperimentsRequest) (*dto.ListExperimentsResponse, error)
	UpdateExperiment(ctx context.Context, id string, req dto.UpdateExperimentRequest) (*dto.ExperimentResponse, error)

	StartExperiment(ctx context.Context, id string) (*dto.ExperimentResponse, error)
	PauseExperiment(ctx context.Context, id string) (*dto.ExperimentResponse, error)
	CompleteExperiment(ctx context.Context, id string, winnerVariantID *string) (*dto.ExperimentResponse, error)
	ArchiveExperiment(ctx context.Context, id string) (*dto.ExperimentResponse, error)

	// GetVariantForInvoice returns the variant an invoice lands in for the
	// first matching active experiment of the given type, or nil when the
	// invoice is in no experiment
	GetVariantForInvoice(ctx context.Context, inv *invoice.Invoice, expType types.ExperimentType) (*VariantAssignment, error)
	// RecordEvent folds one outcome observation into the experiment results.
	// Events against non-active experiments are dropped with a warning.
	RecordEvent(ctx context.Context, experimentID string, req dto.RecordExperimentEventRequest) error
	GetResults(ctx context.Context, experimentID string) (*dto.ExperimentResultsResponse, error)
}

type experimentService struct {
	ServiceParams
}

func NewExperimentService(params ServiceParams) ExperimentService {
	return &experimentService{ServiceParams: params}
}

func (s *experimentService) CreateExperiment(ctx context.Context, req dto.CreateExperimentRequest) (*dto.ExperimentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	exp, err := req.ToExperiment(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.ExperimentRepo.Create(ctx, exp); err != nil {
		return nil, err
	}
	return &dto.ExperimentResponse{Experiment: exp}, nil
}

func (s *experimentService) GetExperiment(ctx context.Context, id string) (*dto.ExperimentResponse, error) {
	exp, err := s.ExperimentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.ExperimentResponse{Experiment: exp}, nil
}

func (s *experimentService) ListExperiments(ctx context.Context, req *dto.ListExperimentsRequest) (*dto.ListExperimentsResponse, error) {
	if req != nil {
		if err := req.Validate(); err != nil {
			return nil, err
		}
	}

	experiments, err := s.ExperimentRepo.List(ctx, types.GetTenantID(ctx), req.ToFilter())
	if err != nil {
		return nil, err
	}

	items := lo.Map(experiments, func(exp *experiment.Experiment, _ int) *dto.ExperimentResponse {
		return &dto.ExperimentResponse{Experiment: exp}
	})
	return &dto.ListExperimentsResponse{Items: items, Total: len(items)}, nil
}

// UpdateExperiment applies a partial update. Active experiments accept only
// status and end date changes so recorded results stay comparable.
func (s *experimentService) UpdateExperiment(ctx context.Context, id string, req dto.UpdateExperimentRequest) (*dto.ExperimentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	exp, err := s.ExperimentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if exp.ExperimentStatus == types.ExperimentStatusActive && req.MutatesBeyondStatusAndEndDate() {
		return nil, ierr.NewError("active experiment fields are locked").
			WithHint("Only status and end_date may change while an experiment is active").
			WithReportableDetails(map[string]any{
				"experiment_id": exp.ID,
			}).
			Mark(ierr.ErrValidation)
	}

	applyExperimentUpdate(ctx, exp, req)

	if err := exp.Validate(); err != nil {
		return nil, err
	}
	if err := s.ExperimentRepo.Update(ctx, exp); err != nil {
		return nil, err
	}
	s.invalidateExperimentCache(ctx)

	// Status changes go through the lifecycle operations so transition
	// guards and side effects apply.
	if req.ExperimentStatus != nil && *req.ExperimentStatus != exp.ExperimentStatus {
		switch *req.ExperimentStatus {
		case types.ExperimentStatusActive:
			return s.StartExperiment(ctx, id)
		case types.ExperimentStatusPaused:
			return s.PauseExperiment(ctx, id)
		case types.ExperimentStatusCompleted:
			return s.CompleteExperiment(ctx, id, nil)
		case types.ExperimentStatusArchived:
			return s.ArchiveExperiment(ctx, id)
		default:
			return nil, invalidTransition(exp, *req.ExperimentStatus)
		}
	}
	return &dto.ExperimentResponse{Experiment: exp}, nil
}

func applyExperimentUpdate(ctx context.Context, exp *experiment.Experiment, req dto.UpdateExperimentRequest) {
	if req.Name != nil {
		exp.Name = *req.Name
	}
	if req.Description != nil {
		exp.Description = *req.Description
	}
	if len(req.Variants) > 0 {
		exp.Variants = lo.Map(req.Variants, func(v dto.CreateVariantRequest, _ int) experiment.Variant {
			return experiment.Variant{
				ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_VARIANT),
				Name:              v.Name,
				TrafficAllocation: v.TrafficAllocation,
				Configuration:     v.Configuration,
			}
		})
	}
	if req.TargetCriteria != nil {
		exp.TargetCriteria = req.TargetCriteria
	}
	if req.Metrics != nil {
		exp.Metrics = *req.Metrics
	}
	if req.StartDate != nil {
		exp.StartDate = req.StartDate
	}
	if req.EndDate != nil {
		exp.EndDate = req.EndDate
	}
	exp.UpdatedAt = time.Now().UTC()
	exp.UpdatedBy = types.GetUserID(ctx)
}

func (s *experimentService) StartExperiment(ctx context.Context, id string) (*dto.ExperimentResponse, error) {
	exp, err := s.ExperimentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if exp.ExperimentStatus != types.ExperimentStatusDraft && exp.ExperimentStatus != types.ExperimentStatusPaused {
		return nil, invalidTransition(exp, types.ExperimentStatusActive)
	}
	if err := exp.Validate(); err != nil {
		return nil, err
	}

	// Every activation stamps the start date, including resume from paused,
	// so the date always reflects the latest activation.
	now := time.Now().UTC()
	exp.ExperimentStatus = types.ExperimentStatusActive
	exp.StartDate = &now
	if err := s.ExperimentRepo.Update(ctx, exp); err != nil {
		return nil, err
	}
	s.invalidateExperimentCache(ctx)

	s.publishWebhookEvent(ctx, types.WebhookEventExperimentStarted, map[string]interface{}{
		"experiment_id":   exp.ID,
		"experiment_type": exp.ExperimentType,
		"start_date":      exp.StartDate,
	})
	return &dto.ExperimentResponse{Experiment: exp}, nil
}

func (s *experimentService) PauseExperiment(ctx context.Context, id string) (*dto.ExperimentResponse, error) {
	exp, err := s.ExperimentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if exp.ExperimentStatus != types.ExperimentStatusActive {
		return nil, invalidTransition(exp, types.ExperimentStatusPaused)
	}

	exp.ExperimentStatus = types.ExperimentStatusPaused
	if err := s.ExperimentRepo.Update(ctx, exp); err != nil {
		return nil, err
	}
	s.invalidateExperimentCache(ctx)

	s.publishWebhookEvent(ctx, types.WebhookEventExperimentPaused, map[string]interface{}{
		"experiment_id":   exp.ID,
		"experiment_type": exp.ExperimentType,
	})
	return &dto.ExperimentResponse{Experiment: exp}, nil
}

// CompleteExperiment closes an experiment. Without an explicit winner,
// automatic selection picks the variant with the highest aggregated primary
// metric; strict ties leave the winner unset.
func (s *experimentService) CompleteExperiment(ctx context.Context, id string, winnerVariantID *string) (*dto.ExperimentResponse, error) {
	exp, err := s.ExperimentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if exp.ExperimentStatus != types.ExperimentStatusActive && exp.ExperimentStatus != types.ExperimentStatusPaused {
		return nil, invalidTransition(exp, types.ExperimentStatusCompleted)
	}

	if winnerVariantID != nil {
		if exp.Variant(*winnerVariantID) == nil {
			return nil, ierr.NewError("winner variant not found").
				WithHintf("Variant %s is not part of experiment %s", *winnerVariantID, exp.ID).
				Mark(ierr.ErrValidation)
		}
		exp.WinnerVariantID = winnerVariantID
	} else if exp.IsAutomaticWinnerSelection {
		winner, err := s.selectWinner(ctx, exp)
		if err != nil {
			return nil, err
		}
		exp.WinnerVariantID = winner
	}

	now := time.Now().UTC()
	exp.ExperimentStatus = types.ExperimentStatusCompleted
	exp.EndDate = &now
	if err := s.ExperimentRepo.Update(ctx, exp); err != nil {
		return nil, err
	}
	s.invalidateExperimentCache(ctx)

	s.publishWebhookEvent(ctx, types.WebhookEventExperimentCompleted, map[string]interface{}{
		"experiment_id":     exp.ID,
		"experiment_type":   exp.ExperimentType,
		"winner_variant_id": exp.WinnerVariantID,
		"end_date":          exp.EndDate,
	})
	return &dto.ExperimentResponse{Experiment: exp}, nil
}

func (s *experimentService) ArchiveExperiment(ctx context.Context, id string) (*dto.ExperimentResponse, error) {
	exp, err := s.ExperimentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if exp.ExperimentStatus == types.ExperimentStatusActive {
		return nil, invalidTransition(exp, types.ExperimentStatusArchived)
	}

	exp.ExperimentStatus = types.ExperimentStatusArchived
	if err := s.ExperimentRepo.Update(ctx, exp); err != nil {
		return nil, err
	}
	s.invalidateExperimentCache(ctx)
	return &dto.ExperimentResponse{Experiment: exp}, nil
}

// selectWinner compares the aggregated primary metric across variants.
// Variants share a score of zero when nothing was recorded for them.
func (s *experimentService) selectWinner(ctx context.Context, exp *experiment.Experiment) (*string, error) {
	results, err := s.ExperimentRepo.GetResults(ctx, exp.ID)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]decimal.Decimal, len(exp.Variants))
	for _, v := range exp.Variants {
		scores[v.ID] = decimal.Zero
	}
	for _, res := range results {
		if res.EventType != exp.Metrics.Primary {
			continue
		}
		if _, ok := scores[res.VariantID]; !ok {
			continue
		}
		scores[res.VariantID] = scores[res.VariantID].Add(res.Score())
	}

	var winner *string
	best := decimal.Zero
	tied := true
	for _, v := range exp.Variants {
		score := scores[v.ID]
		if winner == nil || score.GreaterThan(best) {
			id := v.ID
			winner = &id
			tied = false
			best = score
		} else if score.Equal(best) {
			tied = true
		}
	}

	if tied {
		s.Logger.Warnw("experiment winner tied, leaving unset",
			"experiment_id", exp.ID, "primary_metric", exp.Metrics.Primary)
		return nil, nil
	}
	return winner, nil
}

func (s *experimentService) GetVariantForInvoice(ctx context.Context, inv *invoice.Invoice, expType types.ExperimentType) (*VariantAssignment, error) {
	experiments, err := s.activeExperiments(ctx, inv.TenantID, expType)
	if err != nil {
		return nil, err
	}

	for _, exp := range experiments {
		if !exp.MatchesInvoice(inv) {
			continue
		}
		variant := exp.AssignVariant(inv.ID)
		if variant == nil {
			continue
		}
		return &VariantAssignment{Experiment: exp, Variant: variant}, nil
	}
	return nil, nil
}

// activeExperiments loads the tenant's active experiments of one type,
// served from the hot cache when fresh
func (s *experimentService) activeExperiments(ctx context.Context, tenantID string, expType types.ExperimentType) ([]*experiment.Experiment, error) {
	key := cache.GenerateKey(cache.PrefixExperiment, tenantID, "active", expType)

	if s.Cache != nil {
		if cached, found := s.Cache.Get(ctx, key); found {
			if experiments, ok := cached.([]*experiment.Experiment); ok {
				return experiments, nil
			}
		}
	}

	experiments, err := s.ExperimentRepo.ListActiveByType(ctx, tenantID, expType)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		s.Cache.Set(ctx, key, experiments, activeRuleCacheTTL)
	}
	return experiments, nil
}

func (s *experimentService) invalidateExperimentCache(ctx context.Context) {
	if s.Cache != nil {
		s.Cache.DeleteByPrefix(ctx, cache.PrefixExperiment)
	}
}

func (s *experimentService) RecordEvent(ctx context.Context, experimentID string, req dto.RecordExperimentEventRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	exp, err := s.ExperimentRepo.Get(ctx, experimentID)
	if err != nil {
		return err
	}

	if exp.ExperimentStatus != types.ExperimentStatusActive {
		s.Logger.Warnw("dropping event for non-active experiment",
			"experiment_id", experimentID,
			"experiment_status", exp.ExperimentStatus,
			"event_type", req.EventType)
		return nil
	}
	if exp.Variant(req.VariantID) == nil {
		return ierr.NewError("variant not found").
			WithHintf("Variant %s is not part of experiment %s", req.VariantID, experimentID).
			Mark(ierr.ErrNotFound)
	}

	if err := s.ExperimentRepo.RecordEvent(ctx, experimentID, req.EventType, req.VariantID, req.Value); err != nil {
		return err
	}

	s.publishWebhookEvent(ctx, types.WebhookEventExperimentDataRecorded, map[string]interface{}{
		"experiment_id": experimentID,
		"variant_id":    req.VariantID,
		"event_type":    req.EventType,
		"event_data":    req.Data(),
	})
	return nil
}

func (s *experimentService) GetResults(ctx context.Context, experimentID string) (*dto.ExperimentResultsResponse, error) {
	exp, err := s.ExperimentRepo.Get(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	results, err := s.ExperimentRepo.GetResults(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	response := &dto.ExperimentResultsResponse{
		ExperimentID:    exp.ID,
		WinnerVariantID: exp.WinnerVariantID,
	}
	for _, res := range results {
		item := &dto.VariantResultResponse{
			VariantID: res.VariantID,
			EventType: res.EventType,
			Count:     res.Count,
			Sum:       res.Sum,
			Mean:      res.Mean(),
			StdDev:    res.StdDev(),
		}
		if v := exp.Variant(res.VariantID); v != nil {
			item.VariantName = v.Name
		}
		response.Results = append(response.Results, item)
	}
	return response, nil
}

func invalidTransition(exp *experiment.Experiment, target types.ExperimentStatus) error {
	return ierr.NewError("invalid experiment status transition").
		WithHintf("Experiment %s cannot move from %s to %s", exp.ID, exp.ExperimentStatus, target).
		WithReportableDetails(map[string]any{
			"experiment_id": exp.ID,
			"from":          exp.ExperimentStatus,
			"to":            target,
		}).
		Mark(ierr.ErrInvalidOperation)
}
