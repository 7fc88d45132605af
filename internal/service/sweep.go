package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/recivo/recivo/internal/types"
	"github.com/sourcegraph/conc/pool"
)

// SweepResult counts the outcome of one sweep over a tenant's overdue
// invoices
type SweepResult struct {
	Processed int `json:"processed"`
	Applied   int `json:"applied"`
	Skipped   int `json:"skipped"`
}

// LateFeeSweepService drives late fee application over overdue invoices on
// a schedule
type LateFeeSweepService interface {
	// ProcessLateFees sweeps one tenant. A failing invoice is counted as
	// skipped and never aborts the rest of the sweep.
	ProcessLateFees(ctx context.Context, tenantID string) (*SweepResult, error)
	// ProcessAllTenants sweeps every tenant that has overdue invoices
	ProcessAllTenants(ctx context.Context) error
}

type lateFeeSweepService struct {
	ServiceParams
	incentiveService IncentiveService
}

func NewLateFeeSweepService(params ServiceParams, incentiveService IncentiveService) LateFeeSweepService {
	return &lateFeeSweepService{
		ServiceParams:    params,
		incentiveService: incentiveService,
	}
}

func (s *lateFeeSweepService) ProcessLateFees(ctx context.Context, tenantID string) (*SweepResult, error) {
	ctx = types.SetTenantID(ctx, tenantID)
	now := time.Now().UTC()

	invoices, err := s.InvoiceRepo.ListOverdue(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}

	workers := s.Config.Sweep.Workers
	if workers <= 0 {
		workers = 1
	}

	var applied, skipped atomic.Int64

	// Each invoice is processed independently inside its own transaction;
	// bounded workers keep the sweep from saturating the database.
	p := pool.New().WithMaxGoroutines(workers)
	for _, inv := range invoices {
		inv := inv
		p.Go(func() {
			_, didApply, err := s.incentiveService.ProcessLateFeeForInvoice(ctx, inv, now)
			if err != nil {
				skipped.Add(1)
				s.Logger.Errorw("late fee sweep failed for invoice",
					"tenant_id", tenantID, "invoice_id", inv.ID, "error", err)
				return
			}
			if didApply {
				applied.Add(1)
			} else {
				skipped.Add(1)
			}
		})
	}
	p.Wait()

	result := &SweepResult{
		Processed: len(invoices),
		Applied:   int(applied.Load()),
		Skipped:   int(skipped.Load()),
	}

	s.Logger.Infow("late fee sweep finished",
		"tenant_id", tenantID,
		"processed", result.Processed,
		"applied", result.Applied,
		"skipped", result.Skipped)
	return result, nil
}

func (s *lateFeeSweepService) ProcessAllTenants(ctx context.Context) error {
	tenantIDs, err := s.InvoiceRepo.ListTenantsWithOverdue(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, tenantID := range tenantIDs {
		if _, err := s.ProcessLateFees(ctx, tenantID); err != nil {
			s.Logger.Errorw("late fee sweep failed for tenant",
				"tenant_id", tenantID, "error", err)
		}
	}
	return nil
}
