package service

import (
	"github.com/recivo/recivo/internal/cache"
	"github.com/recivo/recivo/internal/config"
	"github.com/recivo/recivo/internal/domain/discount_application"
	"github.com/recivo/recivo/internal/domain/discountrule"
	"github.com/recivo/recivo/internal/domain/experiment"
	"github.com/recivo/recivo/internal/domain/invoice"
	"github.com/recivo/recivo/internal/domain/latefee_application"
	"github.com/recivo/recivo/internal/domain/latefeerule"
	"github.com/recivo/recivo/internal/idempotency"
	"github.com/recivo/recivo/internal/logger"
	"github.com/recivo/recivo/internal/postgres"
	webhookPublisher "github.com/recivo/recivo/internal/webhook/publisher"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient

	// Repositories
	InvoiceRepo             invoice.Repository
	DiscountRuleRepo        discountrule.Repository
	LateFeeRuleRepo         latefeerule.Repository
	DiscountApplicationRepo discount_application.Repository
	LateFeeApplicationRepo  latefee_application.Repository
	ExperimentRepo          experiment.Repository

	WebhookPublisher webhookPublisher.WebhookPublisher
	IdempotencyGen   *idempotency.Generator
	Cache            cache.Cache
}

// NewServiceParams assembles the common service dependencies
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	invoiceRepo invoice.Repository,
	discountRuleRepo discountrule.Repository,
	lateFeeRuleRepo latefeerule.Repository,
	discountApplicationRepo discount_application.Repository,
	lateFeeApplicationRepo latefee_application.Repository,
	experimentRepo experiment.Repository,
	webhookPublisher webhookPublisher.WebhookPublisher,
) ServiceParams {
	return ServiceParams{
		Logger:                  logger,
		Config:                  config,
		DB:                      db,
		InvoiceRepo:             invoiceRepo,
		DiscountRuleRepo:        discountRuleRepo,
		LateFeeRuleRepo:         lateFeeRuleRepo,
		DiscountApplicationRepo: discountApplicationRepo,
		LateFeeApplicationRepo:  lateFeeApplicationRepo,
		ExperimentRepo:          experimentRepo,
		WebhookPublisher:        webhookPublisher,
		IdempotencyGen:          idempotency.NewGenerator(),
		Cache:                   cache.GetInMemoryCache(),
	}
}
