package repository

import (
	"github.com/recivo/recivo/internal/domain/discount_application"
	"github.com/recivo/recivo/internal/domain/discountrule"
	"github.com/recivo/recivo/internal/domain/experiment"
	"github.com/recivo/recivo/internal/domain/invoice"
	"github.com/recivo/recivo/internal/domain/latefee_application"
	"github.com/recivo/recivo/internal/domain/latefeerule"
	"github.com/recivo/recivo/internal/logger"
	"github.com/recivo/recivo/internal/postgres"
	postgresRepo "github.com/recivo/recivo/internal/repository/postgres"
)

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return postgresRepo.NewInvoiceRepository(db, logger)
}

func NewDiscountRuleRepository(db *postgres.DB, logger *logger.Logger) discountrule.Repository {
	return postgresRepo.NewDiscountRuleRepository(db, logger)
}

func NewLateFeeRuleRepository(db *postgres.DB, logger *logger.Logger) latefeerule.Repository {
	return postgresRepo.NewLateFeeRuleRepository(db, logger)
}

func NewDiscountApplicationRepository(db *postgres.DB, logger *logger.Logger) discount_application.Repository {
	return postgresRepo.NewDiscountApplicationRepository(db, logger)
}

func NewLateFeeApplicationRepository(db *postgres.DB, logger *logger.Logger) latefee_application.Repository {
	return postgresRepo.NewLateFeeApplicationRepository(db, logger)
}

func NewExperimentRepository(db *postgres.DB, logger *logger.Logger) experiment.Repository {
	return postgresRepo.NewExperimentRepository(db, logger)
}
