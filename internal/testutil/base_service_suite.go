package testutil

import (
	"context"
	"time"

	"github.com/recivo/recivo/internal/cache"
	"github.com/recivo/recivo/internal/config"
	"github.com/recivo/recivo/internal/domain/discount_application"
	"github.com/recivo/recivo/internal/domain/discountrule"
	"github.com/recivo/recivo/internal/domain/experiment"
	"github.com/recivo/recivo/internal/domain/invoice"
	"github.com/recivo/recivo/internal/domain/latefee_application"
	"github.com/recivo/recivo/internal/domain/latefeerule"
	"github.com/recivo/recivo/internal/logger"
	"github.com/recivo/recivo/internal/postgres"
	"github.com/recivo/recivo/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	InvoiceRepo             invoice.Repository
	DiscountRuleRepo        discountrule.Repository
	LateFeeRuleRepo         latefeerule.Repository
	DiscountApplicationRepo discount_application.Repository
	LateFeeApplicationRepo  latefee_application.Repository
	ExperimentRepo          experiment.Repository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx              context.Context
	stores           Stores
	webhookPublisher *InMemoryWebhookPublisher
	db               postgres.IClient
	logger           *logger.Logger
	config           *config.Configuration
	now              time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	cfg := config.GetDefaultConfig()
	s.config = cfg

	var err error
	s.logger, err = logger.NewLogger(cfg)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}

	cache.Initialize(s.logger)
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		InvoiceRepo:             NewInMemoryInvoiceStore(),
		DiscountRuleRepo:        NewInMemoryDiscountRuleStore(),
		LateFeeRuleRepo:         NewInMemoryLateFeeRuleStore(),
		DiscountApplicationRepo: NewInMemoryDiscountApplicationStore(),
		LateFeeApplicationRepo:  NewInMemoryLateFeeApplicationStore(),
		ExperimentRepo:          NewInMemoryExperimentStore(),
	}

	s.db = NewMockPostgresClient(s.logger)
	s.webhookPublisher = NewInMemoryWebhookPublisher()

	// the rule cache is process-global, so stale entries from a previous
	// test would mask the fresh stores
	cache.GetInMemoryCache().Flush(context.Background())
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.InvoiceRepo.(*InMemoryInvoiceStore).Clear()
	s.stores.DiscountRuleRepo.(*InMemoryDiscountRuleStore).Clear()
	s.stores.LateFeeRuleRepo.(*InMemoryLateFeeRuleStore).Clear()
	s.stores.DiscountApplicationRepo.(*InMemoryDiscountApplicationStore).Clear()
	s.stores.LateFeeApplicationRepo.(*InMemoryLateFeeApplicationStore).Clear()
	s.stores.ExperimentRepo.(*InMemoryExperimentStore).Clear()
	s.webhookPublisher.Clear()
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetWebhookPublisher returns the capturing webhook publisher
func (s *BaseServiceTestSuite) GetWebhookPublisher() *InMemoryWebhookPublisher {
	return s.webhookPublisher
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the current time when the test started
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}
