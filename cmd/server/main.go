package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/recivo/recivo/internal/cache"
	"github.com/recivo/recivo/internal/config"
	"github.com/recivo/recivo/internal/logger"
	"github.com/recivo/recivo/internal/payments"
	"github.com/recivo/recivo/internal/postgres"
	"github.com/recivo/recivo/internal/pubsub"
	"github.com/recivo/recivo/internal/pubsub/memory"
	pubsubRouter "github.com/recivo/recivo/internal/pubsub/router"
	"github.com/recivo/recivo/internal/repository"
	"github.com/recivo/recivo/internal/sentry"
	"github.com/recivo/recivo/internal/service"
	"github.com/recivo/recivo/internal/types"
	"github.com/recivo/recivo/internal/validator"
	webhookPublisher "github.com/recivo/recivo/internal/webhook/publisher"
	"go.uber.org/fx"
)

func init() {
	// The engine computes day boundaries; everything runs in UTC.
	time.Local = time.UTC
}

func main() {
	// Optional local overrides; environment variables win in deployment.
	_ = godotenv.Load()

	app := fx.New(
		fx.Provide(
			validator.NewValidator,
			config.NewConfig,
			logger.NewLogger,
			sentry.NewSentryService,
			cache.Initialize,

			postgres.NewDB,
			providePostgresClient,

			repository.NewInvoiceRepository,
			repository.NewDiscountRuleRepository,
			repository.NewLateFeeRuleRepository,
			repository.NewDiscountApplicationRepository,
			repository.NewLateFeeApplicationRepository,
			repository.NewExperimentRepository,

			memory.NewPubSub,
			provideSubscriber,
			pubsubRouter.NewRouter,
			webhookPublisher.NewPublisher,

			service.NewServiceParams,
			service.NewDiscountService,
			service.NewLateFeeService,
			service.NewExperimentService,
			service.NewIncentiveService,
			service.NewLateFeeSweepService,

			payments.NewHandler,
		),
		fx.Invoke(
			sentry.RegisterHooks,
			startEngine,
		),
	)
	app.Run()
}

func providePostgresClient(db *postgres.DB) postgres.IClient {
	return db
}

func provideSubscriber(ps pubsub.PubSub) pubsub.Subscriber {
	return ps
}

func startEngine(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	handler *payments.Handler,
	router *pubsubRouter.Router,
	sweepService service.LateFeeSweepService,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startConsumer(lc, handler, router, log)
		startSweep(lc, cfg, sweepService, log)
	case types.ModeConsumer:
		startConsumer(lc, handler, router, log)
	case types.ModeSweep:
		startSweep(lc, cfg, sweepService, log)
	default:
		log.Fatalf("unknown deployment mode: %s", mode)
	}
}

func startConsumer(
	lc fx.Lifecycle,
	handler *payments.Handler,
	router *pubsubRouter.Router,
	log *logger.Logger,
) {
	handler.Register(router)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting payment event consumer")
			go func() {
				if err := router.Run(); err != nil {
					log.Fatalf("message router failed: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping payment event consumer")
			return router.Close()
		},
	})
}

func startSweep(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	sweepService service.LateFeeSweepService,
	log *logger.Logger,
) {
	interval := cfg.Sweep.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting late fee sweep", "interval", interval)
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := sweepService.ProcessAllTenants(context.Background()); err != nil {
							log.Errorw("late fee sweep run failed", "error", err)
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping late fee sweep")
			close(done)
			return nil
		},
	})
}
