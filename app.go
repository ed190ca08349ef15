package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/lvanfai123/moving-service-sub001/config"
	"github.com/lvanfai123/moving-service-sub001/controllers"
	"github.com/lvanfai123/moving-service-sub001/repositories"
	"github.com/lvanfai123/moving-service-sub001/services"
)

// application holds the wired services of one process
type application struct {
	cfg    *config.Config
	logger *zap.Logger

	mongo *mongo.Client
	redis *redis.Client

	payments  *services.PaymentService
	ledger    *services.CreditLedger
	referrals *services.ReferralService
	sweeper   *services.Sweeper
}

type stores struct {
	payments  repositories.PaymentRepository
	orders    repositories.OrderStore
	credits   repositories.CreditRepository
	referrals repositories.ReferralRepository
}

func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	app := &application{cfg: cfg, logger: logger}

	st, err := app.openStores(ctx)
	if err != nil {
		app.close(ctx)
		return nil, err
	}

	gateway, err := app.gateway()
	if err != nil {
		app.close(ctx)
		return nil, err
	}

	app.ledger = services.NewCreditLedger(st.credits, cfg, logger)
	app.referrals = services.NewReferralService(st.referrals, st.payments, app.ledger, cfg, logger)
	app.payments = services.NewPaymentService(
		st.payments,
		st.orders,
		gateway,
		app.ledger,
		app.referrals,
		app.idempotencyStore(),
		cfg,
		logger,
	)
	app.sweeper = services.NewSweeper(app.payments, app.ledger, app.referrals, cfg.SweepInterval, logger)
	return app, nil
}

func (a *application) openStores(ctx context.Context) (*stores, error) {
	if a.cfg.Storage == "memory" {
		if a.cfg.IsProduction() {
			return nil, fmt.Errorf("in-memory storage is not allowed in production")
		}
		a.logger.Warn("using in-memory storage, data is lost on restart")
		return &stores{
			payments:  repositories.NewMemoryPaymentRepository(),
			orders:    repositories.NewMemoryOrderStore(),
			credits:   repositories.NewMemoryCreditRepository(),
			referrals: repositories.NewMemoryReferralRepository(),
		}, nil
	}

	client, err := config.ConnectDB(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.mongo = client

	db := client.Database(a.cfg.DBName)
	if err := config.SetupCollections(ctx, db, a.logger); err != nil {
		return nil, err
	}

	return &stores{
		payments:  repositories.NewMongoPaymentRepository(db),
		orders:    repositories.NewMongoOrderStore(db),
		credits:   repositories.NewMongoCreditRepository(client, db),
		referrals: repositories.NewMongoReferralRepository(db),
	}, nil
}

func (a *application) gateway() (services.Gateway, error) {
	whish := services.NewWhishGateway(a.cfg, a.logger)
	if whish.Configured() {
		return whish, nil
	}
	if a.cfg.IsProduction() {
		return nil, fmt.Errorf("WHISH_CHANNEL, WHISH_SECRET and WHISH_WEBSITE_URL are required in production")
	}
	a.logger.Warn("whish credentials missing, using the local settling gateway")
	return services.NewLocalGateway(), nil
}

func (a *application) idempotencyStore() services.IdempotencyStore {
	if a.redis == nil {
		a.redis = config.ConnectRedis(a.cfg, a.logger)
	}
	if a.redis != nil {
		return services.NewRedisIdempotencyStore(a.redis, a.cfg.IdempotencyTTL)
	}
	return services.NewMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
}

// ping reports storage health, nil when running in memory
func (a *application) ping() func(ctx context.Context) error {
	if a.mongo == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return a.mongo.Ping(ctx, nil)
	}
}

func (a *application) controllers() (*controllers.PaymentController, *controllers.CreditController, *controllers.ReferralController) {
	return controllers.NewPaymentController(a.payments, a.logger),
		controllers.NewCreditController(a.ledger, a.cfg.Currency, a.logger),
		controllers.NewReferralController(a.referrals, a.logger)
}

func (a *application) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.mongo != nil {
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.logger.Warn("mongodb disconnect failed", zap.Error(err))
		}
	}
}
