package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/config"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/handler"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/idempotency"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/repository"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/repository/memstore"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/repository/mongostore"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
	"github.com/fairyhunter13/qr-saas-entitlement/pkg/database"
	"github.com/fairyhunter13/qr-saas-entitlement/pkg/mongodb"
	"github.com/fairyhunter13/qr-saas-entitlement/pkg/redisclient"
)

// stores is the persistence backend selected by STORE_DRIVER.
type stores struct {
	accounts service.AccountRepositoryInterface
	coupons  service.CouponRepositoryInterface
	payments service.PaymentRepositoryInterface
	qrcodes  service.QRCodeRepositoryInterface
	health   handler.Pinger
	close    func(ctx context.Context)
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg.DB)
	case config.DriverMongo:
		return openMongo(ctx, cfg.Mongo)
	case config.DriverMemory:
		log.Warn().Msg("using in-memory store: data is lost on restart")
		accounts := memstore.NewAccountStore()
		return &stores{
			accounts: accounts,
			coupons:  memstore.NewCouponStore(),
			payments: memstore.NewPaymentStore(),
			qrcodes:  memstore.NewQRCodeStore(),
			health:   accounts,
			close:    func(context.Context) {},
		}, nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
}

func openPostgres(ctx context.Context, cfg config.DBConfig) (*stores, error) {
	pool, err := database.NewPool(ctx, database.PoolOptions{
		DSN:         cfg.DSN(),
		MaxRetries:  cfg.MaxRetries,
		BaseBackoff: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &stores{
		accounts: repository.NewAccountRepository(pool),
		coupons:  repository.NewCouponRepository(pool),
		payments: repository.NewPaymentRepository(pool),
		qrcodes:  repository.NewQRCodeRepository(pool),
		health:   pool,
		close: func(context.Context) {
			log.Info().Msg("closing database connections...")
			pool.Close()
			log.Info().Msg("database connections closed")
		},
	}, nil
}

func openMongo(ctx context.Context, cfg config.MongoConfig) (*stores, error) {
	client, err := mongodb.Connect(ctx, mongodb.Options{
		URL:            cfg.URL,
		ConnectTimeout: cfg.ConnectTimeout,
		MaxPoolSize:    cfg.MaxPoolSize,
		RetryAttempts:  5,
		RetryInterval:  time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	store := mongostore.New(client.Database(cfg.Database))
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure mongodb indexes: %w", err)
	}

	return &stores{
		accounts: store.Accounts,
		coupons:  store.Coupons,
		payments: store.Payments,
		qrcodes:  store.QRCodes,
		health:   handler.PingFunc(mongodb.Healthcheck(client)),
		close: func(ctx context.Context) {
			log.Info().Msg("disconnecting from mongodb...")
			if err := client.Disconnect(ctx); err != nil {
				log.Error().Err(err).Msg("error disconnecting from mongodb")
			}
		},
	}, nil
}

// keyStore is the idempotency backend. ping is nil for the in-memory store.
type keyStore struct {
	store service.IdempotencyStore
	ping  func(context.Context) error
	close func()
}

// openIdempotency returns the Redis key store when REDIS_URL is set and a process-local
// one otherwise.
func openIdempotency(ctx context.Context, cfg config.RedisConfig) (*keyStore, error) {
	if !cfg.Enabled() {
		log.Info().Msg("REDIS_URL not set: idempotency keys kept in memory")
		return &keyStore{store: idempotency.NewMemoryStore(), close: func() {}}, nil
	}

	client, err := redisclient.Connect(ctx, redisclient.Options{
		URL:            cfg.URL,
		ConnectTimeout: 5 * time.Second,
		RetryAttempts:  5,
		RetryInterval:  time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &keyStore{
		store: idempotency.NewRedisStore(client, cfg.Prefix),
		ping:  redisclient.Healthcheck(client),
		close: func() {
			if err := client.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis client")
			}
		},
	}, nil
}

// storeHealth pings the store and, when configured, Redis.
func storeHealth(st *stores, keys *keyStore) handler.Pinger {
	return handler.PingFunc(func(ctx context.Context) error {
		if err := st.health.Ping(ctx); err != nil {
			return err
		}
		if keys.ping != nil {
			return keys.ping(ctx)
		}
		return nil
	})
}
