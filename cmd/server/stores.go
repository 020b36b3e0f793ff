package main

import (
	"context"
	"fmt"
	"log/slog"

	"naija-nutri-hub/backend/internal/account/service"
	"naija-nutri-hub/backend/internal/config"
	"naija-nutri-hub/backend/internal/db"
	"naija-nutri-hub/backend/internal/passwordreset"
	resetrepo "naija-nutri-hub/backend/internal/reset/repository"
	"naija-nutri-hub/backend/internal/user/domain"
	userrepo "naija-nutri-hub/backend/internal/user/repository"
)

// userStore is what the managers, the account service and readiness need.
type userStore interface {
	service.UserRepo
	Update(ctx context.Context, u *domain.User, expectedVersion int64) error
	Ping(ctx context.Context) error
}

type stores struct {
	users  userStore
	resets passwordreset.TokenStore
	close  func()
}

// openStores connects the driver selected by STORE_DRIVER. Postgres expects
// migrations applied (cmd/migrate); Mongo indexes are ensured here.
func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn("using in-memory store; accounts are lost on restart")
		return &stores{
			users:  userrepo.NewMemoryRepository(),
			resets: resetrepo.NewMemoryRepository(),
			close:  func() {},
		}, nil
	case config.StorePostgres:
		sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return &stores{
			users:  userrepo.NewPostgresRepository(sqlDB),
			resets: resetrepo.NewPostgresRepository(sqlDB),
			close: func() {
				if err := sqlDB.Close(); err != nil {
					log.Warn("postgres close", "error", err)
				}
			},
		}, nil
	case config.StoreMongo:
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		users := userrepo.NewMongoRepository(database)
		resets := resetrepo.NewMongoRepository(database)
		disconnect := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn("mongo disconnect", "error", err)
			}
		}
		if err := users.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, fmt.Errorf("mongo user indexes: %w", err)
		}
		if err := resets.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, fmt.Errorf("mongo reset indexes: %w", err)
		}
		return &stores{users: users, resets: resets, close: disconnect}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
