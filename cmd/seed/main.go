// seed inserts a verified development account for local testing. Run with go run ./cmd/seed.
// Idempotent: skips the insert if the dev user (dev@example.com) already exists.
// Uses the store selected by STORE_DRIVER (postgres or mongo).
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"naija-nutri-hub/backend/internal/config"
	"naija-nutri-hub/backend/internal/db"
	"naija-nutri-hub/backend/internal/logging"
	"naija-nutri-hub/backend/internal/security"
	"naija-nutri-hub/backend/internal/store"
	"naija-nutri-hub/backend/internal/user/domain"
	userrepo "naija-nutri-hub/backend/internal/user/repository"
)

const (
	devUserEmail = "dev@example.com"
	devUsername  = "devuser"
	devPassword  = "DevPass123"
)

type userCreator interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogFormat, cfg.LogLevel)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var users userCreator
	switch cfg.StoreDriver {
	case config.StorePostgres:
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("db", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		users = userrepo.NewPostgresRepository(conn)
	case config.StoreMongo:
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Error("mongo", "error", err)
			os.Exit(1)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		repo := userrepo.NewMongoRepository(database)
		if err := repo.EnsureIndexes(ctx); err != nil {
			log.Error("mongo indexes", "error", err)
			os.Exit(1)
		}
		users = repo
	default:
		log.Error("seed needs a persistent store; set STORE_DRIVER to postgres or mongo", "store", cfg.StoreDriver)
		os.Exit(1)
	}

	if err := seed(ctx, users, security.NewHasher(cfg.BcryptCost), time.Now().UTC()); err != nil {
		log.Error("seed", "error", err)
		os.Exit(1)
	}
	log.Info("seed complete", "email", devUserEmail, "username", devUsername)
}

func seed(ctx context.Context, users userCreator, hasher *security.Hasher, now time.Time) error {
	existing, err := users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	hash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		return err
	}
	err = users.Create(ctx, &domain.User{
		ID:           uuid.NewString(),
		Email:        devUserEmail,
		Username:     devUsername,
		FirstName:    "Dev",
		LastName:     "User",
		PasswordHash: hash,
		IsVerified:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil
	}
	return err
}
