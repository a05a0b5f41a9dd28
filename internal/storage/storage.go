package storage

import (
	"context"
	"fmt"

	"github.com/ArowuTest/uptime-rewards-backend/internal/config"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories/memory"
	mongorepo "github.com/ArowuTest/uptime-rewards-backend/internal/repositories/mongodb"
	pgrepo "github.com/ArowuTest/uptime-rewards-backend/internal/repositories/postgres"
	"github.com/ArowuTest/uptime-rewards-backend/pkg/mongodb"
	"golang.org/x/exp/slog"
)

// Stores bundles the repositories of one backend
type Stores struct {
	Users    repositories.UserRepository
	Sessions repositories.SessionRepository
	Ledger   repositories.LedgerRepository
	close    func(context.Context) error
}

// Close releases the backend's connections
func (s *Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// Open connects to the configured storage driver and prepares its schema
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.Storage.Driver {
	case "mongodb":
		return openMongo(ctx, cfg)
	case "postgres":
		return openPostgres(ctx, cfg)
	case "memory":
		slog.Warn("Using in-memory storage, data is lost on restart")
		return &Stores{
			Users:    memory.NewUserRepository(),
			Sessions: memory.NewSessionRepository(),
			Ledger:   memory.NewLedgerRepository(),
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func openMongo(ctx context.Context, cfg *config.Config) (*Stores, error) {
	client, err := mongodb.NewClient(ctx, cfg.MongoDB.URI, cfg.MongoDB.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	db := client.Database(cfg.MongoDB.Database)

	indexCtx, cancel := context.WithTimeout(ctx, cfg.MongoDB.ConnectTimeout)
	defer cancel()
	if err := mongorepo.EnsureIndexes(indexCtx, db); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure MongoDB indexes: %w", err)
	}

	slog.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)
	return &Stores{
		Users:    mongorepo.NewUserRepository(db),
		Sessions: mongorepo.NewSessionRepository(db),
		Ledger:   mongorepo.NewLedgerRepository(db),
		close:    client.Disconnect,
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*Stores, error) {
	db, err := pgrepo.Open(cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns, cfg.Postgres.ConnMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("connect to Postgres: %w", err)
	}
	if err := pgrepo.Migrate(db.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("migrate Postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	slog.Info("Connected to Postgres")
	return &Stores{
		Users:    pgrepo.NewUserRepository(db),
		Sessions: pgrepo.NewSessionRepository(db),
		Ledger:   pgrepo.NewLedgerRepository(db),
		close: func(context.Context) error {
			return sqlDB.Close()
		},
	}, nil
}
