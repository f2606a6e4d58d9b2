// Package store opens the configured GameStore backend.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/machiavelli/internal/config"
	"github.com/freeeve/machiavelli/internal/repository"
	"github.com/freeeve/machiavelli/internal/repository/mongodb"
	"github.com/freeeve/machiavelli/internal/repository/postgres"
)

// Open connects to the backend named by cfg.StoreBackend. The returned close
// function releases the connection.
func Open(ctx context.Context, cfg *config.Config) (repository.GameStore, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := postgres.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		log.Info().Str("backend", cfg.StoreBackend).Msg("Game store connected")
		return postgres.NewGameStore(db), func() { db.Close() }, nil

	case config.BackendMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, fmt.Errorf("mongodb: %w", err)
		}
		gs := mongodb.NewGameStore(client.Database(cfg.MongoDB))
		if err := gs.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("mongodb indexes: %w", err)
		}
		log.Info().Str("backend", cfg.StoreBackend).Str("database", cfg.MongoDB).Msg("Game store connected")
		return gs, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn().Err(err).Msg("MongoDB disconnect failed")
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
