// Package di provides dependency injection for database connections.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sentinel-vault/internal/config"
	"github.com/aristath/sentinel-vault/internal/database"
	"github.com/aristath/sentinel-vault/internal/modules/persistence"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the state database and applies the schema of the
// configured table layout
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// vault.db - accounting state and unit journal
	stateDB, err := database.New(database.Config{
		Path:    cfg.StatePath(),
		Profile: database.ProfileLedger, // Maximum safety, every commit is durable
		Name:    "vault",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state database: %w", err)
	}
	container.StateDB = stateDB

	repo, err := persistence.NewStateRepository(stateDB.Conn(), cfg.Layout(), log)
	if err != nil {
		stateDB.Close()
		return nil, fmt.Errorf("failed to create state repository: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := repo.Migrate(ctx); err != nil {
		stateDB.Close()
		return nil, err
	}
	container.StateRepo = repo

	log.Info().
		Str("path", stateDB.Path()).
		Str("layout", repo.Layout().String()).
		Msg("State database initialized")

	return container, nil
}
