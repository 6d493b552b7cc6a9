package core

import (
	"fmt"
	"log/slog"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/ai"
	"github.com/HUSAINTRIVEDI52/new-brain/pkg/storage"
	mysqlStore "github.com/HUSAINTRIVEDI52/new-brain/pkg/storage/mysql"
	postgresStore "github.com/HUSAINTRIVEDI52/new-brain/pkg/storage/postgres"
	sqliteStore "github.com/HUSAINTRIVEDI52/new-brain/pkg/storage/sqlite"
	"github.com/HUSAINTRIVEDI52/new-brain/pkg/vector"
	flatIndex "github.com/HUSAINTRIVEDI52/new-brain/pkg/vector/flat"
	remoteIndex "github.com/HUSAINTRIVEDI52/new-brain/pkg/vector/remote"
)

// Open assembles a Brain from configuration: the durable-store backend,
// the vector index variant, the AI client, and the store itself.
//
// A nil logger falls back to the default slog logger.
//
// Example:
//
//	config, _ := core.LoadConfigFromEnv()
//	brain, err := core.Open(config, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer brain.Close()
func Open(cfg *Config, logger *slog.Logger) (*Brain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	repo, err := openStorage(cfg)
	if err != nil {
		return nil, NewMemoryError("Open", err)
	}

	index, err := openIndex(cfg, repo, logger)
	if err != nil {
		repo.Close()
		return nil, NewMemoryError("Open", err)
	}

	aiClient, err := ai.NewClient(&ai.Config{
		APIKey:            cfg.AI.APIKey,
		BaseURL:           cfg.AI.BaseURL,
		ChatModel:         cfg.AI.ChatModel,
		EmbeddingModel:    cfg.AI.EmbeddingModel,
		Dimension:         cfg.Dimension,
		Timeout:           cfg.AI.Timeout,
		RequestsPerSecond: cfg.AI.RequestsPerSecond,
	}, logger)
	if err != nil {
		repo.Close()
		return nil, NewMemoryError("Open", err)
	}

	store, err := NewStore(cfg, repo, index, logger)
	if err != nil {
		repo.Close()
		return nil, err
	}

	return NewBrain(store, aiClient, cfg.DefaultTopK, logger), nil
}

// openStorage initializes the configured durable-store backend.
func openStorage(cfg *Config) (storage.Store, error) {
	switch cfg.Storage.Provider {
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath: cfg.Storage.SQLite.DBPath,
			Table:  cfg.Storage.Table,
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:       cfg.Storage.Postgres.Host,
			Port:       cfg.Storage.Postgres.Port,
			User:       cfg.Storage.Postgres.User,
			Password:   cfg.Storage.Postgres.Password,
			DBName:     cfg.Storage.Postgres.DBName,
			SSLMode:    cfg.Storage.Postgres.SSLMode,
			Table:      cfg.Storage.Table,
			Dimensions: cfg.Dimension,
		})
	case "mysql":
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:     cfg.Storage.MySQL.Host,
			Port:     cfg.Storage.MySQL.Port,
			User:     cfg.Storage.MySQL.User,
			Password: cfg.Storage.MySQL.Password,
			DBName:   cfg.Storage.MySQL.DBName,
			Table:    cfg.Storage.Table,
		})
	default:
		return nil, fmt.Errorf("%w: unknown storage provider %q", ErrInvalidConfig, cfg.Storage.Provider)
	}
}

// openIndex initializes the configured vector index variant. The store
// never branches on which variant is active.
func openIndex(cfg *Config, repo storage.Store, logger *slog.Logger) (vector.Index, error) {
	switch cfg.VectorIndex {
	case "", VectorIndexFlat:
		return flatIndex.New(cfg.Dimension), nil
	case VectorIndexStore:
		return remoteIndex.New(repo, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector index %q", ErrInvalidConfig, cfg.VectorIndex)
	}
}
