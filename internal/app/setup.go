package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lodestone-ai/lodestone/db"
	"github.com/lodestone-ai/lodestone/internal/config"
	"github.com/lodestone-ai/lodestone/internal/database"
	"github.com/lodestone-ai/lodestone/internal/embed"
	"github.com/lodestone-ai/lodestone/internal/index"
	"github.com/lodestone-ai/lodestone/internal/ingest"
	"github.com/lodestone-ai/lodestone/internal/llm"
	"github.com/lodestone-ai/lodestone/internal/log"
	"github.com/lodestone-ai/lodestone/internal/rag"
	"github.com/lodestone-ai/lodestone/internal/splitter"
)

// Setup creates and initializes the application.
// The returned App holds live resources; call Close() to release them.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	a := &App{
		Config: cfg,
		Logger: provideLogger(cfg),
	}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				a.Logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if err := provideStore(ctx, a, cfg); err != nil {
		return nil, err
	}

	a.Embedder = embed.NewOllama(cfg.OllamaHost, cfg.EmbeddingModel, cfg.Dimension)
	a.Generator = llm.NewOllama(cfg.OllamaHost, cfg.GenerationModel,
		llm.WithTemperature(cfg.Temperature))

	engine, err := rag.New(rag.Config{
		Store:         a.Store,
		Embedder:      a.Embedder,
		Generator:     a.Generator,
		TopK:          cfg.TopK,
		HistoryWindow: cfg.HistoryWindow,
		Logger:        a.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	a.Engine = engine

	a.Pipeline = ingest.New(
		splitter.New(cfg.ChunkSize, cfg.ChunkOverlap),
		a.Embedder,
		a.Store,
		a.Logger,
	)

	return a, nil
}

// provideLogger builds the application logger from config.
func provideLogger(cfg *config.Config) log.Logger {
	return log.New(log.Config{
		Level: parseLogLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
}

// provideStore builds the vector index selected by index_driver.
func provideStore(ctx context.Context, a *App, cfg *config.Config) error {
	switch cfg.IndexDriver {
	case "memory":
		mem, err := provideMemoryIndex(cfg)
		if err != nil {
			return err
		}
		a.memory = mem
		a.snapshotPath = cfg.SnapshotPath
		a.Store = mem
		return nil
	default:
		pool, err := provideDBPool(ctx, cfg)
		if err != nil {
			return err
		}
		a.DBPool = pool
		a.Store = index.NewPostgres(pool, cfg.Dimension, a.Logger)
		return nil
	}
}

// provideMemoryIndex loads the snapshot when one exists, otherwise starts
// with an empty index.
func provideMemoryIndex(cfg *config.Config) (*index.Memory, error) {
	if cfg.SnapshotPath == "" {
		return index.NewMemory(cfg.Dimension), nil
	}

	mem, err := index.LoadMemory(cfg.SnapshotPath)
	switch {
	case err == nil:
		return mem, nil
	case errors.Is(err, os.ErrNotExist):
		return index.NewMemory(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("loading index snapshot: %w", err)
	}
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return pool, nil
}
