// Package app provides application initialization and dependency wiring.
//
// App is the container that assembles all components: configuration,
// logging, the database pool, the vector index, the Ollama clients, the
// retrieval engine and the ingestion pipeline.
package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lodestone-ai/lodestone/internal/config"
	"github.com/lodestone-ai/lodestone/internal/embed"
	"github.com/lodestone-ai/lodestone/internal/index"
	"github.com/lodestone-ai/lodestone/internal/ingest"
	"github.com/lodestone-ai/lodestone/internal/llm"
	"github.com/lodestone-ai/lodestone/internal/log"
	"github.com/lodestone-ai/lodestone/internal/rag"
)

// App is the core application container.
type App struct {
	// Configuration
	Config *config.Config
	Logger log.Logger

	// Core services
	DBPool    *pgxpool.Pool
	Store     index.Store
	Embedder  *embed.Ollama
	Generator *llm.Ollama
	Engine    *rag.Engine
	Pipeline  *ingest.Pipeline

	// memory driver state; snapshotPath is empty for the postgres driver
	memory       *index.Memory
	snapshotPath string
}

// Close releases all resources held by the application. For the memory
// index driver with a configured snapshot path, the index is persisted
// before shutdown.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	var err error
	if a.memory != nil && a.snapshotPath != "" {
		if persistErr := a.memory.Persist(a.snapshotPath); persistErr != nil {
			err = fmt.Errorf("persisting index snapshot: %w", persistErr)
		} else if a.Logger != nil {
			a.Logger.Info("index snapshot persisted", "path", a.snapshotPath)
		}
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		if a.Logger != nil {
			a.Logger.Info("database pool closed")
		}
	}

	return err
}

// parseLogLevel maps a configured level name to a slog.Level.
// Unknown values fall back to info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
