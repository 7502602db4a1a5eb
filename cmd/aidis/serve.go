// serve.go wires the server together: configuration, logging, storage,
// embeddings, the catalog, the orchestrator, and both transports.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/aidis-io/aidis/internal/catalog"
	"github.com/aidis-io/aidis/internal/config"
	"github.com/aidis-io/aidis/internal/dispatch"
	"github.com/aidis-io/aidis/internal/embeddings"
	"github.com/aidis-io/aidis/internal/embeddings/ollama"
	"github.com/aidis-io/aidis/internal/embeddings/openai"
	"github.com/aidis-io/aidis/internal/observability"
	"github.com/aidis-io/aidis/internal/retry"
	"github.com/aidis-io/aidis/internal/server"
	"github.com/aidis-io/aidis/internal/session"
	"github.com/aidis-io/aidis/internal/storage"
	"github.com/aidis-io/aidis/internal/tools"
)

func runServe(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{Level: cfg.LogLevel})
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.LoopbackOnly() {
		logger.Warn(ctx, "binding beyond loopback; the HTTP transport is unauthenticated", "addr", cfg.BindAddr)
	}

	stores, db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer stores.Close()

	if err := checkEmbeddingDim(ctx, db, cfg.EmbeddingDim); err != nil {
		return err
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	if embedder != nil && embedder.Dimension() != cfg.EmbeddingDim {
		return fmt.Errorf("%w: provider %s produces %d-dimensional vectors, schema declares %d",
			config.ErrInvalid, embedder.Name(), embedder.Dimension(), cfg.EmbeddingDim)
	}
	if embedder == nil {
		logger.Warn(ctx, "no embedding provider configured; context store and search will be unavailable")
	} else {
		logger.Info(ctx, "embedding provider ready", "provider", embedder.Name(), "dimension", embedder.Dimension())
	}

	orchestrator := session.NewOrchestrator(stores.Projects, stores.Sessions, logger, metrics, session.Config{
		IdleWindow: cfg.IdleWindow,
	})
	maintenance, err := session.NewMaintenance(orchestrator, logger, cfg.SweepSchedule, cfg.FlushInterval)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	dispatcher := dispatch.New(catalog.Default(), orchestrator, logger, metrics, dispatch.Config{
		Timeout: cfg.HandlerTimeout,
		DBPing:  stores.Ping,
	})
	tools.New(tools.Deps{
		Stores:       stores,
		Embedder:     embedder,
		EmbeddingDim: cfg.EmbeddingDim,
		Sessions:     orchestrator,
		Logger:       logger,
	}).Register(dispatcher)

	ready := server.NewReadiness(stores.Ping, logger, metrics)

	srv := server.New(server.Config{
		BindAddr:      cfg.BindAddr,
		Stdio:         cfg.Stdio,
		ServerName:    "aidis",
		Version:       version,
		ShutdownGrace: cfg.ShutdownGrace,
	}, dispatcher, maintenance, ready, logger, metrics)

	logger.Info(ctx, "aidis starting",
		"version", version,
		"tools", dispatcher.Catalog().Len(),
		"embedding_dim", cfg.EmbeddingDim,
	)
	return srv.Run(ctx)
}

// openDatabase connects with one bounded retry so a briefly unready
// database (container startup) does not kill the server.
func openDatabase(dsn string) (storage.StoreSet, *sql.DB, error) {
	var db *sql.DB
	err := retry.Do(context.Background(), retry.Exponential(2, 250*time.Millisecond, time.Second), func() error {
		var err error
		db, err = storage.Open(dsn, nil)
		return err
	})
	if err != nil {
		return storage.StoreSet{}, nil, fmt.Errorf("%w: %v", errDatabase, err)
	}
	return storage.NewStoresFromDB(db), db, nil
}

// checkEmbeddingDim refuses to start when the configured dimensionality
// disagrees with the deployed schema's declared vector width.
func checkEmbeddingDim(ctx context.Context, db *sql.DB, want int) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	declared, err := storage.VectorDim(ctx, db)
	if err != nil {
		return fmt.Errorf("%w: %v", errDatabase, err)
	}
	if declared != want {
		return fmt.Errorf("%w: schema declares %d-dimensional embeddings, configured %d", errDatabase, declared, want)
	}
	return nil
}

// buildEmbedder selects the embedding provider: an explicit choice
// first, otherwise whichever provider has settings available. A nil
// provider is allowed; embedding tools then fail as unavailable.
func buildEmbedder(cfg config.Config) (embeddings.Provider, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		return openai.New(openai.Config{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel})
	case "ollama":
		return ollama.New(ollama.Config{BaseURL: cfg.OllamaURL, Model: cfg.OllamaModel})
	}
	if cfg.OpenAIAPIKey != "" {
		return openai.New(openai.Config{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel})
	}
	if cfg.OllamaURL != "" {
		return ollama.New(ollama.Config{BaseURL: cfg.OllamaURL, Model: cfg.OllamaModel})
	}
	return nil, nil
}
