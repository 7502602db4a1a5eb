// commands.go contains the cobra command definitions. Each builder
// creates a command and wires it to its handler in serve.go.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidis-io/aidis/internal/config"
	"github.com/aidis-io/aidis/internal/storage"
)

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "aidis",
		Short:         "Persistent memory and coordination service for AI coding agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(buildServeCmd(), buildMigrateCmd(), buildVersionCmd())
	return cmd
}

func buildServeCmd() *cobra.Command {
	cfg := config.FromEnv()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the AIDIS server",
		Long: `Start the AIDIS server.

The server exposes the tool catalog over an HTTP/JSON endpoint and,
with --stdio, over newline-delimited JSON-RPC on stdin/stdout. Both
transports share one dispatcher and one catalog.

By default the HTTP transport binds to loopback only. Binding to any
other address is unauthenticated and must be an explicit choice.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # HTTP only, local Postgres
  aidis serve --database-url postgres://localhost/aidis

  # Embedded in a host process over stdio
  aidis serve --stdio --database-url postgres://localhost/aidis

  # Local embeddings
  AIDIS_OLLAMA_URL=http://localhost:11434 aidis serve \
    --embedding-dim 768 --database-url postgres://localhost/aidis`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.BindAddr, "bind", cfg.BindAddr, "HTTP listen address")
	cmd.Flags().BoolVar(&cfg.Stdio, "stdio", cfg.Stdio, "Serve JSON-RPC on stdin/stdout")
	cmd.Flags().StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection string (required)")
	cmd.Flags().IntVar(&cfg.EmbeddingDim, "embedding-dim", cfg.EmbeddingDim, "Embedding dimensionality; must match the deployed schema")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: trace|debug|info|warn|error")
	cmd.Flags().StringVar(&cfg.EmbeddingProvider, "embedding-provider", cfg.EmbeddingProvider, "Embedding provider: openai|ollama (default by available settings)")

	return cmd
}

func buildMigrateCmd() *cobra.Command {
	cfg := config.FromEnv()

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded schema migrations",
		Long: `Apply the embedded schema migrations to the database.

The contexts table's vector column is created with the configured
embedding dimensionality; changing the dimensionality later is a
migration event that requires re-embedding stored content.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("%w: database URL is required", config.ErrInvalid)
			}
			return runMigrate(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection string (required)")
	cmd.Flags().IntVar(&cfg.EmbeddingDim, "embedding-dim", cfg.EmbeddingDim, "Embedding dimensionality for the vector column")

	return cmd
}

func runMigrate(ctx context.Context, cfg config.Config) error {
	stores, db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer stores.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := storage.Migrate(ctx, db, cfg.EmbeddingDim); err != nil {
		return fmt.Errorf("%w: %v", errDatabase, err)
	}
	fmt.Println("migrations applied")
	return nil
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("aidis %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
