// Package main provides the CLI entry point for the AIDIS server.
//
// AIDIS is a persistent-memory and coordination service for AI coding
// agents: vector-searchable context, technical decisions, projects,
// sessions, and tasks, served over stdio JSON-RPC and HTTP.
//
// # Basic Usage
//
// Start the server:
//
//	aidis serve --database-url postgres://localhost/aidis
//
// Apply schema migrations:
//
//	aidis migrate --database-url postgres://localhost/aidis
//
// # Environment Variables
//
//   - DATABASE_URL: PostgreSQL connection string
//   - AIDIS_BIND_ADDR: HTTP listen address (default 127.0.0.1:8080)
//   - AIDIS_EMBEDDING_DIM: embedding dimensionality (default 1536)
//   - AIDIS_LOG_LEVEL: trace|debug|info|warn|error
//   - AIDIS_EMBEDDING_PROVIDER: openai|ollama
//   - OPENAI_API_KEY: enables the OpenAI embedding provider
//   - AIDIS_OLLAMA_URL: enables the Ollama embedding provider
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aidis-io/aidis/internal/config"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// errDatabase marks unrecoverable database errors at startup, mapped
// to exit code 3.
var errDatabase = errors.New("database startup error")

// Exit codes: 0 clean shutdown, 2 configuration error, 3 unrecoverable
// database error at startup.
func main() {
	// Logs go to stderr only; the stream transport owns stdout.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		switch {
		case errors.Is(err, config.ErrInvalid):
			os.Exit(2)
		case errors.Is(err, errDatabase):
			os.Exit(3)
		default:
			os.Exit(1)
		}
	}
}
