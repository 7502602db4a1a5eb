// Package config resolves server configuration from flags and
// environment variables. Flags win; environment fills what flags leave
// unset; defaults fill the rest.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// ErrInvalid marks configuration errors. The CLI maps it to exit
// code 2.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved server configuration.
type Config struct {
	BindAddr     string
	Stdio        bool
	DatabaseURL  string
	EmbeddingDim int
	LogLevel     string

	EmbeddingProvider string // openai | ollama | empty (pick by settings)
	OpenAIAPIKey      string
	OpenAIModel       string
	OllamaURL         string
	OllamaModel       string

	HandlerTimeout time.Duration
	IdleWindow     time.Duration
	SweepSchedule  string
	FlushInterval  time.Duration
	ShutdownGrace  time.Duration
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		BindAddr:       "127.0.0.1:8080",
		EmbeddingDim:   1536,
		LogLevel:       "info",
		HandlerTimeout: 30 * time.Second,
		IdleWindow:     2 * time.Hour,
		SweepSchedule:  "*/5 * * * *",
		FlushInterval:  time.Minute,
		ShutdownGrace:  10 * time.Second,
	}
}

// FromEnv layers environment variables over the defaults. The result
// is used as flag defaults, so explicit flags still win.
func FromEnv() Config {
	c := Default()
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("AIDIS_BIND_ADDR"); v != "" {
		c.BindAddr = v
	}
	if v := os.Getenv("AIDIS_EMBEDDING_DIM"); v != "" {
		if dim, err := strconv.Atoi(v); err == nil {
			c.EmbeddingDim = dim
		}
	}
	if v := os.Getenv("AIDIS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("AIDIS_EMBEDDING_PROVIDER"); v != "" {
		c.EmbeddingProvider = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAIAPIKey = v
	}
	if v := os.Getenv("AIDIS_OLLAMA_URL"); v != "" {
		c.OllamaURL = v
	}
	return c
}

var logLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for startup.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: database URL is required (--database-url or DATABASE_URL)", ErrInvalid)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive, got %d", ErrInvalid, c.EmbeddingDim)
	}
	if !logLevels[c.LogLevel] {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.LogLevel)
	}
	if c.BindAddr != "" {
		if _, _, err := net.SplitHostPort(c.BindAddr); err != nil {
			return fmt.Errorf("%w: bind address %q: %v", ErrInvalid, c.BindAddr, err)
		}
	}
	switch c.EmbeddingProvider {
	case "", "openai", "ollama":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalid, c.EmbeddingProvider)
	}
	return nil
}

// LoopbackOnly reports whether the bind address stays on loopback.
// Binding elsewhere is allowed but unauthenticated, so startup warns
// about it.
func (c *Config) LoopbackOnly() bool {
	host, _, err := net.SplitHostPort(c.BindAddr)
	if err != nil {
		return true
	}
	if host == "" || host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
