// Package embeddings defines the embedding provider interface and its
// error contract. Concrete providers live in subpackages.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable reports that no embedding provider is configured or
// the configured provider failed. Operations that need no embedding
// keep working when this is returned.
var ErrUnavailable = errors.New("embedding provider unavailable")

// DimensionError reports that a provider returned a vector whose length
// disagrees with the configured dimensionality. Treated as a server
// bug, never as caller error.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: got %d, want %d", e.Got, e.Want)
}

// Provider generates dense vector embeddings for text.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts (more efficient).
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the provider name.
	Name() string

	// Dimension returns the embedding dimension.
	Dimension() int
}

// CheckDimension verifies the vector has the configured dimensionality.
func CheckDimension(vec []float32, want int) error {
	if len(vec) != want {
		return &DimensionError{Want: want, Got: len(vec)}
	}
	return nil
}

// Config selects and configures a provider.
type Config struct {
	Provider string // openai or ollama; empty picks by available settings
	APIKey   string
	BaseURL  string
	Model    string

	// Ollama-specific
	OllamaURL string
}
