package ollama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aidis-io/aidis/internal/retry"
)

func testProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := New(Config{BaseURL: srv.URL, Model: "all-minilm"})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestEmbed(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %q, want /api/embeddings", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	})

	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("len(vec) = %d, want 3", len(vec))
	}
}

// Client errors are marked permanent so callers skip the retry;
// overload and server-side failures stay retryable.
func TestEmbedErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantPermanent bool
	}{
		{name: "bad request", status: http.StatusBadRequest, wantPermanent: true},
		{name: "model not found", status: http.StatusNotFound, wantPermanent: true},
		{name: "rate limited", status: http.StatusTooManyRequests, wantPermanent: false},
		{name: "server error", status: http.StatusInternalServerError, wantPermanent: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})
			_, err := p.Embed(context.Background(), "hello")
			if err == nil {
				t.Fatal("Embed() = nil error, want failure")
			}
			if got := retry.IsPermanent(err); got != tt.wantPermanent {
				t.Errorf("IsPermanent = %v for status %d, want %v", got, tt.status, tt.wantPermanent)
			}
		})
	}
}

func TestEmbedEmptyVector(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[]}`))
	})
	if _, err := p.Embed(context.Background(), "hello"); err == nil {
		t.Error("Embed() = nil error on empty embedding, want failure")
	}
}
