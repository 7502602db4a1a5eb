package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aidis-io/aidis/internal/catalog"
	"github.com/aidis-io/aidis/internal/dispatch"
	"github.com/aidis-io/aidis/internal/embeddings"
	"github.com/aidis-io/aidis/internal/observability"
	"github.com/aidis-io/aidis/internal/session"
	"github.com/aidis-io/aidis/internal/storage"
	"github.com/aidis-io/aidis/internal/tools"
	"github.com/aidis-io/aidis/pkg/models"
)

func testHTTPHandler(t *testing.T, ready *Readiness) http.Handler {
	t.Helper()
	stores := storage.NewMemoryStores()
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	orch := session.NewOrchestrator(stores.Projects, stores.Sessions, logger, nil, session.Config{})
	d := dispatch.New(catalog.Default(), orch, logger, nil, dispatch.Config{})
	return newHTTPHandler(d, ready, logger, nil)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httpEnvelope {
	t.Helper()
	var env httpEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return env
}

func TestHTTPToolCall(t *testing.T) {
	h := testHTTPHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/mcp/tools/aidis_ping",
		strings.NewReader(`{"arguments":{"message":"hi"}}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("success = false: %s", env.Error)
	}
	result := env.Result.(map[string]any)
	if result["message"] != "hi" {
		t.Errorf("message = %v, want hi", result["message"])
	}
}

func TestHTTPToolCallEmptyBody(t *testing.T) {
	h := testHTTPHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/mcp/tools/aidis_ping", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestHTTPToolCallValidationFailure(t *testing.T) {
	h := testHTTPHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/mcp/tools/context_store",
		strings.NewReader(`{"arguments":{"type":"code"}}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Success {
		t.Error("success = true for validation failure")
	}
	if !strings.Contains(env.Error, "content") {
		t.Errorf("error = %q, want mention of the missing field", env.Error)
	}
}

func TestHTTPUnknownTool(t *testing.T) {
	h := testHTTPHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/mcp/tools/no_such_tool", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHTTPMalformedBody(t *testing.T) {
	h := testHTTPHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/mcp/tools/aidis_ping", strings.NewReader(`{broken`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHTTPToolList(t *testing.T) {
	h := testHTTPHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/mcp/tools", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	result := env.Result.(map[string]any)
	if result["total"] != float64(26) {
		t.Errorf("total = %v, want 26", result["total"])
	}
}

func TestHTTPToolSchemas(t *testing.T) {
	h := testHTTPHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/mcp/tools/schemas", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	env := decodeEnvelope(t, rec)
	result := env.Result.(map[string]any)
	tools := result["tools"].([]any)
	if len(tools) != 26 {
		t.Fatalf("tools = %d, want 26", len(tools))
	}
	if _, ok := tools[0].(map[string]any)["inputSchema"]; !ok {
		t.Error("schema listing missing inputSchema")
	}
}

func TestHTTPHealthAndReadiness(t *testing.T) {
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	ready := NewReadiness(func(ctx context.Context) error { return nil }, logger, nil)
	h := testHTTPHandler(t, ready)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}

	// Not ready until a probe succeeds.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before probe = %d, want 503", rec.Code)
	}

	ready.Probe(context.Background())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz after probe = %d, want 200", rec.Code)
	}
}

// Distinct X-Session-ID headers get distinct sessions; repeated calls
// with the same header share one.
func TestHTTPSessionKeyHeader(t *testing.T) {
	stores := storage.NewMemoryStores()
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	orch := session.NewOrchestrator(stores.Projects, stores.Sessions, logger, nil, session.Config{})
	d := dispatch.New(catalog.Default(), orch, logger, nil, dispatch.Config{})
	tools.New(tools.Deps{
		Stores:       stores,
		Embedder:     embeddings.NewFake(64),
		EmbeddingDim: 64,
		Sessions:     orch,
		Logger:       logger,
	}).Register(d)
	h := newHTTPHandler(d, nil, logger, nil)

	if err := stores.Projects.Create(context.Background(), &models.Project{Name: "p"}); err != nil {
		t.Fatal(err)
	}

	call := func(key string) {
		req := httptest.NewRequest(http.MethodPost, "/mcp/tools/project_list", strings.NewReader(`{}`))
		if key != "" {
			req.Header.Set("X-Session-ID", key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
		}
	}
	call("agent-a")
	call("agent-a")
	call("agent-b")

	if got := orch.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount() = %d, want 2", got)
	}
}
