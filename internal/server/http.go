package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aidis-io/aidis/internal/catalog"
	"github.com/aidis-io/aidis/internal/dispatch"
	"github.com/aidis-io/aidis/internal/observability"
)

// httpEnvelope is the HTTP transport's response shape.
type httpEnvelope struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

type httpHandler struct {
	dispatcher *dispatch.Dispatcher
	ready      *Readiness
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// newHTTPHandler builds the HTTP adapter's route table.
func newHTTPHandler(d *dispatch.Dispatcher, ready *Readiness, logger *observability.Logger, metrics *observability.Metrics) http.Handler {
	h := &httpHandler{dispatcher: d, ready: ready, logger: logger, metrics: metrics}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp/tools/{tool}", h.instrument("/mcp/tools/{tool}", h.handleToolCall))
	mux.HandleFunc("GET /mcp/tools", h.instrument("/mcp/tools", h.handleToolList))
	mux.HandleFunc("GET /mcp/tools/schemas", h.instrument("/mcp/tools/schemas", h.handleToolSchemas))
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /readyz", h.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *httpHandler) instrument(path string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		if h.metrics != nil {
			h.metrics.HTTPRequestDuration.
				WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).
				Observe(time.Since(start).Seconds())
		}
	}
}

// sessionKey derives the caller's session key: an explicit header when
// present, otherwise the client IP so requests from one host share a
// session.
func sessionKey(r *http.Request) string {
	if key := r.Header.Get("X-Session-ID"); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "http-" + host
}

type toolCallBody struct {
	Arguments map[string]any `json:"arguments"`
	AgentType string         `json:"agentType,omitempty"`
}

func (h *httpHandler) handleToolCall(w http.ResponseWriter, r *http.Request) {
	tool := r.PathValue("tool")

	var body toolCallBody
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, httpEnvelope{Success: false, Error: fmt.Sprintf("invalid request body: %v", err)})
			return
		}
	}

	opts := dispatch.CallOptions{
		SessionKey: sessionKey(r),
		AgentType:  body.AgentType,
	}
	if opts.AgentType == "" {
		opts.AgentType = "http-client"
	}

	result, err := h.dispatcher.Call(r.Context(), opts, tool, body.Arguments)
	if err != nil {
		writeJSON(w, dispatch.HTTPStatus(err), httpEnvelope{Success: false, Error: dispatch.UserMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, httpEnvelope{Success: true, Result: result})
}

func (h *httpHandler) handleToolList(w http.ResponseWriter, _ *http.Request) {
	entries := h.dispatcher.Catalog().Entries()
	tools := make([]map[string]any, len(entries))
	for i, e := range entries {
		tools[i] = map[string]any{
			"name":        e.Name,
			"description": e.Description,
			"category":    e.Category,
		}
	}
	writeJSON(w, http.StatusOK, httpEnvelope{Success: true, Result: map[string]any{"tools": tools, "total": len(tools)}})
}

func (h *httpHandler) handleToolSchemas(w http.ResponseWriter, _ *http.Request) {
	entries := h.dispatcher.Catalog().Entries()
	tools := make([]map[string]any, len(entries))
	for i, e := range entries {
		tools[i] = map[string]any{
			"name":        e.Name,
			"description": e.Description,
			"category":    e.Category,
			"inputSchema": catalog.JSONSchema(e.Schema),
			"examples":    e.Examples,
		}
	}
	writeJSON(w, http.StatusOK, httpEnvelope{Success: true, Result: map[string]any{"tools": tools, "total": len(tools)}})
}

func (h *httpHandler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *httpHandler) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if h.ready != nil && h.ready.Ready() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
