package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/aidis-io/aidis/internal/catalog"
	"github.com/aidis-io/aidis/internal/observability"
	"github.com/aidis-io/aidis/internal/session"
	"github.com/aidis-io/aidis/internal/storage"
	"github.com/aidis-io/aidis/internal/validate"
	"github.com/aidis-io/aidis/pkg/models"
)

func testDispatcher(t *testing.T, cfg Config) (*Dispatcher, storage.StoreSet) {
	t.Helper()
	stores := storage.NewMemoryStores()
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	orch := session.NewOrchestrator(stores.Projects, stores.Sessions, logger, nil, session.Config{})
	return New(catalog.Default(), orch, logger, nil, cfg), stores
}

func callOpts() CallOptions {
	return CallOptions{SessionKey: "test-session", AgentType: "test-agent"}
}

func TestCallPing(t *testing.T) {
	d, _ := testDispatcher(t, Config{})

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "echoes the message", args: map[string]any{"message": "hi"}, want: "hi"},
		{name: "defaults to pong", args: nil, want: "pong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := d.Call(context.Background(), callOpts(), "aidis_ping", tt.args)
			if err != nil {
				t.Fatalf("Call() error = %v", err)
			}
			out, ok := result.(map[string]any)
			if !ok {
				t.Fatalf("result type %T", result)
			}
			if out["message"] != tt.want {
				t.Errorf("message = %v, want %q", out["message"], tt.want)
			}
			if out["status"] != "ok" {
				t.Errorf("status = %v, want ok", out["status"])
			}
		})
	}
}

// Introspection tools work before any project or session exists and
// never create session state.
func TestIntrospectionSkipsSessionResolution(t *testing.T) {
	d, _ := testDispatcher(t, Config{})

	for name := range catalog.Introspection {
		args := map[string]any{}
		if name == "aidis_explain" || name == "aidis_examples" {
			args["name"] = "aidis_ping"
		}
		if _, err := d.Call(context.Background(), callOpts(), name, args); err != nil {
			t.Errorf("Call(%s) error = %v", name, err)
		}
	}
	if got := d.sessions.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d after introspection calls, want 0", got)
	}
}

func TestCallUnknownTool(t *testing.T) {
	d, _ := testDispatcher(t, Config{})

	_, err := d.Call(context.Background(), callOpts(), "nonexistent_tool", nil)
	if !errors.Is(err, catalog.ErrUnknownTool) {
		t.Fatalf("Call() error = %v, want ErrUnknownTool", err)
	}
	if got := HTTPStatus(err); got != http.StatusNotFound {
		t.Errorf("HTTPStatus() = %d, want 404", got)
	}
	if got := JSONRPCCode(err); got != CodeMethodNotFound {
		t.Errorf("JSONRPCCode() = %d, want %d", got, CodeMethodNotFound)
	}
}

func TestCallValidationFailure(t *testing.T) {
	d, _ := testDispatcher(t, Config{})

	// context_store requires type and content.
	_, err := d.Call(context.Background(), callOpts(), "context_store", map[string]any{"type": "code"})
	detail, ok := ValidationDetail(err)
	if !ok {
		t.Fatalf("Call() error = %v, want validation error", err)
	}
	if detail.Field != "content" || detail.Reason != "missing" {
		t.Errorf("detail = %+v, want content/missing", detail)
	}
	if got := HTTPStatus(err); got != http.StatusBadRequest {
		t.Errorf("HTTPStatus() = %d, want 400", got)
	}
	if got := JSONRPCCode(err); got != CodeInvalidParams {
		t.Errorf("JSONRPCCode() = %d, want %d", got, CodeInvalidParams)
	}
}

func TestCallRecoversPanic(t *testing.T) {
	d, stores := testDispatcher(t, Config{})
	if err := stores.Projects.Create(context.Background(), &models.Project{Name: "p"}); err != nil {
		t.Fatal(err)
	}
	d.Register("project_list", func(ctx context.Context, req *Request) (any, error) {
		panic("boom")
	})

	_, err := d.Call(context.Background(), callOpts(), "project_list", nil)
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("Call() error = %v, want ErrInternal", err)
	}
	if got := UserMessage(err); got != "internal error" {
		t.Errorf("UserMessage() = %q, want generic message", got)
	}
}

func TestCallTimeout(t *testing.T) {
	d, stores := testDispatcher(t, Config{Timeout: 20 * time.Millisecond})
	if err := stores.Projects.Create(context.Background(), &models.Project{Name: "p"}); err != nil {
		t.Fatal(err)
	}
	d.Register("project_list", func(ctx context.Context, req *Request) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := d.Call(context.Background(), callOpts(), "project_list", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Call() error = %v, want DeadlineExceeded", err)
	}
	if got := JSONRPCCode(err); got != CodeTimeout {
		t.Errorf("JSONRPCCode() = %d, want %d", got, CodeTimeout)
	}
	if got := HTTPStatus(err); got != http.StatusGatewayTimeout {
		t.Errorf("HTTPStatus() = %d, want 504", got)
	}
}

func TestCallResolvesSessionForDomainTools(t *testing.T) {
	d, stores := testDispatcher(t, Config{})
	p := &models.Project{Name: "p"}
	if err := stores.Projects.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	var got Request
	d.Register("project_list", func(ctx context.Context, req *Request) (any, error) {
		got = *req
		return "ok", nil
	})

	if _, err := d.Call(context.Background(), callOpts(), "project_list", nil); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got.Session.ID == "" {
		t.Error("session was not resolved")
	}
	if got.Session.ProjectID != p.ID {
		t.Errorf("session project = %q, want %q", got.Session.ProjectID, p.ID)
	}
	if d.sessions.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", d.sessions.ActiveCount())
	}
}

func TestStatus(t *testing.T) {
	pingErr := errors.New("down")
	var dbOK bool
	d, _ := testDispatcher(t, Config{DBPing: func(ctx context.Context) error {
		if dbOK {
			return nil
		}
		return pingErr
	}})

	result, err := d.Call(context.Background(), callOpts(), "aidis_status", nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	out := result.(map[string]any)
	if out["database"] != false {
		t.Errorf("database = %v, want false", out["database"])
	}
	if out["tool_count"] != d.catalog.Len() {
		t.Errorf("tool_count = %v, want %d", out["tool_count"], d.catalog.Len())
	}

	dbOK = true
	result, err = d.Call(context.Background(), callOpts(), "aidis_status", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.(map[string]any)["database"] != true {
		t.Error("database = false after recovery, want true")
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantKind   string
		wantStatus int
		wantCode   int
	}{
		{
			name:       "validation",
			err:        &validate.Error{Field: "x", Reason: "missing"},
			wantKind:   "validation",
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidParams,
		},
		{
			name:       "missing project",
			err:        session.ErrNoProject,
			wantKind:   "missing_project",
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeApplication,
		},
		{
			name:       "not found",
			err:        storage.ErrNotFound,
			wantKind:   "not_found",
			wantStatus: http.StatusNotFound,
			wantCode:   CodeApplication,
		},
		{
			name:       "conflict",
			err:        storage.ErrConflict,
			wantKind:   "conflict",
			wantStatus: http.StatusConflict,
			wantCode:   CodeApplication,
		},
		{
			name:       "internal",
			err:        errors.New("sql: connection reset"),
			wantKind:   "internal",
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.wantKind {
				t.Errorf("Kind() = %q, want %q", got, tt.wantKind)
			}
			if got := HTTPStatus(tt.err); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
			if got := JSONRPCCode(tt.err); got != tt.wantCode {
				t.Errorf("JSONRPCCode() = %d, want %d", got, tt.wantCode)
			}
		})
	}

	// Raw database detail never reaches the caller.
	if got := UserMessage(errors.New("pq: password authentication failed")); got != "internal error" {
		t.Errorf("UserMessage() leaked detail: %q", got)
	}
}
