package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/aidis-io/aidis/internal/catalog"
	"github.com/aidis-io/aidis/internal/dispatch"
	"github.com/aidis-io/aidis/internal/observability"
	"github.com/aidis-io/aidis/internal/session"
	"github.com/aidis-io/aidis/internal/storage"
)

func testStdioServer(t *testing.T) *StdioServer {
	t.Helper()
	stores := storage.NewMemoryStores()
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	orch := session.NewOrchestrator(stores.Projects, stores.Sessions, logger, nil, session.Config{})
	d := dispatch.New(catalog.Default(), orch, logger, nil, dispatch.Config{})
	return NewStdioServer(d, logger, "aidis", "test")
}

// serveLines feeds newline-delimited frames through the server and
// returns the decoded responses in output order.
func serveLines(t *testing.T, s *StdioServer, lines ...string) []jsonrpcResponse {
	t.Helper()
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer
	if err := s.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	var responses []jsonrpcResponse
	dec := json.NewDecoder(&out)
	for dec.More() {
		var resp jsonrpcResponse
		if err := dec.Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		responses = append(responses, resp)
	}
	return responses
}

func TestStdioInitialize(t *testing.T) {
	s := testStdioServer(t)
	responses := serveLines(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(responses))
	}
	result := responses[0].Result.(map[string]any)
	info := result["serverInfo"].(map[string]any)
	if info["name"] != "aidis" {
		t.Errorf("server name = %v, want aidis", info["name"])
	}
	if result["protocolVersion"] != "2024-11-05" {
		t.Errorf("protocolVersion = %v", result["protocolVersion"])
	}
}

func TestStdioToolsCall(t *testing.T) {
	s := testStdioServer(t)
	responses := serveLines(t, s,
		`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"aidis_ping","arguments":{"message":"hi"}}}`)
	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(responses))
	}
	resp := responses[0]
	if resp.Error != nil {
		t.Fatalf("error = %+v", resp.Error)
	}
	if string(resp.ID) != "7" {
		t.Errorf("id = %s, want 7", resp.ID)
	}
	result := resp.Result.(map[string]any)
	content := result["content"].([]any)
	block := content[0].(map[string]any)
	if block["type"] != "text" {
		t.Errorf("content type = %v, want text", block["type"])
	}
	if !strings.Contains(block["text"].(string), `"hi"`) {
		t.Errorf("text = %v, want echoed message", block["text"])
	}
	if result["isError"] != false {
		t.Errorf("isError = %v, want false", result["isError"])
	}
}

func TestStdioParseError(t *testing.T) {
	s := testStdioServer(t)
	responses := serveLines(t, s, `{not json`)
	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(responses))
	}
	resp := responses[0]
	if resp.Error == nil || resp.Error.Code != dispatch.CodeParse {
		t.Errorf("error = %+v, want parse error %d", resp.Error, dispatch.CodeParse)
	}
	if string(resp.ID) != "null" {
		t.Errorf("id = %s, want null", resp.ID)
	}
}

func TestStdioMethodNotFound(t *testing.T) {
	s := testStdioServer(t)
	responses := serveLines(t, s, `{"jsonrpc":"2.0","id":2,"method":"prompts/list"}`)
	if responses[0].Error == nil || responses[0].Error.Code != dispatch.CodeMethodNotFound {
		t.Errorf("error = %+v, want method not found", responses[0].Error)
	}
}

func TestStdioNotificationsIgnored(t *testing.T) {
	s := testStdioServer(t)
	responses := serveLines(t, s,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	// Only the tools/list frame gets a response.
	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(responses))
	}
	result := responses[0].Result.(map[string]any)
	tools := result["tools"].([]any)
	if len(tools) != 26 {
		t.Errorf("tools = %d, want 26", len(tools))
	}
	first := tools[0].(map[string]any)
	if _, ok := first["inputSchema"]; !ok {
		t.Error("tool listing missing inputSchema")
	}
}

func TestStdioToolsCallMissingName(t *testing.T) {
	s := testStdioServer(t)
	responses := serveLines(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"arguments":{}}}`)
	if responses[0].Error == nil || responses[0].Error.Code != dispatch.CodeInvalidParams {
		t.Errorf("error = %+v, want invalid params", responses[0].Error)
	}
}

func TestStdioValidationErrorCarriesDetail(t *testing.T) {
	s := testStdioServer(t)
	responses := serveLines(t, s,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"aidis_explain","arguments":{}}}`)
	resp := responses[0]
	if resp.Error == nil || resp.Error.Code != dispatch.CodeInvalidParams {
		t.Fatalf("error = %+v, want invalid params", resp.Error)
	}
	detail, ok := resp.Error.Data.(map[string]any)
	if !ok {
		t.Fatalf("error data = %T, want structured detail", resp.Error.Data)
	}
	if detail["field"] != "name" || detail["reason"] != "missing" {
		t.Errorf("detail = %v, want name/missing", detail)
	}
}

func TestStdioResourcesRead(t *testing.T) {
	s := testStdioServer(t)
	responses := serveLines(t, s,
		`{"jsonrpc":"2.0","id":5,"method":"resources/read","params":{"uri":"aidis://aidis_ping"}}`)
	resp := responses[0]
	if resp.Error != nil {
		t.Fatalf("error = %+v", resp.Error)
	}
	result := resp.Result.(map[string]any)
	content := result["content"].([]any)
	if !strings.Contains(content[0].(map[string]any)["text"].(string), "pong") {
		t.Error("resources/read did not dispatch the tool")
	}
}

// A frame larger than the 1 MiB cap gets a parse-error response and is
// discarded; the server keeps serving subsequent frames.
func TestStdioOversizedFrameIsSkipped(t *testing.T) {
	s := testStdioServer(t)
	huge := `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"aidis_ping","arguments":{"message":"` +
		strings.Repeat("x", maxLineBytes+1024) + `"}}}`
	responses := serveLines(t, s,
		huge,
		`{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"aidis_ping"}}`)
	if len(responses) != 2 {
		t.Fatalf("responses = %d, want 2", len(responses))
	}
	if responses[0].Error == nil || responses[0].Error.Code != dispatch.CodeParse {
		t.Errorf("oversized frame error = %+v, want parse error %d", responses[0].Error, dispatch.CodeParse)
	}
	if string(responses[0].ID) != "null" {
		t.Errorf("oversized frame id = %s, want null", responses[0].ID)
	}
	if responses[1].Error != nil {
		t.Errorf("follow-up frame failed: %+v", responses[1].Error)
	}
}

// A malformed frame never stops the loop; the next frame still works.
func TestStdioRecoversAfterBadFrame(t *testing.T) {
	s := testStdioServer(t)
	responses := serveLines(t, s,
		`garbage`,
		`{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"aidis_ping"}}`)
	if len(responses) != 2 {
		t.Fatalf("responses = %d, want 2", len(responses))
	}
	if responses[0].Error == nil {
		t.Error("bad frame produced no error")
	}
	if responses[1].Error != nil {
		t.Errorf("follow-up frame failed: %+v", responses[1].Error)
	}
}
