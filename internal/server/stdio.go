package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aidis-io/aidis/internal/catalog"
	"github.com/aidis-io/aidis/internal/dispatch"
	"github.com/aidis-io/aidis/internal/observability"
	"github.com/aidis-io/aidis/internal/session"
)

// maxLineBytes bounds a single JSON-RPC frame on stdin.
const maxLineBytes = 1024 * 1024

// jsonrpcRequest is one newline-delimited JSON-RPC 2.0 message.
type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// StdioServer serves the stream transport: newline-delimited JSON-RPC
// on stdin/stdout, one request at a time in arrival order. All logging
// goes to stderr; stdout carries only responses.
type StdioServer struct {
	dispatcher *dispatch.Dispatcher
	logger     *observability.Logger
	serverName string
	version    string

	writeMu sync.Mutex
	out     *json.Encoder
}

// NewStdioServer builds the stream transport adapter.
func NewStdioServer(d *dispatch.Dispatcher, logger *observability.Logger, serverName, version string) *StdioServer {
	return &StdioServer{
		dispatcher: d,
		logger:     logger,
		serverName: serverName,
		version:    version,
	}
}

// Serve reads frames from r until EOF or context cancellation, writing
// responses to w. Transport-level errors are isolated per request and
// never terminate the loop: an oversized frame gets a parse-error
// response, the rest of that line is discarded, and serving continues.
func (s *StdioServer) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.out = json.NewEncoder(w)

	reader := bufio.NewReaderSize(r, 64*1024)
	var frame []byte
	dropping := false

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		chunk, err := reader.ReadSlice('\n')
		if !dropping {
			frame = append(frame, chunk...)
		}
		if err == bufio.ErrBufferFull {
			if !dropping && len(frame) > maxLineBytes {
				dropping = true
				frame = nil
				s.writeFrameTooLong()
			}
			continue
		}
		if err != nil && err != io.EOF {
			return fmt.Errorf("read stdin: %w", err)
		}

		switch {
		case dropping:
			// Tail of the oversized line; already reported.
			dropping = false
		case len(frame) > maxLineBytes:
			s.writeFrameTooLong()
		default:
			if line := bytes.TrimSpace(frame); len(line) > 0 {
				s.handleLine(ctx, line)
			}
		}
		frame = frame[:0]

		if err == io.EOF {
			return nil
		}
	}
}

func (s *StdioServer) writeFrameTooLong() {
	s.write(jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      json.RawMessage("null"),
		Error:   &jsonrpcError{Code: dispatch.CodeParse, Message: "frame exceeds maximum size"},
	})
}

func (s *StdioServer) handleLine(ctx context.Context, line []byte) {
	var req jsonrpcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.write(jsonrpcResponse{
			JSONRPC: "2.0",
			ID:      json.RawMessage("null"),
			Error:   &jsonrpcError{Code: dispatch.CodeParse, Message: "parse error"},
		})
		return
	}

	// Notifications never get a response.
	if strings.HasPrefix(req.Method, "notifications/") {
		return
	}

	id := req.ID
	if len(id) == 0 {
		id = json.RawMessage("null")
	}

	switch req.Method {
	case "initialize":
		s.write(jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: s.initializeResult()})
	case "tools/list":
		s.write(jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: s.toolsListResult()})
	case "tools/call":
		s.write(s.toolsCall(ctx, id, req.Params))
	case "resources/list":
		s.write(jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: map[string]any{"resources": []any{}}})
	case "resources/read":
		s.write(s.resourcesRead(ctx, id, req.Params))
	default:
		s.write(jsonrpcResponse{
			JSONRPC: "2.0",
			ID:      id,
			Error:   &jsonrpcError{Code: dispatch.CodeMethodNotFound, Message: "method not found: " + req.Method},
		})
	}
}

func (s *StdioServer) initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": "2024-11-05",
		"serverInfo": map[string]any{
			"name":    s.serverName,
			"version": s.version,
		},
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{},
		},
	}
}

func (s *StdioServer) toolsListResult() map[string]any {
	entries := s.dispatcher.Catalog().Entries()
	tools := make([]map[string]any, len(entries))
	for i, e := range entries {
		tools[i] = map[string]any{
			"name":        e.Name,
			"description": e.Description,
			"inputSchema": catalog.JSONSchema(e.Schema),
		}
	}
	return map[string]any{"tools": tools}
}

type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *StdioServer) toolsCall(ctx context.Context, id json.RawMessage, params json.RawMessage) jsonrpcResponse {
	var p toolsCallParams
	if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
		return jsonrpcResponse{
			JSONRPC: "2.0",
			ID:      id,
			Error:   &jsonrpcError{Code: dispatch.CodeInvalidParams, Message: "tools/call requires a tool name"},
		}
	}
	return s.callTool(ctx, id, p.Name, p.Arguments)
}

// resourcesRead treats an aidis:// URI as a tool name and delegates to
// the same dispatch path.
func (s *StdioServer) resourcesRead(ctx context.Context, id json.RawMessage, params json.RawMessage) jsonrpcResponse {
	var p struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.URI == "" {
		return jsonrpcResponse{
			JSONRPC: "2.0",
			ID:      id,
			Error:   &jsonrpcError{Code: dispatch.CodeInvalidParams, Message: "resources/read requires a uri"},
		}
	}
	name := strings.TrimPrefix(p.URI, "aidis://")
	return s.callTool(ctx, id, name, nil)
}

func (s *StdioServer) callTool(ctx context.Context, id json.RawMessage, name string, args map[string]any) jsonrpcResponse {
	opts := dispatch.CallOptions{
		SessionKey: session.DefaultKey,
		AgentType:  "mcp-client",
	}
	result, err := s.dispatcher.Call(ctx, opts, name, args)
	if err != nil {
		rpcErr := &jsonrpcError{
			Code:    dispatch.JSONRPCCode(err),
			Message: dispatch.UserMessage(err),
		}
		if detail, ok := dispatch.ValidationDetail(err); ok {
			rpcErr.Data = detail
		}
		return jsonrpcResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
	}

	text, merr := json.MarshalIndent(result, "", "  ")
	if merr != nil {
		text = []byte(fmt.Sprint(result))
	}
	return jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": string(text)},
			},
			"isError": false,
		},
	}
}

func (s *StdioServer) write(resp jsonrpcResponse) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.out.Encode(resp); err != nil {
		s.logger.Error(context.Background(), "write stdio response", "error", err)
	}
}
