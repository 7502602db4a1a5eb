package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aidis-io/aidis/internal/catalog"
	"github.com/aidis-io/aidis/internal/validate"
)

// registerIntrospection wires the always-available tools that describe
// the catalog and the server itself.
func (d *Dispatcher) registerIntrospection() {
	d.handlers["aidis_ping"] = d.handlePing
	d.handlers["aidis_status"] = d.handleStatus
	d.handlers["aidis_help"] = d.handleHelp
	d.handlers["aidis_explain"] = d.handleExplain
	d.handlers["aidis_examples"] = d.handleExamples
}

func (d *Dispatcher) handlePing(_ context.Context, req *Request) (any, error) {
	message := validate.Str(req.Args, "message")
	if message == "" {
		message = "pong"
	}
	return map[string]any{
		"status":    "ok",
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (d *Dispatcher) handleStatus(ctx context.Context, _ *Request) (any, error) {
	dbOK := true
	if d.dbPing != nil {
		if err := d.dbPing(ctx); err != nil {
			dbOK = false
		}
	}
	return map[string]any{
		"uptime_seconds": int64(time.Since(d.startTime).Seconds()),
		"database":       dbOK,
		"tool_count":     d.catalog.Len(),
		"open_sessions":  d.sessions.ActiveCount(),
	}, nil
}

func (d *Dispatcher) handleHelp(_ context.Context, _ *Request) (any, error) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("AIDIS tools (%d)\n", d.catalog.Len()))
	for _, category := range d.catalog.Categories() {
		b.WriteString("\n" + category + "\n")
		for _, e := range d.catalog.ByCategory(category) {
			b.WriteString(fmt.Sprintf("  %-22s %s\n", e.Name, e.Description))
		}
	}
	return map[string]any{
		"text":       b.String(),
		"tool_count": d.catalog.Len(),
		"categories": d.catalog.Categories(),
	}, nil
}

func (d *Dispatcher) handleExplain(_ context.Context, req *Request) (any, error) {
	name := validate.Str(req.Args, "name")
	entry, err := d.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"name":        entry.Name,
		"description": entry.Description,
		"category":    entry.Category,
		"schema":      catalog.JSONSchema(entry.Schema),
	}
	if len(entry.Aliases) > 0 {
		out["aliases"] = entry.Aliases
	}
	return out, nil
}

func (d *Dispatcher) handleExamples(_ context.Context, req *Request) (any, error) {
	name := validate.Str(req.Args, "name")
	entry, err := d.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"name":     entry.Name,
		"examples": entry.Examples,
	}, nil
}
