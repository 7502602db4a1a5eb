// Package dispatch routes validated tool calls to their handlers. Both
// transports call Dispatcher.Call with identical semantics; the only
// transport-specific work is envelope shaping.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/aidis-io/aidis/internal/catalog"
	"github.com/aidis-io/aidis/internal/observability"
	"github.com/aidis-io/aidis/internal/session"
	"github.com/aidis-io/aidis/internal/validate"
)

// DefaultTimeout bounds every handler invocation.
const DefaultTimeout = 30 * time.Second

// Request carries one validated tool invocation into a handler.
type Request struct {
	Tool       string
	Args       map[string]any
	SessionKey string
	// Session is the resolved session state. Zero for introspection
	// tools, which never require one.
	Session session.State
}

// Handler executes one tool. The args map has passed the validation
// pipeline; ctx carries the invocation deadline.
type Handler func(ctx context.Context, req *Request) (any, error)

// Config tunes the dispatcher.
type Config struct {
	Timeout time.Duration
	// DBPing verifies database connectivity for aidis_status.
	DBPing func(context.Context) error
}

// Dispatcher owns the catalog and the handler map.
type Dispatcher struct {
	catalog  *catalog.Catalog
	handlers map[string]Handler
	sessions *session.Orchestrator
	logger   *observability.Logger
	metrics  *observability.Metrics

	timeout   time.Duration
	dbPing    func(context.Context) error
	startTime time.Time
}

// New builds a dispatcher. Introspection tools are registered
// immediately; domain handlers attach through Register.
func New(cat *catalog.Catalog, sessions *session.Orchestrator, logger *observability.Logger, metrics *observability.Metrics, cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	d := &Dispatcher{
		catalog:   cat,
		handlers:  make(map[string]Handler),
		sessions:  sessions,
		logger:    logger,
		metrics:   metrics,
		timeout:   cfg.Timeout,
		dbPing:    cfg.DBPing,
		startTime: time.Now(),
	}
	d.registerIntrospection()
	return d
}

// Catalog returns the dispatcher's tool catalog.
func (d *Dispatcher) Catalog() *catalog.Catalog {
	return d.catalog
}

// Register attaches a handler to a catalog entry. Registering a name
// the catalog does not list is a programmer error.
func (d *Dispatcher) Register(name string, h Handler) {
	if _, err := d.catalog.Get(name); err != nil {
		panic(fmt.Sprintf("dispatch: register %q: no catalog entry", name))
	}
	d.handlers[name] = h
}

// CallOptions identify the caller for session resolution.
type CallOptions struct {
	SessionKey string
	AgentType  string
}

// Call dispatches one tool invocation: catalog lookup, validation,
// session resolution, handler execution under the deadline. The
// returned error carries the failure kind for the transport to map.
func (d *Dispatcher) Call(ctx context.Context, opts CallOptions, name string, rawArgs any) (result any, err error) {
	entry, err := d.catalog.Get(name)
	if err != nil {
		return nil, err
	}

	args, err := validate.Apply(entry, rawArgs)
	if err != nil {
		return nil, err
	}

	handler, ok := d.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, catalog.ErrUnknownTool)
	}

	req := &Request{
		Tool:       name,
		Args:       args,
		SessionKey: opts.SessionKey,
	}

	// Introspection tools skip session resolution entirely; they are
	// available before any project exists.
	if !catalog.Introspection[name] {
		state, rerr := d.sessions.Resolve(ctx, opts.SessionKey, opts.AgentType)
		if rerr != nil {
			return nil, rerr
		}
		req.Session = state
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	ctx = observability.WithSessionKey(ctx, opts.SessionKey)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(ctx, "tool handler panicked", "tool", name, "panic", fmt.Sprint(r))
			err = fmt.Errorf("%w: handler panic", ErrInternal)
		}
		d.observe(ctx, name, opts.SessionKey, time.Since(start), err)
	}()

	result, err = handler(ctx, req)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		err = context.DeadlineExceeded
	}
	return result, err
}

func (d *Dispatcher) observe(ctx context.Context, tool, sessionKey string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	if d.metrics != nil {
		d.metrics.ToolExecutions.WithLabelValues(tool, status).Inc()
		d.metrics.ToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
	}
	if err != nil {
		d.logger.Warn(ctx, "tool failed",
			"tool", tool,
			"session_key", sessionKey,
			"kind", Kind(err),
			"error", err,
			"elapsed_ms", elapsed.Milliseconds(),
		)
		return
	}
	d.logger.Debug(ctx, "tool succeeded",
		"tool", tool,
		"session_key", sessionKey,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}
