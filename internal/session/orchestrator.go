// Package session tracks per-connection sessions: the current project,
// activity counters, and the lifecycle from first request to idle
// expiry. The in-memory map is the only authoritative source of a
// session's current project; the database row is updated on state
// transitions but not consulted per request.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aidis-io/aidis/internal/observability"
	"github.com/aidis-io/aidis/internal/storage"
	"github.com/aidis-io/aidis/pkg/models"
)

// DefaultKey is the session key used by the stream transport, which
// serves one logical client per process.
const DefaultKey = "default-session"

// DefaultBootstrapProject is the conventionally-named fallback project
// used when no primary is set and the cache is cold.
const DefaultBootstrapProject = "aidis-bootstrap"

// DefaultIdleWindow ends sessions after this much inactivity.
const DefaultIdleWindow = 2 * time.Hour

// ErrNoProject reports that the session has no resolved current
// project and the tool requires one.
var ErrNoProject = errors.New("session has no current project")

// State is a read-only snapshot of one tracked session.
type State struct {
	ID           string
	Key          string
	DisplayID    string
	ProjectID    string
	AgentType    string
	StartedAt    time.Time
	LastActivity time.Time
	Pending      models.SessionCounters
}

type record struct {
	id           string
	displayID    string
	projectID    string
	agentType    string
	startedAt    time.Time
	lastActivity time.Time
	pending      models.SessionCounters
}

// remnant survives a map clear so a later request can re-adopt the
// session row and reuse the cached project at cascade step 2.
type remnant struct {
	sessionID string
	projectID string
}

// Config tunes the orchestrator.
type Config struct {
	BootstrapProject string
	IdleWindow       time.Duration
}

// Orchestrator owns the session map. The mutex guards only in-memory
// state; it is never held across database calls.
type Orchestrator struct {
	mu     sync.RWMutex
	active map[string]*record
	last   map[string]remnant

	projects storage.ProjectStore
	sessions storage.SessionStore
	logger   *observability.Logger
	metrics  *observability.Metrics

	bootstrap  string
	idleWindow time.Duration
	nowFunc    func() time.Time
}

// NewOrchestrator builds an orchestrator over the given stores.
func NewOrchestrator(projects storage.ProjectStore, sessions storage.SessionStore, logger *observability.Logger, metrics *observability.Metrics, cfg Config) *Orchestrator {
	if cfg.BootstrapProject == "" {
		cfg.BootstrapProject = DefaultBootstrapProject
	}
	if cfg.IdleWindow <= 0 {
		cfg.IdleWindow = DefaultIdleWindow
	}
	return &Orchestrator{
		active:     make(map[string]*record),
		last:       make(map[string]remnant),
		projects:   projects,
		sessions:   sessions,
		logger:     logger,
		metrics:    metrics,
		bootstrap:  cfg.BootstrapProject,
		idleWindow: cfg.IdleWindow,
		nowFunc:    time.Now,
	}
}

// SetNowFunc injects a clock for tests.
func (o *Orchestrator) SetNowFunc(fn func() time.Time) {
	o.nowFunc = fn
}

// Resolve returns the session for key, initializing it on first use:
// the current project is resolved through the priority cascade and a
// session row is created (or re-adopted after a cache clear).
func (o *Orchestrator) Resolve(ctx context.Context, key, agentType string) (State, error) {
	now := o.nowFunc()

	o.mu.Lock()
	if rec, ok := o.active[key]; ok {
		rec.lastActivity = now
		snap := o.snapshot(key, rec)
		o.mu.Unlock()
		return snap, nil
	}
	prior := o.last[key]
	o.mu.Unlock()

	projectID, err := o.resolveProject(ctx, prior.projectID)
	if err != nil {
		return State{}, err
	}

	sess, err := o.adoptOrCreate(ctx, prior.sessionID, projectID, agentType, now)
	if err != nil {
		return State{}, err
	}

	o.mu.Lock()
	if rec, ok := o.active[key]; ok {
		// Lost an initialization race; keep the winner and close the
		// row this goroutine just created so it doesn't linger open.
		rec.lastActivity = now
		snap := o.snapshot(key, rec)
		o.mu.Unlock()
		if sess.ID != snap.ID {
			if err := o.sessions.End(ctx, sess.ID, now); err != nil && !errors.Is(err, storage.ErrNotFound) {
				o.logger.Warn(ctx, "close abandoned session row", "session_id", sess.ID, "error", err)
			}
		}
		return snap, nil
	}
	rec := &record{
		id:           sess.ID,
		displayID:    sess.DisplayID,
		projectID:    projectID,
		agentType:    sess.AgentType,
		startedAt:    sess.StartedAt,
		lastActivity: now,
	}
	o.active[key] = rec
	delete(o.last, key)
	snap := o.snapshot(key, rec)
	count := len(o.active)
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.ActiveSessions.Set(float64(count))
	}
	o.logger.Info(ctx, "session initialized",
		"session_key", key,
		"session_id", sess.ID,
		"project_id", projectID,
	)
	return snap, nil
}

// resolveProject applies the priority cascade: database primary flag
// first, then the cached prior value, then the bootstrap project, then
// any project, then none. Primary-first is load-bearing: a stale cache
// must never pin a non-primary project past a promotion.
func (o *Orchestrator) resolveProject(ctx context.Context, cached string) (string, error) {
	primary, err := o.projects.GetPrimary(ctx)
	switch {
	case err == nil:
		return primary.ID, nil
	case !errors.Is(err, storage.ErrNotFound):
		return "", fmt.Errorf("resolve primary project: %w", err)
	}

	if cached != "" {
		return cached, nil
	}

	boot, err := o.projects.GetByName(ctx, o.bootstrap)
	switch {
	case err == nil:
		return boot.ID, nil
	case !errors.Is(err, storage.ErrNotFound):
		return "", fmt.Errorf("resolve bootstrap project: %w", err)
	}

	first, err := o.projects.First(ctx)
	switch {
	case err == nil:
		return first.ID, nil
	case !errors.Is(err, storage.ErrNotFound):
		return "", fmt.Errorf("scan projects: %w", err)
	}

	return "", nil
}

// adoptOrCreate reuses a still-active session row left behind by a
// cache clear, or creates a fresh row.
func (o *Orchestrator) adoptOrCreate(ctx context.Context, priorID, projectID, agentType string, now time.Time) (*models.Session, error) {
	if priorID != "" {
		sess, err := o.sessions.Get(ctx, priorID)
		if err == nil && sess.Active() {
			if sess.ProjectID != projectID {
				if err := o.sessions.SetProject(ctx, sess.ID, projectID); err != nil {
					return nil, fmt.Errorf("re-point session: %w", err)
				}
				sess.ProjectID = projectID
			}
			return sess, nil
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("look up prior session: %w", err)
		}
	}

	sess := &models.Session{
		ProjectID: projectID,
		AgentType: agentType,
		StartedAt: now,
	}
	if err := o.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// StartNew explicitly begins a fresh session for key, ending the
// current one first when active. The new session row carries the given
// title and agent descriptor.
func (o *Orchestrator) StartNew(ctx context.Context, key, title, agentType string) (State, error) {
	if err := o.End(ctx, key); err != nil {
		return State{}, err
	}
	o.mu.Lock()
	// Drop the remnant so Resolve creates a fresh row instead of
	// re-adopting the one just ended.
	delete(o.last, key)
	o.mu.Unlock()

	state, err := o.Resolve(ctx, key, agentType)
	if err != nil {
		return State{}, err
	}
	if title != "" {
		if err := o.sessions.UpdateInfo(ctx, state.ID, title, ""); err != nil {
			return State{}, fmt.Errorf("title new session: %w", err)
		}
	}
	return state, nil
}

// Record increments the in-memory activity counters for key. Unknown
// keys are ignored; counters only exist for active sessions.
func (o *Orchestrator) Record(key string, delta models.SessionCounters) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.active[key]
	if !ok {
		return
	}
	rec.pending.Add(delta)
	rec.lastActivity = o.nowFunc()
}

// SwitchProject re-points an active session at another project,
// writing through to the session row.
func (o *Orchestrator) SwitchProject(ctx context.Context, key, projectID string) error {
	o.mu.RLock()
	rec, ok := o.active[key]
	var id string
	if ok {
		id = rec.id
	}
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %q not active", key)
	}

	if err := o.sessions.SetProject(ctx, id, projectID); err != nil {
		return fmt.Errorf("switch project: %w", err)
	}

	o.mu.Lock()
	if rec, ok := o.active[key]; ok {
		rec.projectID = projectID
	}
	o.mu.Unlock()
	return nil
}

// UpdateInfo annotates the session row with title and description.
func (o *Orchestrator) UpdateInfo(ctx context.Context, key, title, description string) error {
	o.mu.RLock()
	rec, ok := o.active[key]
	var id string
	if ok {
		id = rec.id
	}
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %q not active", key)
	}
	return o.sessions.UpdateInfo(ctx, id, title, description)
}

// Snapshot returns a copy of the session state for key without
// initializing anything.
func (o *Orchestrator) Snapshot(key string) (State, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rec, ok := o.active[key]
	if !ok {
		return State{}, false
	}
	return o.snapshot(key, rec), true
}

// ActiveCount returns the number of sessions currently tracked.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// End flushes the session's counters, closes its row, and drops it
// from the map. Ending an untracked key is a no-op.
func (o *Orchestrator) End(ctx context.Context, key string) error {
	now := o.nowFunc()

	o.mu.Lock()
	rec, ok := o.active[key]
	if !ok {
		o.mu.Unlock()
		return nil
	}
	delete(o.active, key)
	delete(o.last, key)
	count := len(o.active)
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.ActiveSessions.Set(float64(count))
	}

	var firstErr error
	if !rec.pending.Zero() {
		if err := o.sessions.AddCounters(ctx, rec.id, rec.pending); err != nil {
			firstErr = fmt.Errorf("flush counters: %w", err)
		}
	}
	if err := o.sessions.End(ctx, rec.id, now); err != nil && !errors.Is(err, storage.ErrNotFound) {
		if firstErr == nil {
			firstErr = fmt.Errorf("end session: %w", err)
		}
	}
	o.logger.Info(ctx, "session ended", "session_key", key, "session_id", rec.id)
	return firstErr
}

// Clear flushes all pending counters and empties the map. Session rows
// stay open; the next request per key re-adopts its row and re-resolves
// the current project, so a fresh primary takes effect immediately.
func (o *Orchestrator) Clear(ctx context.Context) error {
	o.mu.Lock()
	cleared := o.active
	o.active = make(map[string]*record)
	for key, rec := range cleared {
		o.last[key] = remnant{sessionID: rec.id, projectID: rec.projectID}
	}
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.ActiveSessions.Set(0)
	}

	var firstErr error
	for key, rec := range cleared {
		if rec.pending.Zero() {
			continue
		}
		if err := o.sessions.AddCounters(ctx, rec.id, rec.pending); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush counters for %q: %w", key, err)
		}
	}
	o.logger.Info(ctx, "session cache cleared", "sessions", len(cleared))
	return firstErr
}

// FlushAll writes every session's pending counters to the database and
// zeroes them in memory. Run periodically so a crash loses at most one
// flush interval of activity.
func (o *Orchestrator) FlushAll(ctx context.Context) error {
	type flush struct {
		key     string
		id      string
		pending models.SessionCounters
	}

	o.mu.Lock()
	var flushes []flush
	for key, rec := range o.active {
		if rec.pending.Zero() {
			continue
		}
		flushes = append(flushes, flush{key: key, id: rec.id, pending: rec.pending})
		rec.pending = models.SessionCounters{}
	}
	o.mu.Unlock()

	var firstErr error
	for _, f := range flushes {
		if err := o.sessions.AddCounters(ctx, f.id, f.pending); err != nil {
			// Restore so the next flush retries the delta.
			o.mu.Lock()
			if rec, ok := o.active[f.key]; ok {
				rec.pending.Add(f.pending)
			}
			o.mu.Unlock()
			if firstErr == nil {
				firstErr = fmt.Errorf("flush counters for %q: %w", f.key, err)
			}
		}
	}
	return firstErr
}

// SweepIdle ends every session whose last activity is older than the
// idle window. Returns the number of sessions ended.
func (o *Orchestrator) SweepIdle(ctx context.Context) int {
	cutoff := o.nowFunc().Add(-o.idleWindow)

	o.mu.RLock()
	var expired []string
	for key, rec := range o.active {
		if rec.lastActivity.Before(cutoff) {
			expired = append(expired, key)
		}
	}
	o.mu.RUnlock()

	for _, key := range expired {
		if err := o.End(ctx, key); err != nil {
			o.logger.Warn(ctx, "idle sweep failed to end session", "session_key", key, "error", err)
		}
	}
	if len(expired) > 0 {
		o.logger.Info(ctx, "idle sweep ended sessions", "count", len(expired))
	}
	return len(expired)
}

func (o *Orchestrator) snapshot(key string, rec *record) State {
	return State{
		ID:           rec.id,
		Key:          key,
		DisplayID:    rec.displayID,
		ProjectID:    rec.projectID,
		AgentType:    rec.agentType,
		StartedAt:    rec.startedAt,
		LastActivity: rec.lastActivity,
		Pending:      rec.pending,
	}
}
