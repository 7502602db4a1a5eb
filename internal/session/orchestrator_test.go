package session

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/aidis-io/aidis/internal/observability"
	"github.com/aidis-io/aidis/internal/storage"
	"github.com/aidis-io/aidis/pkg/models"
)

func testOrchestrator(t *testing.T, cfg Config) (*Orchestrator, storage.StoreSet) {
	t.Helper()
	stores := storage.NewMemoryStores()
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	return NewOrchestrator(stores.Projects, stores.Sessions, logger, nil, cfg), stores
}

func mustCreateProject(t *testing.T, stores storage.StoreSet, name string) *models.Project {
	t.Helper()
	p := &models.Project{Name: name}
	if err := stores.Projects.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestResolveCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("no projects resolves to none", func(t *testing.T) {
		orch, _ := testOrchestrator(t, Config{})
		state, err := orch.Resolve(ctx, "k", "test-agent")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if state.ProjectID != "" {
			t.Errorf("ProjectID = %q, want empty", state.ProjectID)
		}
		if state.ID == "" {
			t.Error("session row was not created")
		}
	})

	t.Run("primary wins over bootstrap and first", func(t *testing.T) {
		orch, stores := testOrchestrator(t, Config{})
		mustCreateProject(t, stores, DefaultBootstrapProject)
		other := mustCreateProject(t, stores, "other")
		if err := stores.Projects.SetPrimary(ctx, other.ID); err != nil {
			t.Fatal(err)
		}

		state, err := orch.Resolve(ctx, "k", "test-agent")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if state.ProjectID != other.ID {
			t.Errorf("ProjectID = %q, want primary %q", state.ProjectID, other.ID)
		}
	})

	t.Run("bootstrap project when no primary", func(t *testing.T) {
		orch, stores := testOrchestrator(t, Config{})
		boot := mustCreateProject(t, stores, DefaultBootstrapProject)
		mustCreateProject(t, stores, "zzz")

		state, err := orch.Resolve(ctx, "k", "test-agent")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if state.ProjectID != boot.ID {
			t.Errorf("ProjectID = %q, want bootstrap %q", state.ProjectID, boot.ID)
		}
	})

	t.Run("any project as last resort", func(t *testing.T) {
		orch, stores := testOrchestrator(t, Config{})
		only := mustCreateProject(t, stores, "solo")

		state, err := orch.Resolve(ctx, "k", "test-agent")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if state.ProjectID != only.ID {
			t.Errorf("ProjectID = %q, want %q", state.ProjectID, only.ID)
		}
	})

	t.Run("second resolve reuses the session", func(t *testing.T) {
		orch, stores := testOrchestrator(t, Config{})
		mustCreateProject(t, stores, "solo")

		first, err := orch.Resolve(ctx, "k", "test-agent")
		if err != nil {
			t.Fatal(err)
		}
		second, err := orch.Resolve(ctx, "k", "test-agent")
		if err != nil {
			t.Fatal(err)
		}
		if first.ID != second.ID {
			t.Errorf("session id changed across resolves: %q then %q", first.ID, second.ID)
		}
		if orch.ActiveCount() != 1 {
			t.Errorf("ActiveCount() = %d, want 1", orch.ActiveCount())
		}
	})
}

// A promotion after the cache was cleared must take effect on the next
// request: the cached prior project never outranks a fresh primary.
func TestPrimaryBeatsClearedCache(t *testing.T) {
	ctx := context.Background()
	orch, stores := testOrchestrator(t, Config{})

	first := mustCreateProject(t, stores, "first")
	state, err := orch.Resolve(ctx, "k", "test-agent")
	if err != nil {
		t.Fatal(err)
	}
	if state.ProjectID != first.ID {
		t.Fatalf("initial ProjectID = %q, want %q", state.ProjectID, first.ID)
	}

	promoted := mustCreateProject(t, stores, "promoted")
	if err := stores.Projects.SetPrimary(ctx, promoted.ID); err != nil {
		t.Fatal(err)
	}
	if err := orch.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if orch.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d after Clear, want 0", orch.ActiveCount())
	}

	after, err := orch.Resolve(ctx, "k", "test-agent")
	if err != nil {
		t.Fatal(err)
	}
	if after.ProjectID != promoted.ID {
		t.Errorf("ProjectID = %q after promotion, want %q", after.ProjectID, promoted.ID)
	}
	// The open session row is re-adopted, not replaced.
	if after.ID != state.ID {
		t.Errorf("session id = %q, want re-adopted %q", after.ID, state.ID)
	}
	sess, err := stores.Sessions.Get(ctx, after.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.ProjectID != promoted.ID {
		t.Errorf("session row project = %q, want %q", sess.ProjectID, promoted.ID)
	}
}

func TestCounterFlush(t *testing.T) {
	ctx := context.Background()
	orch, stores := testOrchestrator(t, Config{})
	mustCreateProject(t, stores, "p")

	state, err := orch.Resolve(ctx, "k", "test-agent")
	if err != nil {
		t.Fatal(err)
	}

	orch.Record("k", models.SessionCounters{InputTokens: 100, OutputTokens: 40, ContextsCreated: 2})
	orch.Record("k", models.SessionCounters{InputTokens: 50})

	// Nothing persisted before the flush.
	sess, err := stores.Sessions.Get(ctx, state.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.InputTokens != 0 {
		t.Fatalf("InputTokens persisted early: %d", sess.InputTokens)
	}

	if err := orch.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll() error = %v", err)
	}
	sess, err = stores.Sessions.Get(ctx, state.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.InputTokens != 150 || sess.OutputTokens != 40 || sess.TotalTokens != 190 {
		t.Errorf("tokens = %d/%d/%d, want 150/40/190", sess.InputTokens, sess.OutputTokens, sess.TotalTokens)
	}
	if sess.ContextsCreated != 2 {
		t.Errorf("ContextsCreated = %d, want 2", sess.ContextsCreated)
	}

	// A second flush with no new activity writes nothing further.
	if err := orch.FlushAll(ctx); err != nil {
		t.Fatal(err)
	}
	sess, _ = stores.Sessions.Get(ctx, state.ID)
	if sess.InputTokens != 150 {
		t.Errorf("InputTokens = %d after idle flush, want 150", sess.InputTokens)
	}
}

func TestEndFlushesAndCloses(t *testing.T) {
	ctx := context.Background()
	orch, stores := testOrchestrator(t, Config{})
	mustCreateProject(t, stores, "p")

	state, err := orch.Resolve(ctx, "k", "test-agent")
	if err != nil {
		t.Fatal(err)
	}
	orch.Record("k", models.SessionCounters{InputTokens: 7})

	if err := orch.End(ctx, "k"); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	sess, err := stores.Sessions.Get(ctx, state.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.EndedAt == nil {
		t.Error("session row still open after End")
	}
	if sess.InputTokens != 7 {
		t.Errorf("InputTokens = %d, want flushed 7", sess.InputTokens)
	}
	if orch.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", orch.ActiveCount())
	}

	// Ending an untracked key is a no-op.
	if err := orch.End(ctx, "k"); err != nil {
		t.Errorf("End() on untracked key = %v, want nil", err)
	}
}

func TestStartNew(t *testing.T) {
	ctx := context.Background()
	orch, stores := testOrchestrator(t, Config{})
	mustCreateProject(t, stores, "p")

	old, err := orch.Resolve(ctx, "k", "test-agent")
	if err != nil {
		t.Fatal(err)
	}

	state, err := orch.StartNew(ctx, "k", "fresh work", "test-agent")
	if err != nil {
		t.Fatalf("StartNew() error = %v", err)
	}
	if state.ID == old.ID {
		t.Error("StartNew reused the old session row")
	}

	ended, err := stores.Sessions.Get(ctx, old.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ended.EndedAt == nil {
		t.Error("old session row still open")
	}
	fresh, err := stores.Sessions.Get(ctx, state.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Title != "fresh work" {
		t.Errorf("title = %q, want %q", fresh.Title, "fresh work")
	}
}

func TestSweepIdle(t *testing.T) {
	ctx := context.Background()
	orch, stores := testOrchestrator(t, Config{IdleWindow: 2 * time.Hour})
	mustCreateProject(t, stores, "p")

	now := time.Date(2025, 8, 24, 12, 0, 0, 0, time.UTC)
	orch.SetNowFunc(func() time.Time { return now })

	idle, err := orch.Resolve(ctx, "idle", "test-agent")
	if err != nil {
		t.Fatal(err)
	}

	// Advance past the window, then touch a second session so only the
	// first is stale.
	now = now.Add(2*time.Hour + time.Minute)
	busy, err := orch.Resolve(ctx, "busy", "test-agent")
	if err != nil {
		t.Fatal(err)
	}

	if got := orch.SweepIdle(ctx); got != 1 {
		t.Fatalf("SweepIdle() = %d, want 1", got)
	}

	idleRow, err := stores.Sessions.Get(ctx, idle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if idleRow.EndedAt == nil {
		t.Error("idle session not ended")
	}
	busyRow, err := stores.Sessions.Get(ctx, busy.ID)
	if err != nil {
		t.Fatal(err)
	}
	if busyRow.EndedAt != nil {
		t.Error("active session was swept")
	}

	if got := orch.SweepIdle(ctx); got != 0 {
		t.Errorf("second SweepIdle() = %d, want 0", got)
	}
}

// racingSessionStore records every created row and runs a one-shot
// hook after the first Create, letting a test interleave a competing
// initialization between row creation and map installation.
type racingSessionStore struct {
	storage.SessionStore
	created     []string
	afterCreate func()
}

func (s *racingSessionStore) Create(ctx context.Context, sess *models.Session) error {
	if err := s.SessionStore.Create(ctx, sess); err != nil {
		return err
	}
	s.created = append(s.created, sess.ID)
	if fn := s.afterCreate; fn != nil {
		s.afterCreate = nil
		fn()
	}
	return nil
}

// Two concurrent first resolves for one key: the loser adopts the
// winner's session and closes the row it created instead of leaving it
// open forever.
func TestResolveRaceClosesLoserRow(t *testing.T) {
	ctx := context.Background()
	stores := storage.NewMemoryStores()
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	racing := &racingSessionStore{SessionStore: stores.Sessions}
	orch := NewOrchestrator(stores.Projects, racing, logger, nil, Config{})
	mustCreateProject(t, stores, "p")

	var winner State
	racing.afterCreate = func() {
		w, err := orch.Resolve(ctx, "k", "test-agent")
		if err != nil {
			t.Errorf("competing Resolve() error = %v", err)
		}
		winner = w
	}

	loser, err := orch.Resolve(ctx, "k", "test-agent")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(racing.created) != 2 {
		t.Fatalf("created %d session rows, want 2", len(racing.created))
	}
	if loser.ID != winner.ID {
		t.Errorf("race loser returned session %q, want winner %q", loser.ID, winner.ID)
	}

	abandoned, err := stores.Sessions.Get(ctx, racing.created[0])
	if err != nil {
		t.Fatal(err)
	}
	if abandoned.EndedAt == nil {
		t.Error("abandoned session row still open")
	}
	kept, err := stores.Sessions.Get(ctx, winner.ID)
	if err != nil {
		t.Fatal(err)
	}
	if kept.EndedAt != nil {
		t.Error("winning session row was ended")
	}
	if orch.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", orch.ActiveCount())
	}
}

func TestSwitchProject(t *testing.T) {
	ctx := context.Background()
	orch, stores := testOrchestrator(t, Config{})
	mustCreateProject(t, stores, "p")
	target := mustCreateProject(t, stores, "target")

	state, err := orch.Resolve(ctx, "k", "test-agent")
	if err != nil {
		t.Fatal(err)
	}
	if err := orch.SwitchProject(ctx, "k", target.ID); err != nil {
		t.Fatalf("SwitchProject() error = %v", err)
	}

	snap, ok := orch.Snapshot("k")
	if !ok || snap.ProjectID != target.ID {
		t.Errorf("Snapshot project = %q, want %q", snap.ProjectID, target.ID)
	}
	sess, err := stores.Sessions.Get(ctx, state.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.ProjectID != target.ID {
		t.Errorf("row project = %q, want %q", sess.ProjectID, target.ID)
	}

	if err := orch.SwitchProject(ctx, "unknown", target.ID); err == nil {
		t.Error("SwitchProject() on unknown key = nil, want error")
	}
}
