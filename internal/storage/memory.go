package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aidis-io/aidis/pkg/models"
)

// NewMemoryStores builds a fully in-memory StoreSet with the same
// semantics as the Postgres stores, including cosine-ranked context
// search. Intended for tests and local experimentation; nothing
// persists past the process.
func NewMemoryStores() StoreSet {
	return StoreSet{
		Projects:  &memoryProjectStore{projects: make(map[string]*models.Project)},
		Sessions:  &memorySessionStore{sessions: make(map[string]*models.Session)},
		Contexts:  &memoryContextStore{},
		Decisions: &memoryDecisionStore{decisions: make(map[string]*models.Decision)},
		Tasks:     &memoryTaskStore{tasks: make(map[string]*models.Task)},
	}
}

type memoryProjectStore struct {
	mu       sync.RWMutex
	projects map[string]*models.Project
}

func (s *memoryProjectStore) Create(ctx context.Context, project *models.Project) error {
	if project == nil || project.Name == "" {
		return fmt.Errorf("project name is required")
	}
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now
	if project.Metadata == nil {
		project.Metadata = map[string]any{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.projects {
		if existing.Name == project.Name {
			return fmt.Errorf("project %q: %w", project.Name, ErrConflict)
		}
	}
	s.projects[project.ID] = cloneProject(project)
	return nil
}

func (s *memoryProjectStore) Get(ctx context.Context, id string) (*models.Project, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	project, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProject(project), nil
}

func (s *memoryProjectStore) GetByName(ctx context.Context, name string) (*models.Project, error) {
	if name == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, project := range s.projects {
		if project.Name == name {
			return cloneProject(project), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryProjectStore) Find(ctx context.Context, ref string) (*models.Project, error) {
	if _, err := uuid.Parse(ref); err == nil {
		if project, err := s.Get(ctx, ref); err == nil {
			return project, nil
		}
	}
	return s.GetByName(ctx, ref)
}

func (s *memoryProjectStore) List(ctx context.Context) ([]*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	projects := make([]*models.Project, 0, len(s.projects))
	for _, project := range s.projects {
		projects = append(projects, cloneProject(project))
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Name < projects[j].Name
	})
	return projects, nil
}

func (s *memoryProjectStore) GetPrimary(ctx context.Context) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, project := range s.projects {
		if project.IsPrimary() {
			return cloneProject(project), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryProjectStore) SetPrimary(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.projects[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	for _, project := range s.projects {
		if project.ID != id && project.IsPrimary() {
			delete(project.Metadata, "is_primary")
			project.UpdatedAt = now
		}
	}
	if target.Metadata == nil {
		target.Metadata = map[string]any{}
	}
	target.Metadata["is_primary"] = true
	target.UpdatedAt = now
	return nil
}

func (s *memoryProjectStore) First(ctx context.Context) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, project := range s.projects {
		return cloneProject(project), nil
	}
	return nil, ErrNotFound
}

func cloneProject(p *models.Project) *models.Project {
	clone := *p
	if p.Metadata != nil {
		clone.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

type memorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

func (s *memorySessionStore) Create(ctx context.Context, session *models.Session) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	if session.DisplayID == "" {
		session.DisplayID = DisplayID(session.StartedAt, session.ID)
	}
	if session.Metadata == nil {
		session.Metadata = map[string]any{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s: %w", session.ID, ErrConflict)
	}
	clone := *session
	s.sessions[session.ID] = &clone
	return nil
}

func (s *memorySessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *session
	return &clone, nil
}

func (s *memorySessionStore) SetProject(ctx context.Context, id, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.ProjectID = projectID
	return nil
}

func (s *memorySessionStore) UpdateInfo(ctx context.Context, id, title, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if title != "" {
		session.Title = title
	}
	if description != "" {
		session.Description = description
	}
	return nil
}

func (s *memorySessionStore) AddCounters(ctx context.Context, id string, c models.SessionCounters) error {
	if c.Zero() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.InputTokens += c.InputTokens
	session.OutputTokens += c.OutputTokens
	session.TotalTokens += c.InputTokens + c.OutputTokens
	session.ContextsCreated += c.ContextsCreated
	session.TasksCreated += c.TasksCreated
	session.TasksUpdated += c.TasksUpdated
	session.TasksCompleted += c.TasksCompleted
	return nil
}

func (s *memorySessionStore) End(ctx context.Context, id string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.EndedAt != nil {
		return ErrNotFound
	}
	t := endedAt
	session.EndedAt = &t
	return nil
}

type memoryContextStore struct {
	mu      sync.RWMutex
	entries []*models.ContextEntry
}

func (s *memoryContextStore) Insert(ctx context.Context, entry *models.ContextEntry) error {
	if entry == nil || entry.ProjectID == "" {
		return fmt.Errorf("context entry with project id is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *entry
	s.entries = append(s.entries, &clone)
	return nil
}

func (s *memoryContextStore) Search(ctx context.Context, projectID string, queryEmbedding []float32, limit int, filter ContextFilter) ([]*models.ContextSearchResult, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	results := []*models.ContextSearchResult{}
	for _, entry := range s.entries {
		if entry.ProjectID != projectID {
			continue
		}
		if filter.Type != "" && entry.Type != filter.Type {
			continue
		}
		if len(filter.Tags) > 0 && !tagsOverlap(entry.Tags, filter.Tags) {
			continue
		}
		clone := *entry
		results = append(results, &models.ContextSearchResult{
			Entry:      &clone,
			Similarity: clampSimilarity(cosineSimilarity(queryEmbedding, entry.Embedding)),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Entry.CreatedAt.After(results[j].Entry.CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *memoryContextStore) Recent(ctx context.Context, projectID string, limit int) ([]*models.ContextEntry, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if limit <= 0 {
		limit = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := []*models.ContextEntry{}
	for _, entry := range s.entries {
		if entry.ProjectID != projectID {
			continue
		}
		clone := *entry
		entries = append(entries, &clone)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *memoryContextStore) Stats(ctx context.Context, projectID string) (*models.ContextStats, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &models.ContextStats{ByType: map[string]int{}}
	for _, entry := range s.entries {
		if entry.ProjectID != projectID {
			continue
		}
		stats.ByType[string(entry.Type)]++
		stats.Total++
	}
	return stats, nil
}

func tagsOverlap(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type memoryDecisionStore struct {
	mu        sync.RWMutex
	decisions map[string]*models.Decision
	order     []string
}

func (s *memoryDecisionStore) Create(ctx context.Context, decision *models.Decision) error {
	if decision == nil || decision.ProjectID == "" {
		return fmt.Errorf("decision with project id is required")
	}
	if decision.ID == "" {
		decision.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = now
	}
	decision.UpdatedAt = now
	if decision.Status == "" {
		decision.Status = models.DecisionActive
	}
	if decision.Alternatives == nil {
		decision.Alternatives = []string{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *decision
	s.decisions[decision.ID] = &clone
	s.order = append(s.order, decision.ID)
	return nil
}

func (s *memoryDecisionStore) Get(ctx context.Context, projectID, id string) (*models.Decision, error) {
	if projectID == "" || id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	decision, ok := s.decisions[id]
	if !ok || decision.ProjectID != projectID {
		return nil, ErrNotFound
	}
	clone := *decision
	return &clone, nil
}

func (s *memoryDecisionStore) Search(ctx context.Context, projectID string, filter DecisionFilter) ([]*models.Decision, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	needle := strings.ToLower(filter.Query)

	s.mu.RLock()
	defer s.mu.RUnlock()
	decisions := []*models.Decision{}
	// Walk newest-first so the limit keeps the most recent matches.
	for i := len(s.order) - 1; i >= 0 && len(decisions) < limit; i-- {
		decision := s.decisions[s.order[i]]
		if decision.ProjectID != projectID {
			continue
		}
		if filter.ImpactLevel != "" && decision.ImpactLevel != filter.ImpactLevel {
			continue
		}
		if filter.Status != "" && decision.Status != filter.Status {
			continue
		}
		if filter.Type != "" && decision.Type != filter.Type {
			continue
		}
		if needle != "" && !decisionMatches(decision, needle) {
			continue
		}
		clone := *decision
		decisions = append(decisions, &clone)
	}
	return decisions, nil
}

func decisionMatches(d *models.Decision, needle string) bool {
	return strings.Contains(strings.ToLower(d.Title), needle) ||
		strings.Contains(strings.ToLower(d.Description), needle) ||
		strings.Contains(strings.ToLower(d.Rationale), needle)
}

func (s *memoryDecisionStore) Update(ctx context.Context, projectID, id string, update DecisionUpdate) error {
	if projectID == "" || id == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	decision, ok := s.decisions[id]
	if !ok || decision.ProjectID != projectID {
		return ErrNotFound
	}
	if update.Status != nil {
		decision.Status = *update.Status
	}
	if update.Outcome != nil {
		decision.Outcome = *update.Outcome
	}
	if update.Lessons != nil {
		decision.Lessons = *update.Lessons
	}
	if update.SupersededBy != nil {
		decision.SupersededBy = *update.SupersededBy
	}
	decision.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryDecisionStore) Stats(ctx context.Context, projectID string) (*models.DecisionStats, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &models.DecisionStats{ByStatus: map[string]int{}, ByImpact: map[string]int{}}
	for _, decision := range s.decisions {
		if decision.ProjectID != projectID {
			continue
		}
		stats.ByStatus[string(decision.Status)]++
		stats.ByImpact[string(decision.ImpactLevel)]++
		stats.Total++
	}
	return stats, nil
}

type memoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
	order []string
}

func (s *memoryTaskStore) Create(ctx context.Context, task *models.Task) error {
	if task == nil || task.ProjectID == "" {
		return fmt.Errorf("task with project id is required")
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.TaskTodo
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if task.Type == "" {
		task.Type = "general"
	}
	if task.Dependencies == nil {
		task.Dependencies = []string{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := cloneTask(task)
	s.tasks[task.ID] = clone
	s.order = append(s.order, task.ID)
	return nil
}

func (s *memoryTaskStore) Get(ctx context.Context, projectID, id string) (*models.Task, error) {
	if projectID == "" || id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok || task.ProjectID != projectID {
		return nil, ErrNotFound
	}
	return cloneTask(task), nil
}

func (s *memoryTaskStore) List(ctx context.Context, projectID string, filter TaskFilter) ([]*models.Task, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := []*models.Task{}
	for i := len(s.order) - 1; i >= 0 && len(tasks) < limit; i-- {
		task := s.tasks[s.order[i]]
		if task.ProjectID != projectID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.AssignedTo != "" && task.AssignedTo != filter.AssignedTo {
			continue
		}
		tasks = append(tasks, cloneTask(task))
	}
	return tasks, nil
}

func (s *memoryTaskStore) Update(ctx context.Context, projectID, id string, update TaskUpdate) error {
	if projectID == "" || id == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.ProjectID != projectID {
		return ErrNotFound
	}
	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.Priority != nil {
		task.Priority = *update.Priority
	}
	if update.AssignedTo != nil {
		task.AssignedTo = *update.AssignedTo
	}
	if update.Dependencies != nil {
		task.Dependencies = append([]string(nil), (*update.Dependencies)...)
	}
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryTaskStore) Edges(ctx context.Context, projectID string) (map[string][]string, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	edges := map[string][]string{}
	for _, task := range s.tasks {
		if task.ProjectID != projectID {
			continue
		}
		edges[task.ID] = append([]string(nil), task.Dependencies...)
	}
	return edges, nil
}

func (s *memoryTaskStore) Statuses(ctx context.Context, projectID string, ids []string) (map[string]models.TaskStatus, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	statuses := map[string]models.TaskStatus{}
	for _, id := range ids {
		if task, ok := s.tasks[id]; ok && task.ProjectID == projectID {
			statuses[id] = task.Status
		}
	}
	return statuses, nil
}

func cloneTask(t *models.Task) *models.Task {
	clone := *t
	clone.Dependencies = append([]string(nil), t.Dependencies...)
	return &clone
}
