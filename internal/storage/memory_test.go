package storage

import (
	"context"
	"testing"

	"github.com/aidis-io/aidis/pkg/models"
)

// Stores hand out copies: mutating a returned entity never changes
// what a later read observes.
func TestMemoryStoresCloneOnRead(t *testing.T) {
	ctx := context.Background()
	stores := NewMemoryStores()

	project := &models.Project{Name: "p"}
	if err := stores.Projects.Create(ctx, project); err != nil {
		t.Fatal(err)
	}

	task := &models.Task{
		ProjectID:    project.ID,
		Title:        "t",
		Status:       models.TaskTodo,
		Priority:     models.PriorityMedium,
		Dependencies: []string{},
	}
	if err := stores.Tasks.Create(ctx, task); err != nil {
		t.Fatal(err)
	}

	dep := &models.Task{ProjectID: project.ID, Title: "dep", Status: models.TaskTodo, Priority: models.PriorityMedium}
	if err := stores.Tasks.Create(ctx, dep); err != nil {
		t.Fatal(err)
	}

	got, err := stores.Tasks.Get(ctx, project.ID, task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Title = "mutated"
	got.Dependencies = append(got.Dependencies, dep.ID)

	again, err := stores.Tasks.Get(ctx, project.ID, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Title != "t" {
		t.Errorf("Title = %q after caller mutation, want %q", again.Title, "t")
	}
	if len(again.Dependencies) != 0 {
		t.Errorf("Dependencies = %v after caller mutation, want empty", again.Dependencies)
	}

	p, err := stores.Projects.Get(ctx, project.ID)
	if err != nil {
		t.Fatal(err)
	}
	p.Metadata["is_primary"] = true
	p2, err := stores.Projects.Get(ctx, project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p2.IsPrimary() {
		t.Error("metadata mutation on a returned project leaked into the store")
	}
}
