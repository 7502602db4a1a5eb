package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/aidis-io/aidis/pkg/models"
)

func mockStores(t *testing.T) (StoreSet, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return NewStoresFromDB(db), mock
}

func TestProjectCreateSQL(t *testing.T) {
	stores, mock := mockStores(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO projects`)).
		WithArgs(sqlmock.AnyArg(), "billing", "invoices", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	project := &models.Project{Name: "billing", Description: "invoices"}
	if err := stores.Projects.Create(context.Background(), project); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if project.ID == "" {
		t.Error("Create() did not assign an id")
	}
	if project.CreatedAt.IsZero() || project.UpdatedAt.IsZero() {
		t.Error("Create() did not stamp timestamps")
	}
}

func TestProjectCreateDuplicate(t *testing.T) {
	stores, mock := mockStores(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO projects`)).
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "projects_name_key"`))

	err := stores.Projects.Create(context.Background(), &models.Project{Name: "billing"})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Create() error = %v, want ErrConflict", err)
	}
}

func TestProjectGetNotFound(t *testing.T) {
	stores, mock := mockStores(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, description, metadata, created_at, updated_at FROM projects WHERE id = $1`)).
		WithArgs("6f0c9b1e-6e4c-4c7a-9d1e-2f8b51a0c001").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "metadata", "created_at", "updated_at"}))

	_, err := stores.Projects.Get(context.Background(), "6f0c9b1e-6e4c-4c7a-9d1e-2f8b51a0c001")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

// SetPrimary clears the old flag and sets the new one inside a single
// transaction, committing only when the target row exists.
func TestProjectSetPrimaryTransaction(t *testing.T) {
	stores, mock := mockStores(t)
	const id = "6f0c9b1e-6e4c-4c7a-9d1e-2f8b51a0c001"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`metadata - 'is_primary'`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`jsonb_set(metadata, '{is_primary}', 'true'::jsonb)`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := stores.Projects.SetPrimary(context.Background(), id); err != nil {
		t.Errorf("SetPrimary() error = %v", err)
	}
}

func TestProjectSetPrimaryMissingTarget(t *testing.T) {
	stores, mock := mockStores(t)
	const id = "6f0c9b1e-6e4c-4c7a-9d1e-2f8b51a0c002"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`metadata - 'is_primary'`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`jsonb_set`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := stores.Projects.SetPrimary(context.Background(), id)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SetPrimary() error = %v, want ErrNotFound", err)
	}
}

func TestSessionAddCountersSQL(t *testing.T) {
	stores, mock := mockStores(t)
	const id = "5b2a1c3d-0000-4000-8000-000000000001"

	mock.ExpectExec(regexp.QuoteMeta(`total_tokens = total_tokens + $2 + $3`)).
		WithArgs(id, int64(100), int64(40), int64(2), int64(0), int64(0), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := stores.Sessions.AddCounters(context.Background(), id, models.SessionCounters{
		InputTokens:     100,
		OutputTokens:    40,
		ContextsCreated: 2,
	})
	if err != nil {
		t.Errorf("AddCounters() error = %v", err)
	}
}

// Zero deltas never touch the database.
func TestSessionAddCountersZeroSkipsWrite(t *testing.T) {
	stores, _ := mockStores(t)
	if err := stores.Sessions.AddCounters(context.Background(), "any", models.SessionCounters{}); err != nil {
		t.Errorf("AddCounters() error = %v", err)
	}
}

func TestSessionEndAlreadyEnded(t *testing.T) {
	stores, mock := mockStores(t)
	const id = "5b2a1c3d-0000-4000-8000-000000000002"

	mock.ExpectExec(regexp.QuoteMeta(`SET ended_at = $2 WHERE id = $1 AND ended_at IS NULL`)).
		WithArgs(id, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := stores.Sessions.End(context.Background(), id, time.Now().UTC())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("End() error = %v, want ErrNotFound", err)
	}
}

func TestDisplayID(t *testing.T) {
	startedAt := time.Date(2025, 8, 24, 9, 30, 0, 0, time.UTC)
	got := DisplayID(startedAt, "4f3a2b1c-9d8e-4f00-8000-000000000000")
	if got != "20250824-4f3a2b1c" {
		t.Errorf("DisplayID() = %q, want 20250824-4f3a2b1c", got)
	}
}
