package localstore

import (
	"testing"
	"time"

	"clipforge/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func record(id string, state domain.JobState) domain.JobRecord {
	return domain.JobRecord{
		ID:            id,
		ProviderJobID: "task-" + id,
		Mode:          domain.ModeText,
		Model:         domain.ModelFast,
		DurationSec:   5,
		Cost:          500,
		State:         state,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestSaveReplacesAndPrepends(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save("dev-1", record("a", domain.JobStatePending)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save("dev-1", record("b", domain.JobStatePending)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	updated := record("a", domain.JobStateCompleted)
	if err := s.Save("dev-1", updated); err != nil {
		t.Fatalf("Save replace: %v", err)
	}

	got, err := s.List("dev-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "a" || got[0].State != domain.JobStateCompleted {
		t.Fatalf("newest record = %+v, want replaced record a first", got[0])
	}
}

func TestUpdatePatchesRecord(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save("dev-1", record("a", domain.JobStatePending)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	err := s.Update("dev-1", "a", func(r *domain.JobRecord) {
		r.State = domain.JobStateCompleted
		r.ResultURL = "https://cdn.example.com/a.mp4"
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.List("dev-1")
	if got[0].State != domain.JobStateCompleted || got[0].ResultURL == "" {
		t.Fatalf("patch not applied: %+v", got[0])
	}

	if err := s.Update("dev-1", "nope", func(*domain.JobRecord) {}); err != domain.ErrNotFound {
		t.Fatalf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	_ = s.Save("dev-1", record("a", domain.JobStatePending))
	_ = s.Save("dev-1", record("b", domain.JobStatePending))

	if err := s.Remove("dev-1", "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	got, _ := s.List("dev-1")
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("unexpected records after remove: %+v", got)
	}
	// Removing again is a no-op.
	if err := s.Remove("dev-1", "a"); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}
}

func TestListPendingAllSkipsTerminalAndUnsubmitted(t *testing.T) {
	s := newTestStore(t)
	_ = s.Save("dev-1", record("a", domain.JobStatePending))
	_ = s.Save("dev-1", record("b", domain.JobStateCompleted))
	noTask := record("c", domain.JobStatePending)
	noTask.ProviderJobID = ""
	_ = s.Save("dev-2", noTask)
	_ = s.Save("dev-2", record("d", domain.JobStatePending))

	pending, err := s.ListPendingAll()
	if err != nil {
		t.Fatalf("ListPendingAll: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(pending), pending)
	}
	for _, r := range pending {
		if r.State != domain.JobStatePending || r.ProviderJobID == "" {
			t.Fatalf("unexpected pending record: %+v", r)
		}
	}
}

func TestDeviceIDSanitized(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save("../../etc/passwd", record("a", domain.JobStatePending)); err != nil {
		t.Fatalf("Save with hostile device id: %v", err)
	}
	got, err := s.List("../../etc/passwd")
	if err != nil || len(got) != 1 {
		t.Fatalf("List with hostile device id: %v, %d records", err, len(got))
	}
}
