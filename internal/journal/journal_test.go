package journal

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_RunsMigrations(t *testing.T) {
	s := openTestStore(t)

	// Both tables must exist after migration.
	if err := s.RecordCall(Call{ID: "c1", Provider: "deepseek", Outcome: "ok", CalledAt: time.Now()}); err != nil {
		t.Errorf("RecordCall on fresh store = %v", err)
	}
	if err := s.SaveTask(TaskRecord{OrderID: "o1", Worker: "w", Status: "pending", StartedAt: time.Now()}); err != nil {
		t.Errorf("SaveTask on fresh store = %v", err)
	}
}

func TestCallsSince(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Two calls today, one yesterday.
	for i, at := range []time.Time{
		base.Add(2 * time.Hour),
		base.Add(5 * time.Hour),
		base.Add(-3 * time.Hour),
	} {
		if err := s.RecordCall(Call{
			ID: fmt.Sprintf("c%d", i), Provider: "p", Outcome: "ok", CalledAt: at,
		}); err != nil {
			t.Fatalf("RecordCall: %v", err)
		}
	}

	n, err := s.CallsSince(base)
	if err != nil {
		t.Fatalf("CallsSince() = %v", err)
	}
	if n != 2 {
		t.Errorf("CallsSince(midnight) = %d, want 2", n)
	}
}

func TestSaveTask_Upsert(t *testing.T) {
	s := openTestStore(t)
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := s.SaveTask(TaskRecord{
		OrderID: "o1", Worker: "worker-core", Status: "in_progress", StartedAt: started,
	}); err != nil {
		t.Fatalf("SaveTask insert = %v", err)
	}
	if err := s.SaveTask(TaskRecord{
		OrderID: "o1", Worker: "worker-core", Status: "failed", Failure: "scope violation",
		StartedAt: started, FinishedAt: started.Add(time.Second),
	}); err != nil {
		t.Fatalf("SaveTask update = %v", err)
	}

	got, err := s.GetTask("o1")
	if err != nil {
		t.Fatalf("GetTask() = %v", err)
	}
	if got.Status != "failed" || got.Failure != "scope violation" {
		t.Errorf("GetTask() = %+v, want updated failed record", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.FinishedAt.IsZero() {
		t.Error("FinishedAt is zero, want set")
	}
}

func TestGetTask_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetTask("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask(missing) = %v, want ErrNotFound", err)
	}
}

func TestRecentTasks_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := range 3 {
		if err := s.SaveTask(TaskRecord{
			OrderID: fmt.Sprintf("o%d", i), Worker: "w", Status: "completed",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("SaveTask: %v", err)
		}
	}

	got, err := s.RecentTasks(2)
	if err != nil {
		t.Fatalf("RecentTasks() = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].OrderID != "o2" || got[1].OrderID != "o1" {
		t.Errorf("order = %s, %s; want o2, o1 (newest first)", got[0].OrderID, got[1].OrderID)
	}
}
