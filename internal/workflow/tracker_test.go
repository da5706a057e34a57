package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/colmena-dev/colmena/internal/hive"
)

// memStore records persisted transitions in order.
type memStore struct {
	updates []string
	err     error
}

func (s *memStore) UpdateStatus(ctx context.Context, docID string, status hive.WorkflowStatus) error {
	s.updates = append(s.updates, docID+"="+string(status))
	return s.err
}

func testClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestTracker_FullLifecycle(t *testing.T) {
	store := &memStore{}
	tr := NewTracker(store, testClock)
	ctx := context.Background()

	if err := tr.Begin(ctx, "doc-1", "worker-core"); err != nil {
		t.Fatalf("Begin() = %v", err)
	}
	if !tr.Active("worker-core") {
		t.Error("Active() = false after Begin, want true")
	}
	if err := tr.Complete(ctx, "doc-1"); err != nil {
		t.Fatalf("Complete() = %v", err)
	}
	if tr.Active("worker-core") {
		t.Error("Active() = true after Complete, want false")
	}

	want := []string{"doc-1=in_progress", "doc-1=completed"}
	if len(store.updates) != 2 || store.updates[0] != want[0] || store.updates[1] != want[1] {
		t.Errorf("persisted = %v, want %v", store.updates, want)
	}
}

func TestTracker_FailPath(t *testing.T) {
	store := &memStore{}
	tr := NewTracker(store, testClock)
	ctx := context.Background()

	if err := tr.Begin(ctx, "doc-2", "w"); err != nil {
		t.Fatalf("Begin() = %v", err)
	}
	if err := tr.Fail(ctx, "doc-2"); err != nil {
		t.Fatalf("Fail() = %v", err)
	}

	tasks := tr.Tasks()
	if len(tasks) != 1 || tasks[0].Status != hive.StatusFailed {
		t.Errorf("Tasks() = %+v, want one failed task", tasks)
	}
}

func TestTracker_TerminalStatesAbsorb(t *testing.T) {
	store := &memStore{}
	tr := NewTracker(store, testClock)
	ctx := context.Background()

	tr.Begin(ctx, "doc-3", "w")
	tr.Complete(ctx, "doc-3")

	if err := tr.Begin(ctx, "doc-3", "w"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Begin() on completed = %v, want ErrInvalidTransition", err)
	}
	if err := tr.Fail(ctx, "doc-3"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fail() on completed = %v, want ErrInvalidTransition", err)
	}

	// No extra persistence beyond the two valid transitions.
	if len(store.updates) != 2 {
		t.Errorf("persisted %d transitions, want 2: %v", len(store.updates), store.updates)
	}
}

func TestTracker_FinishRequiresInProgress(t *testing.T) {
	tr := NewTracker(&memStore{}, testClock)
	ctx := context.Background()

	if err := tr.Complete(ctx, "never-seen"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Complete() on unknown = %v, want ErrInvalidTransition", err)
	}
}

func TestTracker_ActivePerWorker(t *testing.T) {
	tr := NewTracker(&memStore{}, testClock)
	ctx := context.Background()

	tr.Begin(ctx, "doc-a", "worker-a")

	if !tr.Active("worker-a") {
		t.Error("Active(worker-a) = false, want true")
	}
	if tr.Active("worker-b") {
		t.Error("Active(worker-b) = true, want false")
	}
}

func TestTracker_PrunesOldTerminalTasks(t *testing.T) {
	clock := testClock()
	tr := NewTracker(&memStore{}, func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	ctx := context.Background()

	total := maxTerminalTasks + 10
	for i := range total {
		id := fmt.Sprintf("doc-%d", i)
		if err := tr.Begin(ctx, id, "w"); err != nil {
			t.Fatalf("Begin(%s) = %v", id, err)
		}
		if err := tr.Complete(ctx, id); err != nil {
			t.Fatalf("Complete(%s) = %v", id, err)
		}
	}

	tasks := tr.Tasks()
	if len(tasks) != maxTerminalTasks {
		t.Fatalf("len(Tasks()) = %d, want cap %d", len(tasks), maxTerminalTasks)
	}
	// The oldest finished tasks are the ones dropped.
	for _, task := range tasks {
		if task.OrderID == "doc-0" {
			t.Error("oldest terminal task survived pruning")
		}
	}
}

func TestGraph_Ready(t *testing.T) {
	g := NewDependencyGraph(map[string][]string{
		"worker-ui":   {"worker-core"},
		"worker-core": nil,
	})

	busyCore := func(w string) bool { return w == "worker-core" }
	idle := func(string) bool { return false }

	if g.Ready("worker-ui", busyCore) {
		t.Error("Ready(worker-ui) = true while its dependency is busy, want false")
	}
	if !g.Ready("worker-ui", idle) {
		t.Error("Ready(worker-ui) = false with idle dependency, want true")
	}
	if !g.Ready("worker-core", busyCore) {
		t.Error("Ready(worker-core) = false, want true (no dependencies)")
	}
}

func TestGraph_WorkersAndKnown(t *testing.T) {
	g := NewDependencyGraph(map[string][]string{
		"b": nil,
		"a": {"b"},
	})

	workers := g.Workers()
	if len(workers) != 2 || workers[0] != "a" || workers[1] != "b" {
		t.Errorf("Workers() = %v, want [a b]", workers)
	}
	if !g.Known("a") || g.Known("c") {
		t.Error("Known() misreported configured workers")
	}
}
