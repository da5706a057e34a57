// Package workflow tracks task lifecycles and worker dependencies.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/colmena-dev/colmena/internal/hive"
)

// ErrInvalidTransition is returned for any transition out of a terminal
// state or one that skips in_progress.
var ErrInvalidTransition = errors.New("invalid workflow transition")

// maxTerminalTasks bounds how many completed or failed tasks the in-memory
// mirror keeps for the status surfaces. The hive and the journal retain the
// durable record.
const maxTerminalTasks = 64

// StatusStore persists workflow status against the document store, which is
// authoritative. Satisfied by hive.Client.
type StatusStore interface {
	UpdateStatus(ctx context.Context, docID string, status hive.WorkflowStatus) error
}

// Task is the lifecycle record of one dispatched order.
type Task struct {
	OrderID     string              `json:"order_id"`
	Worker      string              `json:"worker"`
	Status      hive.WorkflowStatus `json:"status"`
	StartedAt   time.Time           `json:"started_at,omitempty"`
	CompletedAt time.Time           `json:"completed_at,omitempty"`
}

// Tracker drives the per-task state machine
// pending → in_progress → {completed | failed} and persists every
// transition to the store. It keeps only an in-memory mirror for the status
// surfaces; the hive remains the durable record.
type Tracker struct {
	store StatusStore

	mu    sync.Mutex
	tasks map[string]*Task
	now   func() time.Time
}

// NewTracker creates a Tracker persisting transitions through store.
func NewTracker(store StatusStore, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		store: store,
		tasks: make(map[string]*Task),
		now:   now,
	}
}

// Begin transitions orderID from pending to in_progress. Unknown orders are
// registered as pending first, matching the document they came from.
func (t *Tracker) Begin(ctx context.Context, orderID, worker string) error {
	t.mu.Lock()
	task, ok := t.tasks[orderID]
	if !ok {
		task = &Task{OrderID: orderID, Worker: worker, Status: hive.StatusPending}
		t.tasks[orderID] = task
	}
	if task.Status != hive.StatusPending {
		status := task.Status
		t.mu.Unlock()
		return fmt.Errorf("%w: %s is %s, want pending", ErrInvalidTransition, orderID, status)
	}
	task.Status = hive.StatusInProgress
	task.StartedAt = t.now()
	t.mu.Unlock()

	return t.persist(ctx, orderID, hive.StatusInProgress)
}

// Complete transitions orderID from in_progress to completed.
func (t *Tracker) Complete(ctx context.Context, orderID string) error {
	return t.finish(ctx, orderID, hive.StatusCompleted)
}

// Fail transitions orderID from in_progress to failed. Orders rejected
// before execution (scope or count violations) go through Begin first so the
// store records the attempt.
func (t *Tracker) Fail(ctx context.Context, orderID string) error {
	return t.finish(ctx, orderID, hive.StatusFailed)
}

func (t *Tracker) finish(ctx context.Context, orderID string, status hive.WorkflowStatus) error {
	t.mu.Lock()
	task, ok := t.tasks[orderID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: unknown order %s", ErrInvalidTransition, orderID)
	}
	if task.Status != hive.StatusInProgress {
		current := task.Status
		t.mu.Unlock()
		return fmt.Errorf("%w: %s is %s, want in_progress", ErrInvalidTransition, orderID, current)
	}
	task.Status = status
	task.CompletedAt = t.now()
	t.prune()
	t.mu.Unlock()

	return t.persist(ctx, orderID, status)
}

// prune drops the oldest terminal tasks once their number exceeds the cap.
// Callers hold mu.
func (t *Tracker) prune() {
	var terminal []*Task
	for _, task := range t.tasks {
		if task.Status.Terminal() {
			terminal = append(terminal, task)
		}
	}
	if len(terminal) <= maxTerminalTasks {
		return
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].CompletedAt.Before(terminal[j].CompletedAt)
	})
	for _, task := range terminal[:len(terminal)-maxTerminalTasks] {
		delete(t.tasks, task.OrderID)
	}
}

// Active reports whether worker has any task in pending or in_progress.
func (t *Tracker) Active(worker string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, task := range t.tasks {
		if task.Worker == worker && !task.Status.Terminal() {
			return true
		}
	}
	return false
}

// Tasks returns a snapshot of all tracked tasks.
func (t *Tracker) Tasks() []Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Task, 0, len(t.tasks))
	for _, task := range t.tasks {
		out = append(out, *task)
	}
	return out
}

func (t *Tracker) persist(ctx context.Context, orderID string, status hive.WorkflowStatus) error {
	if err := t.store.UpdateStatus(ctx, orderID, status); err != nil {
		return fmt.Errorf("persisting %s=%s: %w", orderID, status, err)
	}
	return nil
}
