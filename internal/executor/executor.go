// Package executor applies worker orders to the file tree: scope and size
// gates first, then backup, apply, validate, and rollback on failure.
// Execution is all-or-nothing per order.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/colmena-dev/colmena/internal/action"
)

var (
	// ErrScopeViolation means an instruction targets a path outside the
	// order's declared scope. Nothing has been written when it is returned.
	ErrScopeViolation = errors.New("file outside order scope")

	// ErrTooManyFiles means the order touches more distinct files than the
	// configured per-order maximum. Nothing has been written.
	ErrTooManyFiles = errors.New("order exceeds file limit")

	// ErrValidationFailed means the post-apply gate rejected the changes and
	// every file was rolled back to its prior content.
	ErrValidationFailed = errors.New("validation gate failed")
)

// Validator is the gate run after an order's changes are applied. A non-nil
// error triggers rollback.
type Validator interface {
	Validate(ctx context.Context, dir string) error
}

// Report is the outcome of one order execution.
type Report struct {
	OrderID    string    `json:"order_id"`
	Worker     string    `json:"worker"`
	Applied    []string  `json:"applied,omitempty"`
	Failure    string    `json:"failure,omitempty"`
	RolledBack bool      `json:"rolled_back,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Executor runs orders against a workspace root. The scope check is enforced
// unconditionally: it never trusts that concurrently running instances have
// disjoint scopes.
type Executor struct {
	root      string
	maxFiles  int
	validator Validator
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an Executor rooted at root. Relative scope directories and
// file paths resolve against it. maxFiles caps distinct files per order.
func New(root string, maxFiles int, validator Validator) *Executor {
	return &Executor{
		root:      root,
		maxFiles:  maxFiles,
		validator: validator,
		logger:    slog.Default(),
		now:       time.Now,
	}
}

// backup captures one file's pre-mutation state for rollback.
type backup struct {
	path    string
	existed bool
	content []byte
	mode    os.FileMode
}

// Execute runs ord through the gates. The returned Report is valid even on
// error; the error carries the sentinel describing which gate failed.
func (e *Executor) Execute(ctx context.Context, orderID string, ord action.Order) (Report, error) {
	report := Report{
		OrderID:   orderID,
		Worker:    ord.Worker,
		StartedAt: e.now(),
	}
	finish := func(err error) (Report, error) {
		report.FinishedAt = e.now()
		if err != nil {
			report.Failure = err.Error()
		}
		return report, err
	}

	// Gate 1: every path must resolve inside a declared scope directory
	// before anything is written.
	resolved := make([]string, len(ord.Files))
	for i, f := range ord.Files {
		abs, err := e.resolve(ord.Scope, f.Path)
		if err != nil {
			return finish(err)
		}
		resolved[i] = abs
	}

	// Gate 2: distinct file count.
	distinct := make(map[string]struct{}, len(resolved))
	for _, p := range resolved {
		distinct[p] = struct{}{}
	}
	if len(distinct) > e.maxFiles {
		return finish(fmt.Errorf("%w: %d files, limit %d", ErrTooManyFiles, len(distinct), e.maxFiles))
	}

	// Gate 3: backup originals before any mutation.
	backups := make([]backup, 0, len(distinct))
	seen := make(map[string]struct{}, len(distinct))
	for _, p := range resolved {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		b, err := snapshot(p)
		if err != nil {
			return finish(fmt.Errorf("backing up %s: %w", p, err))
		}
		backups = append(backups, b)
	}

	// Gate 4: apply.
	for i, f := range ord.Files {
		if err := e.apply(resolved[i], f); err != nil {
			e.restore(backups)
			report.RolledBack = true
			report.Applied = nil
			return finish(fmt.Errorf("applying %s: %w", f.Path, err))
		}
		report.Applied = append(report.Applied, f.Path)
	}

	// Gate 5: validation decides commit vs rollback.
	if e.validator != nil {
		if err := e.validator.Validate(ctx, e.root); err != nil {
			e.restore(backups)
			report.RolledBack = true
			report.Applied = nil
			return finish(fmt.Errorf("%w: %v", ErrValidationFailed, err))
		}
	}

	return finish(nil)
}

// resolve maps p to an absolute path and verifies it lies inside one of the
// order's scope directories. Symlinks in both the candidate and the scope
// are resolved first, so a link planted inside a scope directory cannot
// redirect a write outside it. Relative paths and scopes resolve against the
// executor root.
func (e *Executor) resolve(scope []string, p string) (string, error) {
	candidate := filepath.Clean(p)
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(e.root, candidate)
	}
	real, err := resolveSymlinks(candidate)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", p, err)
	}

	for _, dir := range scope {
		scopeDir := filepath.Clean(dir)
		if !filepath.IsAbs(scopeDir) {
			scopeDir = filepath.Join(e.root, scopeDir)
		}
		realScope, err := resolveSymlinks(scopeDir)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(realScope, real)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return real, nil
		}
	}
	return "", fmt.Errorf("%w: %s not under %v", ErrScopeViolation, p, scope)
}

// resolveSymlinks evaluates symlinks in the deepest existing ancestor of
// path and reattaches the not-yet-existing suffix unchanged.
func resolveSymlinks(path string) (string, error) {
	suffix := ""
	dir := path
	for {
		if _, err := os.Lstat(dir); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		suffix = filepath.Join(filepath.Base(dir), suffix)
		dir = parent
	}
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(real, suffix), nil
}

// snapshot records the current state of path for rollback.
func snapshot(path string) (backup, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return backup{path: path}, nil
	}
	if err != nil {
		return backup{}, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return backup{}, err
	}
	return backup{path: path, existed: true, content: content, mode: info.Mode()}, nil
}

func (e *Executor) apply(abs string, f action.FileInstruction) error {
	if f.Delete {
		err := os.Remove(abs)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, []byte(f.Content), 0o644)
}

// restore puts every backed-up file back to its exact prior bytes; files the
// order created are removed.
func (e *Executor) restore(backups []backup) {
	for _, b := range backups {
		var err error
		if b.existed {
			err = os.WriteFile(b.path, b.content, b.mode)
		} else {
			err = os.Remove(b.path)
			if os.IsNotExist(err) {
				err = nil
			}
		}
		if err != nil {
			e.logger.Error("rollback failed for file", "path", b.path, "error", err)
		}
	}
}
