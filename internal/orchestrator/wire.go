package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/colmena-dev/colmena/internal/budget"
	"github.com/colmena-dev/colmena/internal/cache"
	"github.com/colmena-dev/colmena/internal/config"
	"github.com/colmena-dev/colmena/internal/executor"
	"github.com/colmena-dev/colmena/internal/hive"
	"github.com/colmena-dev/colmena/internal/journal"
	"github.com/colmena-dev/colmena/internal/provider"
	"github.com/colmena-dev/colmena/internal/retry"
	"github.com/colmena-dev/colmena/internal/workflow"
)

// Build wires a production Orchestrator from configuration. The journal is
// optional; without it call attempts and tasks are not recorded locally and
// the budget starts from zero after a restart.
func Build(cfg config.Config, store *hive.Client, j *journal.Store) *Orchestrator {
	bt := budget.NewTracker(cfg.Budget.DailyMaxCalls, time.Now)
	if j != nil {
		dayStart := time.Now().UTC().Truncate(24 * time.Hour)
		if used, err := j.CallsSince(dayStart); err != nil {
			slog.Warn("could not restore budget from journal", "error", err)
		} else {
			bt.Restore(used)
		}
	}

	var inv provider.Invoker = provider.NewClient(cfg.Retry.CallTimeout.Std())
	if j != nil {
		inv = &journalingInvoker{next: inv, calls: j}
	}
	mgr := retry.NewManager(retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay.Std(),
		Jitter:      cfg.Retry.Jitter,
	}, bt)
	chain := provider.NewChain(cfg.Providers, provider.NewRetryingInvoker(inv, mgr))

	replies := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL.Std(), time.Now)

	validator := executor.NewCommandValidator(cfg.Executor.ValidationCommand, cfg.Executor.ValidationTimeout.Std())
	runner := executor.New(cfg.Executor.WorkspaceRoot, cfg.Executor.MaxFilesPerOrder, validator)

	tracker := workflow.NewTracker(store, time.Now)
	graph := workflow.NewDependencyGraph(cfg.Workers.Dependencies)

	var tasks TaskJournal
	if j != nil {
		tasks = j
	}

	return New(store, chain, replies, runner, tracker, graph, tasks, bt, Options{
		AgentName:      cfg.Agent.Name,
		SystemPrompt:   cfg.Agent.SystemPrompt,
		PollInterval:   cfg.Agent.PollInterval.Std(),
		ContextWindow:  cfg.Agent.ContextWindow,
		MaxTokens:      cfg.Agent.MaxTokens,
		IgnoredTypes:   cfg.Agent.IgnoredTypes,
		IgnoredAuthors: cfg.Agent.IgnoredAuthors,
	})
}

// CallRecorder persists one provider call attempt. Satisfied by journal.Store.
type CallRecorder interface {
	RecordCall(c journal.Call) error
}

// journalingInvoker records every individual call attempt, sitting between
// the retry manager and the HTTP client so retries are visible in the ledger.
type journalingInvoker struct {
	next  provider.Invoker
	calls CallRecorder
}

func (ji *journalingInvoker) Invoke(ctx context.Context, spec provider.Spec, apiKey string, req provider.Request) (provider.Reply, error) {
	reply, err := ji.next.Invoke(ctx, spec, apiKey, req)

	rec := journal.Call{
		ID:       uuid.New().String(),
		Provider: spec.Name,
		Model:    spec.Model,
		Outcome:  "ok",
		CalledAt: time.Now(),
	}
	if err != nil {
		rec.Outcome = "error"
	} else {
		rec.Tokens = reply.TokenCount
		rec.CalledAt = reply.CalledAt
	}
	if jerr := ji.calls.RecordCall(rec); jerr != nil {
		slog.Warn("could not journal provider call", "provider", spec.Name, "error", jerr)
	}

	return reply, err
}
