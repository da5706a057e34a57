// Package orchestrator runs the decision cycle: poll the hive, build a
// context window, consult the cache or the provider chain, parse the reply
// into an action, and dispatch it.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/colmena-dev/colmena/internal/action"
	"github.com/colmena-dev/colmena/internal/budget"
	"github.com/colmena-dev/colmena/internal/cache"
	"github.com/colmena-dev/colmena/internal/executor"
	"github.com/colmena-dev/colmena/internal/hive"
	"github.com/colmena-dev/colmena/internal/journal"
	"github.com/colmena-dev/colmena/internal/provider"
	"github.com/colmena-dev/colmena/internal/workflow"
)

// HiveStore is the document store surface the orchestrator consumes.
// Satisfied by hive.Client.
type HiveStore interface {
	Health(ctx context.Context) bool
	Recent(ctx context.Context, limit int) ([]hive.Document, error)
	Pending(ctx context.Context, worker string) ([]hive.Document, error)
	Publish(ctx context.Context, pub hive.PublishRequest) (hive.Document, error)
}

// Brain produces one reply for a request, however many providers that
// takes. Satisfied by provider.Chain.
type Brain interface {
	Call(ctx context.Context, req provider.Request) (provider.Reply, error)
}

// OrderRunner executes one worker order. Satisfied by executor.Executor.
type OrderRunner interface {
	Execute(ctx context.Context, orderID string, ord action.Order) (executor.Report, error)
}

// TaskJournal records task outcomes locally. Satisfied by journal.Store;
// may be nil, journaling is telemetry only.
type TaskJournal interface {
	SaveTask(r journal.TaskRecord) error
}

// Options carries the per-daemon settings the cycle needs.
type Options struct {
	AgentName      string
	SystemPrompt   string
	PollInterval   time.Duration
	ContextWindow  int
	MaxTokens      int
	IgnoredTypes   []string
	IgnoredAuthors []string
}

// CycleSummary describes the last completed cycle for the status surfaces.
type CycleSummary struct {
	At        time.Time `json:"at"`
	Documents int       `json:"documents"`
	CacheHit  bool      `json:"cache_hit"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
}

// Orchestrator owns one decision loop. No overlapping cycles: Run executes
// cycles strictly in sequence.
type Orchestrator struct {
	store   HiveStore
	brain   Brain
	replies *cache.ResponseCache
	runner  OrderRunner
	tracker *workflow.Tracker
	graph   *workflow.DependencyGraph
	tasks   TaskJournal
	budget  *budget.Tracker
	opts    Options
	logger  *slog.Logger

	mu        sync.Mutex
	lastCycle *CycleSummary
}

// New assembles an Orchestrator from its collaborators.
func New(store HiveStore, brain Brain, replies *cache.ResponseCache, runner OrderRunner,
	tracker *workflow.Tracker, graph *workflow.DependencyGraph, tasks TaskJournal,
	bt *budget.Tracker, opts Options) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Minute
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = 20
	}
	return &Orchestrator{
		store:   store,
		brain:   brain,
		replies: replies,
		runner:  runner,
		tracker: tracker,
		graph:   graph,
		tasks:   tasks,
		budget:  bt,
		opts:    opts,
		logger:  slog.Default(),
	}
}

// Run polls and decides until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := o.RunOnce(ctx); err != nil {
			o.logger.Error("cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(o.opts.PollInterval):
		}
	}
}

// RunOnce executes a single cycle. Errors abort only the current cycle; the
// next poll starts fresh.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	summary := CycleSummary{At: time.Now(), Action: string(action.KindNoOp), Outcome: "ok"}
	defer func() {
		o.mu.Lock()
		o.lastCycle = &summary
		o.mu.Unlock()
	}()

	if !o.store.Health(ctx) {
		summary.Outcome = "hive unreachable"
		o.logger.Warn("hive store unreachable, skipping cycle")
		return nil
	}

	win, pending, err := o.collect(ctx)
	if err != nil {
		summary.Outcome = "poll failed"
		return fmt.Errorf("polling hive: %w", err)
	}
	summary.Documents = len(win.docs)

	if win.empty() {
		o.logger.Debug("no documents in window, nothing to decide")
		return nil
	}
	if win.haltedForEscalation(o.opts.AgentName) {
		summary.Outcome = "halted on open escalation"
		o.logger.Info("open escalation pending human follow-up, holding cycle")
		return nil
	}

	contextText := win.render()
	fingerprint := cache.Fingerprint(contextText, o.opts.SystemPrompt)

	reply, hit := o.replies.Get(fingerprint)
	summary.CacheHit = hit
	if !hit {
		reply, err = o.brain.Call(ctx, provider.Request{
			System:    o.opts.SystemPrompt,
			Prompt:    contextText,
			MaxTokens: o.opts.MaxTokens,
		})
		if err != nil {
			summary.Outcome = classifyBrainError(err)
			return fmt.Errorf("deciding action: %w", err)
		}
		o.replies.Put(fingerprint, reply)
	}

	act := action.Parse(reply.Text)
	summary.Action = string(act.Kind)

	if err := o.dispatch(ctx, act, pending, &summary); err != nil {
		return err
	}

	o.logger.Info("cycle complete",
		"documents", summary.Documents,
		"cache_hit", summary.CacheHit,
		"action", summary.Action,
		"outcome", summary.Outcome,
	)
	return nil
}

// collect fetches the recent feed and the pending feed of every known
// worker with bounded concurrency.
func (o *Orchestrator) collect(ctx context.Context) (window, map[string][]hive.Document, error) {
	var (
		mu      sync.Mutex
		recent  []hive.Document
		pending = make(map[string][]hive.Document)
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	g.Go(func() error {
		docs, err := o.store.Recent(gCtx, o.opts.ContextWindow*2)
		if err != nil {
			return fmt.Errorf("recent documents: %w", err)
		}
		mu.Lock()
		recent = docs
		mu.Unlock()
		return nil
	})

	for _, worker := range o.graph.Workers() {
		g.Go(func() error {
			docs, err := o.store.Pending(gCtx, worker)
			if err != nil {
				return fmt.Errorf("pending for %s: %w", worker, err)
			}
			mu.Lock()
			pending[worker] = docs
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return window{}, nil, err
	}

	win := buildWindow(recent, o.opts.ContextWindow, o.opts.IgnoredTypes, o.opts.IgnoredAuthors)
	return win, pending, nil
}

// dispatch is total over the action variant; unknown payloads never reach it
// because the parser fails closed to NoOp.
func (o *Orchestrator) dispatch(ctx context.Context, act action.Action, pending map[string][]hive.Document, summary *CycleSummary) error {
	switch act.Kind {
	case action.KindNoOp:
		return nil

	case action.KindDuda:
		_, err := o.store.Publish(ctx, hive.PublishRequest{
			Type:    hive.TypeAnswer,
			Author:  o.opts.AgentName,
			Content: act.Answer.Text,
		})
		if err != nil {
			summary.Outcome = "publish failed"
			return fmt.Errorf("publishing answer: %w", err)
		}
		return nil

	case action.KindEscalate:
		_, err := o.store.Publish(ctx, hive.PublishRequest{
			Type:    hive.TypeEscalation,
			Author:  o.opts.AgentName,
			Content: act.Escalation.Reason,
			Tags:    []string{"urgent"},
		})
		if err != nil {
			summary.Outcome = "publish failed"
			return fmt.Errorf("publishing escalation: %w", err)
		}
		summary.Outcome = "escalated"
		return nil

	case action.KindOrder:
		return o.dispatchOrder(ctx, *act.Order, pending, summary)

	default:
		// Unreachable: Parse returns only the four known kinds.
		return fmt.Errorf("unhandled action kind %q", act.Kind)
	}
}

func (o *Orchestrator) dispatchOrder(ctx context.Context, ord action.Order, pending map[string][]hive.Document, summary *CycleSummary) error {
	if !o.graph.Known(ord.Worker) {
		summary.Outcome = "unknown worker"
		o.logger.Warn("order names unknown worker, dropping", "worker", ord.Worker)
		return nil
	}

	busy := func(worker string) bool {
		return o.tracker.Active(worker) || len(pending[worker]) > 0
	}
	if !o.graph.Ready(ord.Worker, busy) {
		// Deferred, not failed: the same context re-resolves from cache on a
		// later cycle and dispatch is retried once dependencies drain.
		summary.Outcome = "deferred"
		o.logger.Info("dependencies busy, deferring order",
			"worker", ord.Worker, "requires", o.graph.Requires(ord.Worker))
		return nil
	}

	payload, err := json.Marshal(ord)
	if err != nil {
		return fmt.Errorf("encoding order: %w", err)
	}
	doc, err := o.store.Publish(ctx, hive.PublishRequest{
		Type:    hive.TypeOrder,
		Author:  o.opts.AgentName,
		Content: string(payload),
		Tags:    []string{ord.Worker},
	})
	if err != nil {
		summary.Outcome = "publish failed"
		return fmt.Errorf("publishing order: %w", err)
	}

	if err := o.tracker.Begin(ctx, doc.ID, ord.Worker); err != nil {
		summary.Outcome = "tracking failed"
		return fmt.Errorf("starting task %s: %w", doc.ID, err)
	}

	report, execErr := o.runner.Execute(ctx, doc.ID, ord)
	o.journalTask(report)

	if execErr != nil {
		summary.Outcome = "order failed"
		if err := o.tracker.Fail(ctx, doc.ID); err != nil {
			o.logger.Error("recording task failure", "order_id", doc.ID, "error", err)
		}
		o.publishReport(ctx, report, hive.StatusFailed)
		o.logger.Warn("order execution failed",
			"order_id", doc.ID, "worker", ord.Worker, "error", execErr)
		return nil
	}

	summary.Outcome = "order completed"
	if err := o.tracker.Complete(ctx, doc.ID); err != nil {
		o.logger.Error("recording task completion", "order_id", doc.ID, "error", err)
	}
	o.publishReport(ctx, report, hive.StatusCompleted)
	return nil
}

func (o *Orchestrator) publishReport(ctx context.Context, report executor.Report, status hive.WorkflowStatus) {
	content, err := json.Marshal(report)
	if err != nil {
		o.logger.Error("encoding report", "order_id", report.OrderID, "error", err)
		return
	}
	if _, err := o.store.Publish(ctx, hive.PublishRequest{
		Type:    hive.TypeReport,
		Author:  o.opts.AgentName,
		Content: string(content),
		Tags:    []string{report.Worker, string(status)},
	}); err != nil {
		o.logger.Error("publishing report", "order_id", report.OrderID, "error", err)
	}
}

func (o *Orchestrator) journalTask(report executor.Report) {
	if o.tasks == nil {
		return
	}
	status := string(hive.StatusCompleted)
	if report.Failure != "" {
		status = string(hive.StatusFailed)
	}
	rec := journal.TaskRecord{
		OrderID:    report.OrderID,
		Worker:     report.Worker,
		Status:     status,
		Failure:    report.Failure,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	if err := o.tasks.SaveTask(rec); err != nil {
		o.logger.Error("journaling task", "order_id", report.OrderID, "error", err)
	}
}

func classifyBrainError(err error) string {
	switch {
	case errors.Is(err, budget.ErrExhausted):
		return "budget exhausted"
	case errors.Is(err, provider.ErrNoProviders):
		return "no credentialed providers"
	case errors.Is(err, provider.ErrAllProvidersFailed):
		return "all providers failed"
	default:
		return "decision failed"
	}
}
