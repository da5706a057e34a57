package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/colmena-dev/colmena/internal/budget"
)

// Invoker performs a single provider call. In production this is the retry
// manager wrapped around a Client; tests substitute stubs.
type Invoker interface {
	Invoke(ctx context.Context, spec Spec, apiKey string, req Request) (Reply, error)
}

// Chain tries configured providers in ascending priority until one succeeds.
// Providers whose credential env variable is unset are skipped entirely.
// Equal priorities keep configuration order.
type Chain struct {
	specs   []Spec
	invoker Invoker
	getenv  func(string) string
	logger  *slog.Logger
}

// NewChain creates a Chain over the given specs. The slice is copied and
// stable-sorted by priority so configuration order breaks ties.
func NewChain(specs []Spec, invoker Invoker) *Chain {
	ordered := make([]Spec, len(specs))
	copy(ordered, specs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return &Chain{
		specs:   ordered,
		invoker: invoker,
		getenv:  os.Getenv,
		logger:  slog.Default(),
	}
}

// WithGetenv overrides credential lookup, used by tests.
func (c *Chain) WithGetenv(getenv func(string) string) *Chain {
	c.getenv = getenv
	return c
}

// Credentialed returns the specs that currently have a credential available,
// in call order.
func (c *Chain) Credentialed() []Spec {
	var out []Spec
	for _, spec := range c.specs {
		if c.getenv(spec.APIKeyEnv) != "" {
			out = append(out, spec)
		}
	}
	return out
}

// Call tries each credentialed provider in order and returns the first
// successful reply. A provider that exhausts its retries is logged and the
// next one is tried. If the daily call budget runs out mid-chain, the budget
// error is returned immediately: later providers would fail the same way.
func (c *Chain) Call(ctx context.Context, req Request) (Reply, error) {
	candidates := c.Credentialed()
	if len(candidates) == 0 {
		return Reply{}, ErrNoProviders
	}

	var failures []error
	for _, spec := range candidates {
		reply, err := c.invoker.Invoke(ctx, spec, c.getenv(spec.APIKeyEnv), req)
		if err == nil {
			return reply, nil
		}
		if errors.Is(err, budget.ErrExhausted) {
			return Reply{}, err
		}
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		c.logger.Warn("provider failed, trying next", "provider", spec.Name, "error", err)
		failures = append(failures, fmt.Errorf("%s: %w", spec.Name, err))
	}

	return Reply{}, fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(failures...))
}
