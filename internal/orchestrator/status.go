package orchestrator

import (
	"github.com/colmena-dev/colmena/internal/cache"
	"github.com/colmena-dev/colmena/internal/workflow"
)

// BudgetStatus is the daily budget portion of the status snapshot.
type BudgetStatus struct {
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
	Max       int `json:"max"`
}

// Status is the snapshot served by the management API and MCP tools.
type Status struct {
	Agent     string          `json:"agent"`
	Budget    BudgetStatus    `json:"budget"`
	Cache     cache.Stats     `json:"cache"`
	LastCycle *CycleSummary   `json:"last_cycle,omitempty"`
	Tasks     []workflow.Task `json:"tasks"`
}

// Status returns a point-in-time snapshot of the daemon's state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	last := o.lastCycle
	o.mu.Unlock()

	return Status{
		Agent: o.opts.AgentName,
		Budget: BudgetStatus{
			Used:      o.budget.Used(),
			Remaining: o.budget.Remaining(),
			Max:       o.budget.Max(),
		},
		Cache:     o.replies.Stats(),
		LastCycle: last,
		Tasks:     o.tracker.Tasks(),
	}
}
