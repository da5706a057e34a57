package workflow

import "sort"

// DependencyGraph is the static mapping from a worker to the workers that
// must be idle before its orders are dispatched. The configuration is
// assumed acyclic; cycles would simply defer each other forever.
type DependencyGraph struct {
	edges map[string][]string
}

// NewDependencyGraph creates a graph from worker → required-workers edges.
func NewDependencyGraph(edges map[string][]string) *DependencyGraph {
	copied := make(map[string][]string, len(edges))
	for k, v := range edges {
		copied[k] = append([]string(nil), v...)
	}
	return &DependencyGraph{edges: copied}
}

// Workers returns every configured worker name in sorted order.
func (g *DependencyGraph) Workers() []string {
	out := make([]string, 0, len(g.edges))
	for w := range g.edges {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Known reports whether worker is part of the configuration.
func (g *DependencyGraph) Known(worker string) bool {
	_, ok := g.edges[worker]
	return ok
}

// Requires returns the workers that must be idle before worker's orders run.
func (g *DependencyGraph) Requires(worker string) []string {
	return g.edges[worker]
}

// Ready reports whether every dependency of worker is currently idle. busy
// reports whether a worker has a pending or in_progress task.
func (g *DependencyGraph) Ready(worker string, busy func(string) bool) bool {
	for _, dep := range g.edges[worker] {
		if busy(dep) {
			return false
		}
	}
	return true
}
