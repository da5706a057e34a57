package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/colmena-dev/colmena/internal/hive"
)

// window is the ordered, size-bounded view of recent documents a decision is
// made from. Rebuilt every cycle, never persisted.
type window struct {
	docs []hive.Document
}

// buildWindow filters out ignored types/authors and keeps the newest size
// documents in chronological order.
func buildWindow(docs []hive.Document, size int, ignoredTypes, ignoredAuthors []string) window {
	ignoreType := toSet(ignoredTypes)
	ignoreAuthor := toSet(ignoredAuthors)

	kept := make([]hive.Document, 0, len(docs))
	for _, d := range docs {
		if _, skip := ignoreType[d.Type]; skip {
			continue
		}
		if _, skip := ignoreAuthor[d.Author]; skip {
			continue
		}
		kept = append(kept, d)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].CreatedAt.Before(kept[j].CreatedAt)
	})
	if size > 0 && len(kept) > size {
		kept = kept[len(kept)-size:]
	}
	return window{docs: kept}
}

// render serializes the window deterministically; the result feeds both the
// prompt and the cache fingerprint.
func (w window) render() string {
	var b strings.Builder
	for _, d := range w.docs {
		status := string(d.WorkflowStatus)
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(&b, "[%s] %s from %s (%s)", d.CreatedAt.UTC().Format(time.RFC3339), d.Type, d.Author, status)
		if len(d.Tags) > 0 {
			fmt.Fprintf(&b, " tags=%s", strings.Join(d.Tags, ","))
		}
		fmt.Fprintf(&b, "\n%s\n\n", strings.TrimSpace(d.Content))
	}
	return b.String()
}

func (w window) empty() bool { return len(w.docs) == 0 }

// haltedForEscalation reports whether the newest agent-authored escalation
// is still unanswered: automatic handling stays halted until some other
// author publishes after it.
func (w window) haltedForEscalation(agent string) bool {
	var lastEscalation time.Time
	for _, d := range w.docs {
		if d.Type == hive.TypeEscalation && d.Author == agent {
			if d.CreatedAt.After(lastEscalation) {
				lastEscalation = d.CreatedAt
			}
		}
	}
	if lastEscalation.IsZero() {
		return false
	}
	for _, d := range w.docs {
		if d.Author != agent && d.CreatedAt.After(lastEscalation) {
			return false
		}
	}
	return true
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}
