package action

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// reply mirrors the constrained JSON grammar the model is instructed to
// produce: a discriminator plus kind-specific payload fields.
type reply struct {
	Action       string            `json:"action"`
	Worker       string            `json:"worker,omitempty"`
	Scope        []string          `json:"scope,omitempty"`
	Instructions string            `json:"instructions,omitempty"`
	Files        []FileInstruction `json:"files,omitempty"`
	Text         string            `json:"text,omitempty"`
	Reason       string            `json:"reason,omitempty"`
}

// Parse turns raw model text into exactly one Action. Unparsable or invalid
// input resolves to NoOp with the parse error logged: unparsed text must
// never become an implicit action.
func Parse(raw string) Action {
	act, err := parse(raw)
	if err != nil {
		slog.Warn("model reply did not parse, treating as noop", "error", err)
		return NoOp
	}
	return act
}

func parse(raw string) (Action, error) {
	cleaned := stripFences(raw)

	var r reply
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return NoOp, fmt.Errorf("decoding reply: %w", err)
	}

	switch Kind(r.Action) {
	case KindOrder:
		ord := Order{
			Worker:       r.Worker,
			Scope:        r.Scope,
			Instructions: r.Instructions,
			Files:        r.Files,
		}
		if err := validateOrder(ord); err != nil {
			return NoOp, err
		}
		return Action{Kind: KindOrder, Order: &ord}, nil

	case KindDuda:
		if strings.TrimSpace(r.Text) == "" {
			return NoOp, fmt.Errorf("duda reply has empty text")
		}
		return Action{Kind: KindDuda, Answer: &Answer{Text: r.Text}}, nil

	case KindEscalate:
		if strings.TrimSpace(r.Reason) == "" {
			return NoOp, fmt.Errorf("escalation has empty reason")
		}
		return Action{Kind: KindEscalate, Escalation: &Escalation{Reason: r.Reason}}, nil

	case KindNoOp:
		return NoOp, nil

	default:
		return NoOp, fmt.Errorf("unknown action kind %q", r.Action)
	}
}

func validateOrder(ord Order) error {
	if ord.Worker == "" {
		return fmt.Errorf("order missing worker")
	}
	if len(ord.Scope) == 0 {
		return fmt.Errorf("order for %s declares no scope", ord.Worker)
	}
	if len(ord.Files) == 0 {
		return fmt.Errorf("order for %s contains no file instructions", ord.Worker)
	}
	for i, f := range ord.Files {
		if f.Path == "" {
			return fmt.Errorf("order file %d has empty path", i)
		}
		if !f.Delete && f.Content == "" {
			return fmt.Errorf("order file %s has no content", f.Path)
		}
	}
	return nil
}

// stripFences removes a surrounding markdown code fence if present. Models
// wrap JSON in ```json blocks often enough that rejecting them would waste
// provider budget.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:] // drop the language tag line
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
