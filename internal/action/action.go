// Package action defines the typed actions colmena derives from model
// replies, and the parser that enforces the reply grammar.
package action

// Kind discriminates the action variants. The set is closed: anything the
// parser cannot place in it becomes KindNoOp.
type Kind string

const (
	KindOrder    Kind = "order"
	KindDuda     Kind = "duda"
	KindEscalate Kind = "escalate"
	KindNoOp     Kind = "noop"
)

// FileInstruction is one file mutation requested by an order: a path and its
// full replacement content, or a deletion.
type FileInstruction struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Delete  bool   `json:"delete,omitempty"`
}

// Order instructs a named worker to perform file mutations confined to the
// declared scope directories.
type Order struct {
	Worker       string            `json:"worker"`
	Scope        []string          `json:"scope"`
	Instructions string            `json:"instructions,omitempty"`
	Files        []FileInstruction `json:"files"`
}

// Answer replies to an open duda document.
type Answer struct {
	Text string `json:"text"`
}

// Escalation flags a thread for human follow-up and halts automatic handling.
type Escalation struct {
	Reason string `json:"reason"`
}

// Action is the tagged variant built once per cycle from a model reply.
// Exactly the field matching Kind is non-nil; NoOp carries nothing.
type Action struct {
	Kind       Kind
	Order      *Order
	Answer     *Answer
	Escalation *Escalation
}

// NoOp is the fail-safe action: it advances the cycle with no external effect.
var NoOp = Action{Kind: KindNoOp}
