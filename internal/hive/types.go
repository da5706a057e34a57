package hive

import "time"

// WorkflowStatus is the lifecycle state of a task as recorded on its
// originating document. The hive is authoritative for this field; colmena
// is its only writer.
type WorkflowStatus string

const (
	StatusPending    WorkflowStatus = "pending"
	StatusInProgress WorkflowStatus = "in_progress"
	StatusCompleted  WorkflowStatus = "completed"
	StatusFailed     WorkflowStatus = "failed"
)

// Terminal reports whether no further transition may leave this status.
func (s WorkflowStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is one entry in the shared hive store. Produced and owned by the
// store; colmena reads documents and appends new ones (reports, orders,
// dudas, escalations).
type Document struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Author         string         `json:"author"`
	Content        string         `json:"content"`
	Tags           []string       `json:"tags,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	WorkflowStatus WorkflowStatus `json:"workflow_status,omitempty"`
}

// PublishRequest is the body for POST /documents.
type PublishRequest struct {
	Type    string   `json:"type"`
	Author  string   `json:"author"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// Well-known document types exchanged through the hive.
const (
	TypeReport     = "report"
	TypeOrder      = "order"
	TypeDuda       = "duda"
	TypeAnswer     = "answer"
	TypeEscalation = "escalation"
)
