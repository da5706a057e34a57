// Package api exposes the local management surface: an HTTP API for the
// CLI and an MCP server for agent tooling.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/colmena-dev/colmena/internal/journal"
	"github.com/colmena-dev/colmena/internal/orchestrator"
)

// StatusSource provides the daemon status snapshot. Satisfied by
// orchestrator.Orchestrator.
type StatusSource interface {
	Status() orchestrator.Status
}

// TaskLister reads recent task records from the journal.
type TaskLister interface {
	RecentTasks(limit int) ([]journal.TaskRecord, error)
}

// Deps holds the handler dependencies.
type Deps struct {
	Status StatusSource
	Tasks  TaskLister // optional; /tasks returns an empty list if nil
	Token  string     // bearer token; "" disables auth (localhost only)
}

// NewHandler builds the management router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Get("/status", handleStatus(deps))
		r.Get("/tasks", handleTasks(deps))
	})

	return r
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, deps.Status.Status())
	}
}

func handleTasks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Tasks == nil {
			writeJSON(w, http.StatusOK, []journal.TaskRecord{})
			return
		}
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = n
		}
		tasks, err := deps.Tasks.RecentTasks(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing tasks: %v", err)
			return
		}
		if tasks == nil {
			tasks = []journal.TaskRecord{}
		}
		writeJSON(w, http.StatusOK, tasks)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func httpError(w http.ResponseWriter, status int, errType, format string, args ...any) {
	var body errorBody
	body.Error.Type = errType
	body.Error.Message = fmt.Sprintf(format, args...)
	writeJSON(w, status, body)
}
