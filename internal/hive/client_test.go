package hive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if !NewClient(srv.URL, "").Health(context.Background()) {
		t.Error("Health() = false against a healthy store, want true")
	}
	if NewClient("http://127.0.0.1:1", "").Health(context.Background()) {
		t.Error("Health() = true against an unreachable store, want false")
	}
}

func TestPending(t *testing.T) {
	var gotWorker, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/documents/pending" {
			t.Errorf("path = %s, want /documents/pending", r.URL.Path)
		}
		gotWorker = r.URL.Query().Get("worker")
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]Document{
			{ID: "d1", Type: TypeOrder, Author: "colmena", WorkflowStatus: StatusPending},
		})
	}))
	defer srv.Close()

	docs, err := NewClient(srv.URL, "tok").Pending(context.Background(), "worker-core")
	if err != nil {
		t.Fatalf("Pending() = %v", err)
	}
	if gotWorker != "worker-core" {
		t.Errorf("worker query = %q, want worker-core", gotWorker)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", gotAuth)
	}
	if len(docs) != 1 || docs[0].ID != "d1" {
		t.Errorf("docs = %+v, want one document d1", docs)
	}
}

func TestRecent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "25" {
			t.Errorf("limit = %q, want 25", got)
		}
		json.NewEncoder(w).Encode([]Document{{ID: "a"}, {ID: "b"}})
	}))
	defer srv.Close()

	docs, err := NewClient(srv.URL, "").Recent(context.Background(), 25)
	if err != nil {
		t.Fatalf("Recent() = %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("len(docs) = %d, want 2", len(docs))
	}
}

func TestPublish(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/documents" {
			t.Errorf("%s %s, want POST /documents", r.Method, r.URL.Path)
		}
		var pub PublishRequest
		json.NewDecoder(r.Body).Decode(&pub)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Document{
			ID: "assigned-1", Type: pub.Type, Author: pub.Author,
			Content: pub.Content, CreatedAt: time.Now().UTC(),
		})
	}))
	defer srv.Close()

	doc, err := NewClient(srv.URL, "").Publish(context.Background(), PublishRequest{
		Type: TypeReport, Author: "colmena", Content: "done",
	})
	if err != nil {
		t.Fatalf("Publish() = %v", err)
	}
	if doc.ID != "assigned-1" {
		t.Errorf("ID = %q, want the store-assigned id", doc.ID)
	}
}

func TestUpdateStatus(t *testing.T) {
	var gotPath string
	var gotBody statusUpdate
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").UpdateStatus(context.Background(), "doc-9", StatusCompleted)
	if err != nil {
		t.Fatalf("UpdateStatus() = %v", err)
	}
	if gotPath != "/documents/doc-9/status" {
		t.Errorf("path = %s, want /documents/doc-9/status", gotPath)
	}
	if gotBody.WorkflowStatus != StatusCompleted {
		t.Errorf("workflow_status = %s, want completed", gotBody.WorkflowStatus)
	}
}

func TestUpdateStatus_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, "").UpdateStatus(context.Background(), "doc-9", StatusFailed); err == nil {
		t.Error("UpdateStatus() = nil on 409, want error")
	}
}
