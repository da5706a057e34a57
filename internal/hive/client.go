package hive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Client communicates with the hive document store over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client targeting the given hive base URL. The token is
// sent as a bearer credential on every request; pass "" if the store is
// unauthenticated.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Health returns true if the store responds to GET /health with 200.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	c.setHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Pending returns documents addressed to the given worker that are still in
// workflow status "pending".
func (c *Client) Pending(ctx context.Context, worker string) ([]Document, error) {
	q := url.Values{"worker": {worker}}
	return c.getDocuments(ctx, "/documents/pending?"+q.Encode())
}

// Recent returns up to limit documents, newest first.
func (c *Client) Recent(ctx context.Context, limit int) ([]Document, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	return c.getDocuments(ctx, "/documents/recent?"+q.Encode())
}

func (c *Client) getDocuments(ctx context.Context, path string) ([]Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}

	var docs []Document
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decoding documents: %w", err)
	}
	return docs, nil
}

// Publish appends a new document to the store and returns it as persisted,
// including the store-assigned id and timestamp.
func (c *Client) Publish(ctx context.Context, pub PublishRequest) (Document, error) {
	body, err := json.Marshal(pub)
	if err != nil {
		return Document{}, fmt.Errorf("marshaling document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents", bytes.NewReader(body))
	if err != nil {
		return Document{}, fmt.Errorf("creating publish request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("publishing document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Document{}, fmt.Errorf("publish: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decoding published document: %w", err)
	}
	return doc, nil
}

// statusUpdate is the JSON body for PATCH /documents/{id}/status.
type statusUpdate struct {
	WorkflowStatus WorkflowStatus `json:"workflow_status"`
}

// UpdateStatus sets the workflow_status of the given document. The store is
// authoritative; colmena is the only writer of this field.
func (c *Client) UpdateStatus(ctx context.Context, docID string, status WorkflowStatus) error {
	body, err := json.Marshal(statusUpdate{WorkflowStatus: status})
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/documents/%s/status", url.PathEscape(docID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating status request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", docID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("status update %s: unexpected status %d", docID, resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
