package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/colmena-dev/colmena/internal/hive"
)

// Publisher appends documents to the hive. Satisfied by hive.Client.
type Publisher interface {
	Publish(ctx context.Context, pub hive.PublishRequest) (hive.Document, error)
}

// MCPDeps holds dependencies for the MCP control plane.
type MCPDeps struct {
	Status StatusSource
	Tasks  TaskLister // optional
	Hive   Publisher
	Agent  string // author recorded on documents published through MCP
}

// NewMCPServer creates an MCP server exposing the daemon's control tools
// over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"colmena",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("colmena — orchestration daemon for a multi-agent document hive."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("hive_status",
			mcp.WithDescription("Report the daemon's budget usage, cache statistics, and last cycle."),
		),
		mcpStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List recently executed worker tasks from the local journal."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of tasks (default 20)")),
		),
		mcpListTasks(deps),
	)

	s.AddTool(
		mcp.NewTool("publish_document",
			mcp.WithDescription("Publish a document into the hive store."),
			mcp.WithString("type", mcp.Description("Document type (report, duda, escalation)"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Document body"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Optional tags")),
		),
		mcpPublish(deps),
	)

	return s
}

func mcpStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Status.Status())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListTasks(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Tasks == nil {
			return mcpText("[]"), nil
		}
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}
		tasks, err := deps.Tasks.RecentTasks(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing tasks failed: %v", err)), nil
		}
		b, err := json.Marshal(tasks)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal tasks: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpPublish(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docType, err := req.RequireString("type")
		if err != nil {
			return mcpError("type is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		tags := req.GetStringSlice("tags", nil)

		doc, err := deps.Hive.Publish(ctx, hive.PublishRequest{
			Type:    docType,
			Author:  deps.Agent,
			Content: content,
			Tags:    tags,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("publish failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Published document %s", doc.ID)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
