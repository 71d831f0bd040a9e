package adminserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_autoapply/internal/engine/autoapply"
)

// AnalyticsInput is the input for autoapply_analytics.
type AnalyticsInput struct {
	UserID string `json:"user_id"`
	Days   int    `json:"days,omitempty"`
}

// JournalInput is the input for autoapply_journal.
type JournalInput struct {
	UserID string `json:"user_id,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// JournalResult is the output for autoapply_journal.
type JournalResult struct {
	Attempts []autoapply.JournalEntry `json:"attempts"`
	Count    int                      `json:"count"`
}

func registerAnalytics(server *mcp.Server, eng *autoapply.Engine) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "autoapply_analytics",
		Description: "Aggregate a user's application outcomes over the last N days (default 30): counts per status, success rate, and average match score.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input AnalyticsInput) (*mcp.CallToolResult, *autoapply.Analytics, error) {
		if input.UserID == "" {
			return nil, nil, errors.New("user_id is required")
		}
		stats, err := eng.GetAnalytics(ctx, input.UserID, input.Days)
		if err != nil {
			return nil, nil, err
		}
		return nil, stats, nil
	})
}

func registerJournal(server *mcp.Server, eng *autoapply.Engine) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "autoapply_journal",
		Description: "List recent submission delivery attempts from the local journal, newest first. Optionally filter by user or by status: sent, failed. The journal survives independently of the main store, so it is the place to reconcile deliveries after an outage.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input JournalInput) (*mcp.CallToolResult, *JournalResult, error) {
		attempts, err := eng.ListJournal(ctx, input.UserID, input.Status, input.Limit)
		if err != nil {
			return nil, nil, err
		}
		return nil, &JournalResult{Attempts: attempts, Count: len(attempts)}, nil
	})
}
