package adminserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_autoapply/internal/engine/autoapply"
)

// PendingListInput is the input for autoapply_pending_list.
type PendingListInput struct {
	UserID         string `json:"user_id"`
	Status         string `json:"status,omitempty"`
	IncludeExpired bool   `json:"include_expired,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// PendingListResult is the output for autoapply_pending_list.
type PendingListResult struct {
	Applications []autoapply.PendingApplication `json:"applications"`
	Count        int                            `json:"count"`
}

// PendingGetInput is the input for autoapply_pending_get.
type PendingGetInput struct {
	UserID    string `json:"user_id"`
	PendingID string `json:"pending_id"`
}

// DecisionInput is the input for autoapply_approve and autoapply_reject.
// CoverLetter only applies to approval, Reason only to rejection.
type DecisionInput struct {
	UserID      string `json:"user_id"`
	PendingID   string `json:"pending_id"`
	CoverLetter string `json:"cover_letter,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func registerPendingList(server *mcp.Server, eng *autoapply.Engine) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "autoapply_pending_list",
		Description: "List a user's auto-generated applications, newest first. Optionally filter by status: pending_approval, approved, submitted, failed, rejected, expired. Expired records are hidden unless include_expired is set.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input PendingListInput) (*mcp.CallToolResult, *PendingListResult, error) {
		if input.UserID == "" {
			return nil, nil, errors.New("user_id is required")
		}
		apps, err := eng.ListApplications(ctx, input.UserID, input.Status, input.IncludeExpired, input.Limit)
		if err != nil {
			return nil, nil, err
		}
		return nil, &PendingListResult{Applications: apps, Count: len(apps)}, nil
	})
}

func registerPendingGet(server *mcp.Server, eng *autoapply.Engine) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "autoapply_pending_get",
		Description: "Fetch one auto-generated application with its full materials: cover letter, CV customizations, match reasons, and submission outcome if any.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input PendingGetInput) (*mcp.CallToolResult, *autoapply.PendingApplication, error) {
		if input.UserID == "" || input.PendingID == "" {
			return nil, nil, errors.New("user_id and pending_id are required")
		}
		app, err := eng.GetApplication(ctx, input.UserID, input.PendingID)
		if err != nil {
			return nil, nil, err
		}
		return nil, app, nil
	})
}

func registerApprove(server *mcp.Server, eng *autoapply.Engine) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "autoapply_approve",
		Description: "Approve a pending application and submit it immediately. Pass cover_letter to replace the generated one before sending. The returned record shows the submission outcome: submitted with a confirmation, or failed with the delivery error.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input DecisionInput) (*mcp.CallToolResult, *autoapply.PendingApplication, error) {
		if input.UserID == "" || input.PendingID == "" {
			return nil, nil, errors.New("user_id and pending_id are required")
		}
		app, err := eng.ApproveApplication(ctx, input.UserID, input.PendingID, input.CoverLetter)
		if err != nil {
			return nil, nil, err
		}
		return nil, app, nil
	})
}

func registerReject(server *mcp.Server, eng *autoapply.Engine) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "autoapply_reject",
		Description: "Decline a pending application so it is never submitted. Pass reason to keep free-text feedback with the record.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input DecisionInput) (*mcp.CallToolResult, *autoapply.PendingApplication, error) {
		if input.UserID == "" || input.PendingID == "" {
			return nil, nil, errors.New("user_id and pending_id are required")
		}
		app, err := eng.RejectApplication(ctx, input.UserID, input.PendingID, input.Reason)
		if err != nil {
			return nil, nil, err
		}
		return nil, app, nil
	})
}
