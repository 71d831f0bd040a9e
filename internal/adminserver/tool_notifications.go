package adminserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_autoapply/internal/engine/autoapply"
)

// NotificationListInput is the input for autoapply_notifications.
type NotificationListInput struct {
	UserID     string `json:"user_id"`
	UnreadOnly bool   `json:"unread_only,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// NotificationListResult is the output for autoapply_notifications.
type NotificationListResult struct {
	Notifications []autoapply.Notification `json:"notifications"`
	Count         int                      `json:"count"`
}

// NotificationReadInput is the input for autoapply_notification_read.
type NotificationReadInput struct {
	UserID         string `json:"user_id"`
	NotificationID string `json:"notification_id"`
}

// NotificationReadResult is the output for autoapply_notification_read.
type NotificationReadResult struct {
	NotificationID string `json:"notification_id"`
	Read           bool   `json:"read"`
}

func registerNotificationList(server *mcp.Server, eng *autoapply.Engine) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "autoapply_notifications",
		Description: "List a user's job-match notifications, newest first: approval requests, submission outcomes, and scan summaries. Set unread_only to see just the unacknowledged ones.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input NotificationListInput) (*mcp.CallToolResult, *NotificationListResult, error) {
		if input.UserID == "" {
			return nil, nil, errors.New("user_id is required")
		}
		list, err := eng.ListNotifications(ctx, input.UserID, input.UnreadOnly, input.Limit)
		if err != nil {
			return nil, nil, err
		}
		return nil, &NotificationListResult{Notifications: list, Count: len(list)}, nil
	})
}

func registerNotificationRead(server *mcp.Server, eng *autoapply.Engine) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "autoapply_notification_read",
		Description: "Mark one notification as read. Marking an already-read notification is a no-op.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input NotificationReadInput) (*mcp.CallToolResult, *NotificationReadResult, error) {
		if input.UserID == "" || input.NotificationID == "" {
			return nil, nil, errors.New("user_id and notification_id are required")
		}
		if err := eng.MarkNotificationRead(ctx, input.UserID, input.NotificationID); err != nil {
			return nil, nil, err
		}
		return nil, &NotificationReadResult{NotificationID: input.NotificationID, Read: true}, nil
	})
}
