package adminserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_autoapply/internal/engine/autoapply"
)

// SettingsGetInput is the input for autoapply_settings_get.
type SettingsGetInput struct {
	UserID string `json:"user_id"`
}

func registerSettingsGet(server *mcp.Server, eng *autoapply.Engine) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "autoapply_settings_get",
		Description: "Fetch a user's auto-apply configuration: quotas, match threshold, filters, application window, approval and notification flags. Returns defaults when the user has never saved settings.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input SettingsGetInput) (*mcp.CallToolResult, *autoapply.Settings, error) {
		if input.UserID == "" {
			return nil, nil, errors.New("user_id is required")
		}
		s, err := eng.GetSettings(ctx, input.UserID)
		if err != nil {
			return nil, nil, err
		}
		return nil, &s, nil
	})
}

func registerSettingsUpdate(server *mcp.Server, eng *autoapply.Engine) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "autoapply_settings_update",
		Description: "Save a user's auto-apply configuration. Takes the full settings object; fetch it with autoapply_settings_get, change what you need, and send it back. Zero values fall back to defaults (3 daily applications, 0.75 score floor, 30-day duplicate window).",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input autoapply.Settings) (*mcp.CallToolResult, *autoapply.Settings, error) {
		if input.UserID == "" {
			return nil, nil, errors.New("user_id is required")
		}
		if err := eng.SaveSettings(ctx, input); err != nil {
			return nil, nil, err
		}
		saved, err := eng.GetSettings(ctx, input.UserID)
		if err != nil {
			return nil, nil, err
		}
		return nil, &saved, nil
	})
}
