package adminserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_autoapply/internal/engine"
	"github.com/anatolykoptev/go_autoapply/internal/engine/autoapply"
)

// TriggerScanInput is the input for autoapply_trigger_scan.
type TriggerScanInput struct {
	UserID string `json:"user_id"`
}

// TriggerScanResult is the output for autoapply_trigger_scan.
type TriggerScanResult struct {
	UserID  string `json:"user_id"`
	Created int    `json:"created"`
	Message string `json:"message"`
}

// StatusInput is the input for autoapply_status.
type StatusInput struct{}

// StatusResult is the output for autoapply_status.
type StatusResult struct {
	SchedulerState string `json:"scheduler_state"`
	Metrics        string `json:"metrics"`
}

func registerTriggerScan(server *mcp.Server, eng *autoapply.Engine) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "autoapply_trigger_scan",
		Description: "Run the matching pipeline for one user right now, outside the normal schedule. Daily quota and the 30-day duplicate window still apply. Returns how many applications were created.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input TriggerScanInput) (*mcp.CallToolResult, *TriggerScanResult, error) {
		if input.UserID == "" {
			return nil, nil, errors.New("user_id is required")
		}
		created, err := eng.TriggerManualScan(ctx, input.UserID)
		if err != nil {
			if errors.Is(err, autoapply.ErrQuotaExhausted) {
				return nil, &TriggerScanResult{
					UserID:  input.UserID,
					Message: "daily application quota already exhausted",
				}, nil
			}
			return nil, nil, err
		}
		msg := "scan complete, no new applications"
		if created > 0 {
			msg = "scan complete"
		}
		return nil, &TriggerScanResult{UserID: input.UserID, Created: created, Message: msg}, nil
	})
}

func registerStatus(server *mcp.Server, eng *autoapply.Engine) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "autoapply_status",
		Description: "Report the scheduler's current cycle phase and the engine counters (cycles, scans, matches, applications, submissions, errors).",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, *StatusResult, error) {
		return nil, &StatusResult{
			SchedulerState: eng.SchedulerState(),
			Metrics:        engine.FormatMetrics(),
		}, nil
	})
}
