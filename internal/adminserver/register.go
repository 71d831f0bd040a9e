// Package adminserver exposes the auto-apply engine over MCP: pending
// application review, approval decisions, manual scans, notifications,
// settings, and analytics. Handlers are thin adapters over the engine
// operations; all state lives behind the engine handle.
package adminserver

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_autoapply/internal/engine/autoapply"
)

// RegisterTools registers the auto-apply admin tools on the given MCP
// server, all bound to eng.
func RegisterTools(server *mcp.Server, eng *autoapply.Engine) {
	registerPendingList(server, eng)
	registerPendingGet(server, eng)
	registerApprove(server, eng)
	registerReject(server, eng)
	registerTriggerScan(server, eng)
	registerStatus(server, eng)
	registerNotificationList(server, eng)
	registerNotificationRead(server, eng)
	registerSettingsGet(server, eng)
	registerSettingsUpdate(server, eng)
	registerAnalytics(server, eng)
	registerJournal(server, eng)
}
