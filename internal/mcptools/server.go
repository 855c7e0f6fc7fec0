// Package mcptools exposes the goal reminder coordinator as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/notexe/goal-reminders/internal/reminder"
	"github.com/notexe/goal-reminders/internal/scheduler"
)

const (
	serverName    = "goal-reminders"
	serverVersion = "1.0.0"
)

// ConsentManager records the user's notification opt-in.
type ConsentManager interface {
	Grant(ctx context.Context) error
	Revoke(ctx context.Context) error
}

// Server is the MCP server for goal reminders.
type Server struct {
	mcpServer *server.MCPServer
	coord     *scheduler.Coordinator
	consent   ConsentManager
}

// NewServer creates a new MCP server backed by the coordinator.
func NewServer(coord *scheduler.Coordinator, consent ConsentManager) *Server {
	s := &Server{
		coord:   coord,
		consent: consent,
	}

	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)

	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server for serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("schedule_goal_reminders",
			mcp.WithDescription("Replace a goal's reminders with one notification per enabled kind whose time is still ahead"),
			mcp.WithString("goal_id", mcp.Required(), mcp.Description("Stable goal identifier")),
			mcp.WithString("goal_title", mcp.Description("Goal title shown in the notification")),
			mcp.WithString("goal_emoji", mcp.Description("Optional emoji shown before the title")),
			mcp.WithString("target_date", mcp.Required(), mcp.Description("Goal due date in RFC3339 format (e.g. 2025-08-15T00:00:00Z)")),
			mcp.WithString("kinds", mcp.Description("Comma-separated kinds: on_finish, one_day_before, one_week_before (default: all)")),
		),
		s.handleSchedule,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("cancel_goal_reminders",
			mcp.WithDescription("Cancel every scheduled reminder of a goal"),
			mcp.WithString("goal_id", mcp.Required(), mcp.Description("Goal identifier")),
		),
		s.handleCancel,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_goal_reminders",
			mcp.WithDescription("List scheduled reminders, optionally for one goal"),
			mcp.WithString("goal_id", mcp.Description("Goal identifier, or empty for all goals")),
		),
		s.handleList,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("cleanup_expired_reminders",
			mcp.WithDescription("Remove ledger entries whose fire time has passed"),
		),
		s.handleCleanup,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("reconcile_reminders",
			mcp.WithDescription("Re-arm lost timers and cancel timers that have no ledger entry"),
		),
		s.handleReconcile,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("set_notification_permission",
			mcp.WithDescription("Grant or revoke permission to deliver reminders"),
			mcp.WithBoolean("granted", mcp.Required(), mcp.Description("true to allow notifications, false to block them")),
		),
		s.handleSetPermission,
	)
}

func (s *Server) handleSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	goalID := req.GetString("goal_id", "")
	title := req.GetString("goal_title", "")
	targetStr := req.GetString("target_date", "")

	if goalID == "" {
		return mcp.NewToolResultError("goal_id is required"), nil
	}
	if targetStr == "" {
		return mcp.NewToolResultError("target_date is required"), nil
	}

	target, err := time.Parse(time.RFC3339, targetStr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid target_date format: %v (use RFC3339, e.g. 2025-08-15T00:00:00Z)", err)), nil
	}

	kinds := reminder.AllKinds
	if raw := req.GetString("kinds", ""); raw != "" {
		kinds, err = reminder.ParseKinds(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	report, err := s.coord.Schedule(ctx, reminder.Request{
		GoalID:     goalID,
		GoalTitle:  title,
		GoalEmoji:  req.GetString("goal_emoji", ""),
		TargetDate: target,
		Kinds:      kinds,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to schedule reminders: %v", err)), nil
	}

	return jsonResult(report)
}

func (s *Server) handleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	goalID := req.GetString("goal_id", "")
	if goalID == "" {
		return mcp.NewToolResultError("goal_id is required"), nil
	}

	report, err := s.coord.Cancel(ctx, goalID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to cancel reminders: %v", err)), nil
	}

	return jsonResult(report)
}

func (s *Server) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	goalID := req.GetString("goal_id", "")

	var (
		records []reminder.Record
		err     error
	)
	if goalID != "" {
		records, err = s.coord.Reminders(ctx, goalID)
	} else {
		records, err = s.coord.AllReminders(ctx)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list reminders: %v", err)), nil
	}

	if len(records) == 0 {
		return mcp.NewToolResultText("No reminders found."), nil
	}

	return jsonResult(records)
}

func (s *Server) handleCleanup(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.coord.CleanupExpired(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to clean up reminders: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Removed %d expired reminders.", n)), nil
}

func (s *Server) handleReconcile(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.coord.Reconcile(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to reconcile reminders: %v", err)), nil
	}
	return jsonResult(report)
}

func (s *Server) handleSetPermission(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	granted := req.GetBool("granted", false)

	var err error
	if granted {
		err = s.consent.Grant(ctx)
	} else {
		err = s.consent.Revoke(ctx)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store permission: %v", err)), nil
	}

	if granted {
		return mcp.NewToolResultText("Notifications allowed."), nil
	}
	return mcp.NewToolResultText("Notifications blocked. Existing reminders stay scheduled until cancelled."), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(output)), nil
}
