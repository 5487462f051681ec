package mcpapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hylla/agenda/internal/adapters/server/common"
	"github.com/hylla/agenda/internal/adapters/wire"
	"github.com/hylla/agenda/internal/domain"
)

// taskArgs is the shared argument shape of the create and update tools.
type taskArgs struct {
	TaskID        string `json:"task_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	State         string `json:"state"`
	Priority      int    `json:"priority"`
	ClientID      string `json:"client_id"`
	ScheduledDate string `json:"scheduled_date"`
}

// payload converts tool arguments into the store payload. State accepts either
// board names or store statuses.
func (a taskArgs) payload() (common.TaskPayload, error) {
	out := common.TaskPayload{
		Title:         a.Title,
		Description:   a.Description,
		Priority:      a.Priority,
		ClientID:      wire.ID(strings.TrimSpace(a.ClientID)),
		ScheduledDate: strings.TrimSpace(a.ScheduledDate),
	}
	if raw := strings.TrimSpace(a.State); raw != "" {
		status, err := statusFromArg(raw)
		if err != nil {
			return common.TaskPayload{}, err
		}
		out.Status = status
	}
	return out, nil
}

// taskToolOptions lists the field arguments shared by create and update.
func taskToolOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("description", mcp.Description("Free-form notes")),
		mcp.WithString("state", mcp.Description("OPEN, IN_PROGRESS or DONE (default OPEN)")),
		mcp.WithNumber("priority", mcp.Description("1 high, 2 medium, 3 low (default 2)")),
		mcp.WithString("client_id", mcp.Required(), mcp.Description("Client directory id")),
		mcp.WithString("scheduled_date", mcp.Required(), mcp.Description("Service date, YYYY-MM-DD")),
	}
}

// registerWriteTools registers create, update and delete task tools.
func registerWriteTools(srv *mcpserver.MCPServer, service common.TaskService) {
	createOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Create one scheduled service task."),
	}, taskToolOptions()...)
	srv.AddTool(
		mcp.NewTool("agenda.create_task", createOpts...),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args taskArgs
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			payload, err := args.payload()
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			task, err := service.CreateTask(ctx, payload)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(task)
			if err != nil {
				return nil, fmt.Errorf("encode create_task result: %w", err)
			}
			return result, nil
		},
	)

	updateOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Replace every field of one task."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
	}, taskToolOptions()...)
	srv.AddTool(
		mcp.NewTool("agenda.update_task", updateOpts...),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args taskArgs
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.TaskID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "task_id" not found`), nil
			}
			payload, err := args.payload()
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			task, err := service.UpdateTask(ctx, args.TaskID, payload)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(task)
			if err != nil {
				return nil, fmt.Errorf("encode update_task result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"agenda.delete_task",
			mcp.WithDescription("Delete one task."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireString("task_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := service.DeleteTask(ctx, taskID); err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"deleted": taskID,
			})
			if err != nil {
				return nil, fmt.Errorf("encode delete_task result: %w", err)
			}
			return result, nil
		},
	)
}

// statusFromArg maps a board state name or store status to the store status.
func statusFromArg(raw string) (string, error) {
	if _, err := wire.StateFromStatus(strings.ToUpper(raw)); err == nil {
		return strings.ToUpper(raw), nil
	}
	state, err := domain.ParseWorkflowState(raw)
	if err != nil {
		return "", err
	}
	return wire.StatusFromState(state)
}

// invalidRequestToolResult wraps argument binding failures.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("invalid_request: " + err.Error())
}
