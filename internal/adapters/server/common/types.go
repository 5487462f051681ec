// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"

	"github.com/hylla/agenda/internal/domain"
)

// ErrInvalidRequest reports malformed or semantically invalid input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrUnavailable reports a store that is not configured.
var ErrUnavailable = errors.New("task store unavailable")

// TaskStore is the persistence contract served over HTTP and MCP.
type TaskStore interface {
	ListTasks(context.Context) ([]domain.Task, error)
	GetTask(context.Context, domain.TaskID) (domain.Task, error)
	CreateTask(context.Context, domain.Task) (domain.Task, error)
	UpdateTask(context.Context, domain.Task) (domain.Task, error)
	DeleteTask(context.Context, domain.TaskID) error
	ListClients(context.Context) ([]domain.Client, error)
	GetClient(context.Context, domain.ClientID) (domain.Client, error)
	ListChangeEvents(context.Context, domain.TaskID, int) ([]domain.ChangeEvent, error)
}

// TaskService is the transport-facing task store surface.
type TaskService interface {
	ListTasks(context.Context, ListTasksRequest) ([]TaskView, error)
	GetTask(context.Context, string) (TaskView, error)
	CreateTask(context.Context, TaskPayload) (TaskView, error)
	UpdateTask(context.Context, string, TaskPayload) (TaskView, error)
	MoveTask(context.Context, MoveTaskRequest) (TaskView, error)
	DeleteTask(context.Context, string) error
	ListClients(context.Context, ListClientsRequest) ([]ClientView, error)
	GetClient(context.Context, string) (ClientView, error)
	ListTaskEvents(context.Context, ListTaskEventsRequest) ([]ChangeEventView, error)
}

// ListTasksRequest filters task listings.
type ListTasksRequest struct {
	// State optionally restricts results to one workflow state (OPEN,
	// IN_PROGRESS, DONE) or store status (EM_ABERTO, ...).
	State string
}

// MoveTaskRequest changes a task's workflow state.
type MoveTaskRequest struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
}

// ListClientsRequest filters the client directory.
type ListClientsRequest struct {
	Query string
}

// ListTaskEventsRequest selects activity ledger entries.
type ListTaskEventsRequest struct {
	TaskID string
	Limit  int
}
