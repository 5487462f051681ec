package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/agenda/internal/adapters/wire"
	"github.com/hylla/agenda/internal/app"
	"github.com/hylla/agenda/internal/domain"
)

// TaskView is the task shape returned by both transports.
type TaskView = wire.Task

// TaskPayload is the task shape accepted on create and update.
type TaskPayload = wire.Task

// ClientView is the client shape returned by both transports.
type ClientView = wire.Client

// ChangeEventView is one activity ledger entry.
type ChangeEventView struct {
	ID         int64             `json:"id"`
	TaskID     wire.ID           `json:"task_id"`
	Operation  string            `json:"operation"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// StoreAdapter validates transport input and maps store results to views.
type StoreAdapter struct {
	store TaskStore
}

var _ TaskService = (*StoreAdapter)(nil)

// NewStoreAdapter constructs a new value for this package.
func NewStoreAdapter(store TaskStore) *StoreAdapter {
	return &StoreAdapter{store: store}
}

// ListTasks returns tasks in store order, enriched with client details.
func (a *StoreAdapter) ListTasks(ctx context.Context, req ListTasksRequest) ([]TaskView, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("list tasks: %w", ErrUnavailable)
	}
	var filter domain.WorkflowState
	if raw := strings.TrimSpace(req.State); raw != "" {
		state, err := parseStateOrStatus(raw)
		if err != nil {
			return nil, err
		}
		filter = state
	}
	tasks, err := a.store.ListTasks(ctx)
	if err != nil {
		return nil, mapAppError("list tasks", err)
	}
	clients, err := a.clientIndex(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TaskView, 0, len(tasks))
	for _, task := range tasks {
		if filter != "" && task.State != filter {
			continue
		}
		view, err := toTaskView(task, clients)
		if err != nil {
			return nil, mapAppError("list tasks", err)
		}
		out = append(out, view)
	}
	return out, nil
}

// GetTask returns one task.
func (a *StoreAdapter) GetTask(ctx context.Context, id string) (TaskView, error) {
	if a == nil || a.store == nil {
		return TaskView{}, fmt.Errorf("get task: %w", ErrUnavailable)
	}
	taskID, err := requireID(id, "task_id")
	if err != nil {
		return TaskView{}, err
	}
	task, err := a.store.GetTask(ctx, domain.TaskID(taskID))
	if err != nil {
		return TaskView{}, mapAppError("get task", err)
	}
	return a.view(ctx, task)
}

// CreateTask validates and stores a new task. Any id in the payload is ignored.
func (a *StoreAdapter) CreateTask(ctx context.Context, in TaskPayload) (TaskView, error) {
	if a == nil || a.store == nil {
		return TaskView{}, fmt.Errorf("create task: %w", ErrUnavailable)
	}
	in.ID = ""
	task, err := a.normalizePayload(ctx, in)
	if err != nil {
		return TaskView{}, err
	}
	created, err := a.store.CreateTask(ctx, task)
	if err != nil {
		return TaskView{}, mapAppError("create task", err)
	}
	return a.view(ctx, created)
}

// UpdateTask replaces a stored task. The path id wins over any payload id.
func (a *StoreAdapter) UpdateTask(ctx context.Context, id string, in TaskPayload) (TaskView, error) {
	if a == nil || a.store == nil {
		return TaskView{}, fmt.Errorf("update task: %w", ErrUnavailable)
	}
	taskID, err := requireID(id, "task_id")
	if err != nil {
		return TaskView{}, err
	}
	if in.ID != "" && string(in.ID) != taskID {
		return TaskView{}, fmt.Errorf("body id %q does not match path id %q: %w", in.ID, taskID, ErrInvalidRequest)
	}
	in.ID = wire.ID(taskID)
	task, err := a.normalizePayload(ctx, in)
	if err != nil {
		return TaskView{}, err
	}
	updated, err := a.store.UpdateTask(ctx, task)
	if err != nil {
		return TaskView{}, mapAppError("update task", err)
	}
	return a.view(ctx, updated)
}

// MoveTask changes only the workflow state of a task.
func (a *StoreAdapter) MoveTask(ctx context.Context, req MoveTaskRequest) (TaskView, error) {
	if a == nil || a.store == nil {
		return TaskView{}, fmt.Errorf("move task: %w", ErrUnavailable)
	}
	taskID, err := requireID(req.TaskID, "task_id")
	if err != nil {
		return TaskView{}, err
	}
	state, err := parseStateOrStatus(req.State)
	if err != nil {
		return TaskView{}, err
	}
	task, err := a.store.GetTask(ctx, domain.TaskID(taskID))
	if err != nil {
		return TaskView{}, mapAppError("move task", err)
	}
	if task.State != state {
		task.State = state
		task, err = a.store.UpdateTask(ctx, task)
		if err != nil {
			return TaskView{}, mapAppError("move task", err)
		}
	}
	return a.view(ctx, task)
}

// DeleteTask removes a task.
func (a *StoreAdapter) DeleteTask(ctx context.Context, id string) error {
	if a == nil || a.store == nil {
		return fmt.Errorf("delete task: %w", ErrUnavailable)
	}
	taskID, err := requireID(id, "task_id")
	if err != nil {
		return err
	}
	if err := a.store.DeleteTask(ctx, domain.TaskID(taskID)); err != nil {
		return mapAppError("delete task", err)
	}
	return nil
}

// ListClients returns directory entries matching the optional query.
func (a *StoreAdapter) ListClients(ctx context.Context, req ListClientsRequest) ([]ClientView, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("list clients: %w", ErrUnavailable)
	}
	clients, err := a.store.ListClients(ctx)
	if err != nil {
		return nil, mapAppError("list clients", err)
	}
	out := make([]ClientView, 0, len(clients))
	for _, c := range clients {
		if !c.Matches(req.Query) {
			continue
		}
		out = append(out, wire.FromClient(c))
	}
	return out, nil
}

// GetClient returns one directory entry.
func (a *StoreAdapter) GetClient(ctx context.Context, id string) (ClientView, error) {
	if a == nil || a.store == nil {
		return ClientView{}, fmt.Errorf("get client: %w", ErrUnavailable)
	}
	clientID, err := requireID(id, "client_id")
	if err != nil {
		return ClientView{}, err
	}
	c, err := a.store.GetClient(ctx, domain.ClientID(clientID))
	if err != nil {
		return ClientView{}, mapAppError("get client", err)
	}
	return wire.FromClient(c), nil
}

// ListTaskEvents returns activity ledger entries newest first.
func (a *StoreAdapter) ListTaskEvents(ctx context.Context, req ListTaskEventsRequest) ([]ChangeEventView, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("list task events: %w", ErrUnavailable)
	}
	if req.Limit < 0 {
		return nil, fmt.Errorf("limit must be >= 0: %w", ErrInvalidRequest)
	}
	events, err := a.store.ListChangeEvents(ctx, domain.TaskID(strings.TrimSpace(req.TaskID)), req.Limit)
	if err != nil {
		return nil, mapAppError("list task events", err)
	}
	out := make([]ChangeEventView, 0, len(events))
	for _, event := range events {
		out = append(out, ChangeEventView{
			ID:         event.ID,
			TaskID:     wire.ID(event.TaskID),
			Operation:  string(event.Operation),
			Metadata:   event.Metadata,
			OccurredAt: event.OccurredAt,
		})
	}
	return out, nil
}

// normalizePayload converts and validates a task payload, including that the
// client exists.
func (a *StoreAdapter) normalizePayload(ctx context.Context, in TaskPayload) (domain.Task, error) {
	if strings.TrimSpace(in.Status) == "" {
		in.Status = wire.StatusOpen
	}
	if strings.TrimSpace(in.ScheduledDate) == "" {
		return domain.Task{}, fmt.Errorf("dataServico is required: %w", ErrInvalidRequest)
	}
	decoded, err := in.ToTask()
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	task, err := domain.NewTask(domain.TaskInput{
		ID:            decoded.ID,
		Title:         decoded.Title,
		Description:   decoded.Description,
		State:         decoded.State,
		Priority:      decoded.Priority,
		ClientID:      decoded.ClientID,
		ScheduledDate: decoded.ScheduledDate,
	})
	if err != nil {
		return domain.Task{}, mapAppError("validate task", err)
	}
	if _, err := a.store.GetClient(ctx, task.ClientID); err != nil {
		if errors.Is(err, app.ErrNotFound) {
			return domain.Task{}, fmt.Errorf("client %q not found: %w", task.ClientID, ErrInvalidRequest)
		}
		return domain.Task{}, mapAppError("validate task", err)
	}
	return task, nil
}

func (a *StoreAdapter) view(ctx context.Context, task domain.Task) (TaskView, error) {
	clients, err := a.clientIndex(ctx)
	if err != nil {
		return TaskView{}, err
	}
	view, err := toTaskView(task, clients)
	if err != nil {
		return TaskView{}, mapAppError("encode task", err)
	}
	return view, nil
}

func (a *StoreAdapter) clientIndex(ctx context.Context) (map[domain.ClientID]domain.Client, error) {
	clients, err := a.store.ListClients(ctx)
	if err != nil {
		return nil, mapAppError("list clients", err)
	}
	index := make(map[domain.ClientID]domain.Client, len(clients))
	for _, c := range clients {
		index[c.ID] = c
	}
	return index, nil
}

func toTaskView(task domain.Task, clients map[domain.ClientID]domain.Client) (TaskView, error) {
	view, err := wire.FromTask(task)
	if err != nil {
		return TaskView{}, err
	}
	if c, ok := clients[task.ClientID]; ok {
		view.ClientName = c.Name
		view.ClientAddress = c.Address
	}
	return view, nil
}

// parseStateOrStatus accepts board state names and store status values.
func parseStateOrStatus(raw string) (domain.WorkflowState, error) {
	if state, err := wire.StateFromStatus(strings.ToUpper(strings.TrimSpace(raw))); err == nil {
		return state, nil
	}
	state, err := domain.ParseWorkflowState(raw)
	if err != nil {
		return "", fmt.Errorf("state %q is unsupported: %w", raw, ErrInvalidRequest)
	}
	return state, nil
}

func requireID(raw, field string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("%s is required: %w", field, ErrInvalidRequest)
	}
	return id, nil
}

// mapAppError maps app/domain errors into transport-layer error sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidWorkflowState),
		errors.Is(err, domain.ErrInvalidClientID),
		errors.Is(err, domain.ErrInvalidScheduledDate),
		errors.Is(err, wire.ErrUnknownStatus):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
