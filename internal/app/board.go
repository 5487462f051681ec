package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/hylla/agenda/internal/domain"
)

// UnknownClient is displayed for tasks whose client is not in the directory.
const UnknownClient = "-"

// BoardConfig holds configuration for board.
type BoardConfig struct {
	Logger Logger
}

// Board owns the in-memory task set. Renderers and gesture controllers read
// from it and mutate tasks only through its methods.
type Board struct {
	repo    TaskRepository
	clients ClientDirectory
	log     Logger

	mu           sync.Mutex
	tasks        []domain.Task
	index        map[domain.TaskID]int
	directory    []domain.Client
	clientFilter string
	queues       map[domain.TaskID]*Transition
	active       map[domain.TaskID]*Transition

	// resolved records, per task, the generation at which its last
	// transition was confirmed by the store.
	resolved map[domain.TaskID]uint64
	gen      uint64
	loaded   bool

	changes chan struct{}
}

// NewBoard constructs a new value for this package. clients may be nil when no
// client directory is available; every client then resolves to UnknownClient.
func NewBoard(repo TaskRepository, clients ClientDirectory, cfg BoardConfig) *Board {
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Board{
		repo:     repo,
		clients:  clients,
		log:      logger,
		index:    map[domain.TaskID]int{},
		queues:   map[domain.TaskID]*Transition{},
		active:   map[domain.TaskID]*Transition{},
		resolved: map[domain.TaskID]uint64{},
		changes:  make(chan struct{}, 1),
	}
}

// Changes signals after every in-memory mutation. Signals coalesce.
func (b *Board) Changes() <-chan struct{} {
	return b.changes
}

func (b *Board) notify() {
	select {
	case b.changes <- struct{}{}:
	default:
	}
}

// Load replaces the whole task set with the store's content. On failure the
// previous set stays untouched and a *LoadError is returned.
func (b *Board) Load(ctx context.Context) ([]domain.Task, error) {
	b.mu.Lock()
	since := b.gen
	b.mu.Unlock()

	tasks, err := b.repo.ListTasks(ctx)
	if err != nil {
		b.log.Warn("task load failed", "err", err)
		return nil, &LoadError{Resource: "tasks", Err: err}
	}
	fetched := make([]domain.Task, 0, len(tasks))
	for _, task := range tasks {
		if !task.State.Valid() {
			b.log.Warn("task load failed", "task_id", task.ID, "state", task.State)
			return nil, &LoadError{Resource: "tasks", Err: fmt.Errorf("task %s: %w", task.ID, domain.ErrInvalidWorkflowState)}
		}
		fetched = append(fetched, task)
	}

	b.mu.Lock()
	index := make(map[domain.TaskID]int, len(fetched))
	for i, task := range fetched {
		// An in-flight transition keeps showing its optimistic state until it resolves.
		if tr, ok := b.active[task.ID]; ok {
			fetched[i].State = tr.To
		} else if b.resolved[task.ID] > since {
			// Confirmed after the fetch started, so the fetched state may predate it.
			if cur, ok := b.index[task.ID]; ok {
				fetched[i].State = b.tasks[cur].State
			}
		}
		index[task.ID] = i
	}
	b.tasks = fetched
	b.index = index
	b.loaded = true
	out := slices.Clone(fetched)
	b.mu.Unlock()

	b.log.Debug("tasks loaded", "count", len(out))
	b.notify()
	return out, nil
}

// LoadClients refreshes the client directory used for card enrichment.
func (b *Board) LoadClients(ctx context.Context) error {
	if b.clients == nil {
		return nil
	}
	clients, err := b.clients.ListClients(ctx)
	if err != nil {
		b.log.Warn("client load failed", "err", err)
		return &LoadError{Resource: "clients", Err: err}
	}
	b.mu.Lock()
	b.directory = slices.Clone(clients)
	b.mu.Unlock()
	b.log.Debug("clients loaded", "count", len(clients))
	b.notify()
	return nil
}

// Refresh loads tasks and clients concurrently.
func (b *Board) Refresh(ctx context.Context) error {
	var taskErr, clientErr error
	wg := conc.NewWaitGroup()
	wg.Go(func() {
		_, taskErr = b.Load(ctx)
	})
	wg.Go(func() {
		clientErr = b.LoadClients(ctx)
	})
	wg.Wait()
	return errors.Join(taskErr, clientErr)
}

// Loaded reports whether at least one load succeeded.
func (b *Board) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// Tasks returns every task in fetch order.
func (b *Board) Tasks() []domain.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.tasks)
}

// Task returns the task with id.
func (b *Board) Task(id domain.TaskID) (domain.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, ok := b.index[id]
	if !ok {
		return domain.Task{}, false
	}
	return b.tasks[idx], true
}

// TaskState returns the displayed state of a task.
func (b *Board) TaskState(id domain.TaskID) (domain.WorkflowState, bool) {
	task, ok := b.Task(id)
	if !ok {
		return "", false
	}
	return task.State, true
}

// TasksInState returns the tasks shown in the state's column, ordered by
// ascending priority. Equal priorities keep fetch order.
func (b *Board) TasksInState(state domain.WorkflowState) []domain.Task {
	b.mu.Lock()
	out := make([]domain.Task, 0, len(b.tasks))
	for _, task := range b.tasks {
		if task.State == state {
			out = append(out, task)
		}
	}
	b.mu.Unlock()
	slices.SortStableFunc(out, func(a, c domain.Task) int {
		return int(a.Priority) - int(c.Priority)
	})
	return out
}

// Pending reports whether a transition for id is queued or in flight.
func (b *Board) Pending(id domain.TaskID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.queues[id]
	return ok
}

// Upsert creates a draft or updates an existing task, then reloads the board.
// A store failure returns a *PersistenceError and leaves the board unchanged.
// A failed reload after a successful save returns the saved task with a
// *LoadError; the save must not be repeated.
func (b *Board) Upsert(ctx context.Context, task domain.Task) (domain.Task, error) {
	var (
		saved domain.Task
		err   error
		op    = "update"
	)
	if task.IsDraft() {
		op = "create"
		saved, err = b.repo.CreateTask(ctx, task)
	} else {
		saved, err = b.repo.UpdateTask(ctx, task)
	}
	if err != nil {
		b.log.Error("task save failed", "op", op, "task_id", task.ID, "err", err)
		return domain.Task{}, &PersistenceError{Op: op, TaskID: task.ID, Err: err}
	}
	b.log.Info("task saved", "op", op, "task_id", saved.ID)
	if _, err := b.Load(ctx); err != nil {
		return saved, err
	}
	return saved, nil
}

// SubmitDraft validates a form draft against the loaded client directory and
// upserts it. Validation failures return a *ValidationError without touching
// the store.
func (b *Board) SubmitDraft(ctx context.Context, draft TaskDraft) (domain.Task, error) {
	task, err := b.Validator().Build(draft)
	if err != nil {
		return domain.Task{}, err
	}
	return b.Upsert(ctx, task)
}

// Remove deletes a task from the store, then reloads the board. A failed
// reload returns a *LoadError even though the task is gone.
func (b *Board) Remove(ctx context.Context, id domain.TaskID) error {
	if err := b.repo.DeleteTask(ctx, id); err != nil {
		b.log.Error("task delete failed", "task_id", id, "err", err)
		return &PersistenceError{Op: "delete", TaskID: id, Err: err}
	}
	b.log.Info("task deleted", "task_id", id)
	_, err := b.Load(ctx)
	return err
}

// Clients returns the loaded client directory.
func (b *Board) Clients() []domain.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.directory)
}

// ClientInfo resolves a client id to display text, falling back to
// UnknownClient for both fields.
func (b *Board) ClientInfo(id domain.ClientID) (name, address string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.directory {
		if c.ID != id {
			continue
		}
		name, address = c.Name, c.Address
		if name == "" {
			name = UnknownClient
		}
		if address == "" {
			address = UnknownClient
		}
		return name, address
	}
	return UnknownClient, UnknownClient
}

// SetClientFilter sets the form picker's client query. Board tasks are never
// filtered by it.
func (b *Board) SetClientFilter(query string) {
	b.mu.Lock()
	b.clientFilter = query
	b.mu.Unlock()
}

// ClientFilter returns the current client query.
func (b *Board) ClientFilter() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clientFilter
}

// FilteredClients returns directory entries matching the client query.
func (b *Board) FilteredClients() []domain.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Client, 0, len(b.directory))
	for _, c := range b.directory {
		if c.Matches(b.clientFilter) {
			out = append(out, c)
		}
	}
	return out
}

// Validator returns a form validator bound to the loaded client directory.
func (b *Board) Validator() *TaskValidator {
	return NewTaskValidator(b.Clients())
}
