package app

import (
	"context"
	"fmt"

	"github.com/hylla/agenda/internal/domain"
)

// Transition is one queued workflow-state change for a task. Transitions for
// the same task resolve strictly in request order; each waits for its
// predecessor before it is applied and persisted.
type Transition struct {
	board *Board
	prev  *Transition
	done  chan struct{}

	TaskID domain.TaskID
	To     domain.WorkflowState

	// guarded by board.mu
	from    domain.WorkflowState
	title   string
	applied bool
	started bool
	err     error
}

// Done is closed once the transition has resolved.
func (t *Transition) Done() <-chan struct{} {
	return t.done
}

// Err returns the resolution error, if any. Valid after Done is closed.
func (t *Transition) Err() error {
	t.board.mu.Lock()
	defer t.board.mu.Unlock()
	return t.err
}

// Applied reports whether the optimistic state was written to the board.
func (t *Transition) Applied() bool {
	t.board.mu.Lock()
	defer t.board.mu.Unlock()
	return t.applied
}

// RequestTransition queues a move of task id to state. When no other
// transition for the task is outstanding the new state is written to the
// board immediately, before any network round trip. A request for the state
// the task already shows resolves at once without touching the store.
//
// RequestTransition never blocks. The returned transition must be persisted
// with Persist so that later requests for the same task can proceed.
func (b *Board) RequestTransition(id domain.TaskID, to domain.WorkflowState) (*Transition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.index[id]
	if !ok {
		return nil, &TransitionError{TaskID: id, To: to, Err: ErrNotFound}
	}
	task := b.tasks[idx]
	if !to.Valid() {
		return nil, &TransitionError{TaskID: id, Title: task.Title, From: task.State, To: to, Err: domain.ErrInvalidWorkflowState}
	}

	t := &Transition{
		board:  b,
		done:   make(chan struct{}),
		TaskID: id,
		To:     to,
		title:  task.Title,
	}
	tail := b.queues[id]
	if tail == nil && task.State == to {
		close(t.done)
		return t, nil
	}

	t.prev = tail
	b.queues[id] = t
	if tail == nil {
		b.applyLocked(t, idx)
	}
	b.log.Debug("transition queued", "task_id", id, "to", to, "queued_behind", tail != nil)
	return t, nil
}

// ApplyTransition requests and persists a transition in one call.
func (b *Board) ApplyTransition(ctx context.Context, id domain.TaskID, to domain.WorkflowState) error {
	t, err := b.RequestTransition(id, to)
	if err != nil {
		return err
	}
	return t.Persist(ctx)
}

// Persist waits for earlier transitions of the same task, writes the new
// state to the board if it is not shown yet, and saves it to the store. On
// failure the board reverts to the previous state, unless something else has
// changed the task since, and a *TransitionError is returned.
func (t *Transition) Persist(ctx context.Context) error {
	b := t.board
	b.mu.Lock()
	if t.started {
		b.mu.Unlock()
		select {
		case <-t.done:
			return t.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	t.started = true
	b.mu.Unlock()

	select {
	case <-t.done:
		return t.Err()
	default:
	}

	if t.prev != nil {
		select {
		case <-t.prev.done:
		case <-ctx.Done():
			// Not applied yet, so there is nothing to roll back.
			b.mu.Lock()
			err := &TransitionError{TaskID: t.TaskID, Title: t.title, To: t.To, Err: ctx.Err()}
			b.finishLocked(t, err)
			b.mu.Unlock()
			return err
		}
	}

	b.mu.Lock()
	idx, ok := b.index[t.TaskID]
	if !ok {
		err := &TransitionError{TaskID: t.TaskID, Title: t.title, To: t.To, Err: ErrNotFound}
		b.finishLocked(t, err)
		b.mu.Unlock()
		return err
	}
	if !t.applied {
		if b.tasks[idx].State == t.To {
			b.finishLocked(t, nil)
			b.mu.Unlock()
			return nil
		}
		b.applyLocked(t, idx)
	}
	task := b.tasks[idx]
	task.State = t.To
	b.mu.Unlock()

	_, err := b.repo.UpdateTask(ctx, task)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.log.Info("task moved", "task_id", t.TaskID, "from", t.from, "to", t.To)
		b.gen++
		b.resolved[t.TaskID] = b.gen
		b.finishLocked(t, nil)
		return nil
	}

	if idx, ok := b.index[t.TaskID]; ok && b.tasks[idx].State == t.To {
		b.tasks[idx].State = t.from
		b.notify()
	}
	terr := &TransitionError{TaskID: t.TaskID, Title: t.title, From: t.from, To: t.To, Err: fmt.Errorf("update task: %w", err)}
	b.log.Error("task move reverted", "task_id", t.TaskID, "from", t.from, "to", t.To, "err", err)
	b.finishLocked(t, terr)
	return terr
}

func (b *Board) applyLocked(t *Transition, idx int) {
	t.from = b.tasks[idx].State
	t.title = b.tasks[idx].Title
	t.applied = true
	b.tasks[idx].State = t.To
	b.active[t.TaskID] = t
	b.notify()
}

func (b *Board) finishLocked(t *Transition, err error) {
	t.err = err
	if b.active[t.TaskID] == t {
		delete(b.active, t.TaskID)
	}
	if b.queues[t.TaskID] == t {
		delete(b.queues, t.TaskID)
	}
	close(t.done)
}
