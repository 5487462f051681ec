package domain

import (
	"strings"
	"time"
)

// DateLayout is the calendar-date layout used by task scheduled dates.
const DateLayout = "2006-01-02"

// Priority orders tasks within a column; lower values sort first.
type Priority int

const (
	PriorityUnset  Priority = 0
	PriorityHigh   Priority = 1
	PriorityMedium Priority = 2
	PriorityLow    Priority = 3
)

// Valid reports whether p is High, Medium or Low.
func (p Priority) Valid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}

// String returns the display label for p.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unset"
	}
}

// Next cycles High -> Medium -> Low -> High.
func (p Priority) Next() Priority {
	if !p.Valid() || p == PriorityLow {
		return PriorityHigh
	}
	return p + 1
}

// TaskID is the opaque identifier assigned by the task store.
type TaskID string

// ClientID references a client directory entry.
type ClientID string

// Task is one scheduled service job on the board.
type Task struct {
	ID            TaskID
	Title         string
	Description   string
	State         WorkflowState
	Priority      Priority
	ClientID      ClientID
	ScheduledDate time.Time
}

// TaskInput holds the fields needed to build a Task.
type TaskInput struct {
	ID            TaskID
	Title         string
	Description   string
	State         WorkflowState
	Priority      Priority
	ClientID      ClientID
	ScheduledDate time.Time
}

// NewTask normalizes and validates in. An empty ID is allowed for drafts that
// have not been persisted yet.
func NewTask(in TaskInput) (Task, error) {
	in.ID = TaskID(strings.TrimSpace(string(in.ID)))
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.ClientID = ClientID(strings.TrimSpace(string(in.ClientID)))

	if in.Title == "" {
		return Task{}, ErrInvalidTitle
	}
	if in.State == "" {
		in.State = StateOpen
	}
	if !in.State.Valid() {
		return Task{}, ErrInvalidWorkflowState
	}
	if in.Priority == PriorityUnset {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return Task{}, ErrInvalidPriority
	}
	if in.ClientID == "" {
		return Task{}, ErrInvalidClientID
	}
	if in.ScheduledDate.IsZero() {
		return Task{}, ErrInvalidScheduledDate
	}

	return Task{
		ID:            in.ID,
		Title:         in.Title,
		Description:   in.Description,
		State:         in.State,
		Priority:      in.Priority,
		ClientID:      in.ClientID,
		ScheduledDate: NormalizeDate(in.ScheduledDate),
	}, nil
}

// IsDraft reports whether the task has not been assigned a store id.
func (t Task) IsDraft() bool {
	return t.ID == ""
}

// WithState returns a copy of t moved to state.
func (t Task) WithState(state WorkflowState) (Task, error) {
	if !state.Valid() {
		return Task{}, ErrInvalidWorkflowState
	}
	t.State = state
	return t, nil
}

// NormalizeDate drops the time-of-day portion of ts, keeping its calendar day.
func NormalizeDate(ts time.Time) time.Time {
	if ts.IsZero() {
		return ts
	}
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidScheduledDate
	}
	ts, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, ErrInvalidScheduledDate
	}
	return ts, nil
}
