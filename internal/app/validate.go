package app

import (
	"strconv"
	"strings"

	"github.com/hylla/agenda/internal/domain"
)

// Form field keys reported in FieldErrors.
const (
	FieldTitle         = "title"
	FieldScheduledDate = "scheduledDate"
	FieldClientID      = "clientId"
	FieldPriority      = "priority"
	FieldStatus        = "status"
)

// Validation reasons.
const (
	ReasonRequired        = "required"
	ReasonInvalidDate     = "invalid date"
	ReasonUnknownClient   = "unknown client"
	ReasonInvalidPriority = "invalid priority"
	ReasonInvalidStatus   = "invalid status"
)

// TaskDraft holds raw form input for a task being created or edited.
type TaskDraft struct {
	ID            domain.TaskID
	Title         string
	Description   string
	State         domain.WorkflowState
	Priority      domain.Priority
	ClientID      string
	ScheduledDate string
}

// DraftFromTask prefills a form draft from an existing task.
func DraftFromTask(task domain.Task) TaskDraft {
	draft := TaskDraft{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		State:       task.State,
		Priority:    task.Priority,
		ClientID:    string(task.ClientID),
	}
	if !task.ScheduledDate.IsZero() {
		draft.ScheduledDate = task.ScheduledDate.Format(domain.DateLayout)
	}
	return draft
}

// ParsePriority parses a 1-3 priority; empty input yields PriorityUnset.
func ParsePriority(raw string) (domain.Priority, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.PriorityUnset, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return domain.PriorityUnset, false
	}
	p := domain.Priority(n)
	return p, p.Valid()
}

// FieldErrors maps a form field to the reason it is invalid.
type FieldErrors map[string]string

// Err returns a *ValidationError for non-empty field errors, or nil.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

// TaskValidator checks task drafts against a client directory snapshot.
type TaskValidator struct {
	clients map[domain.ClientID]struct{}
}

// NewTaskValidator constructs a new value for this package.
func NewTaskValidator(clients []domain.Client) *TaskValidator {
	known := make(map[domain.ClientID]struct{}, len(clients))
	for _, c := range clients {
		known[c.ID] = struct{}{}
	}
	return &TaskValidator{clients: known}
}

// Validate returns every invalid field of draft, or an empty map.
func (v *TaskValidator) Validate(draft TaskDraft) FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(draft.Title) == "" {
		errs[FieldTitle] = ReasonRequired
	}

	switch date := strings.TrimSpace(draft.ScheduledDate); {
	case date == "":
		errs[FieldScheduledDate] = ReasonRequired
	default:
		if _, err := domain.ParseDate(date); err != nil {
			errs[FieldScheduledDate] = ReasonInvalidDate
		}
	}

	switch id := domain.ClientID(strings.TrimSpace(draft.ClientID)); {
	case id == "":
		errs[FieldClientID] = ReasonRequired
	default:
		if _, ok := v.clients[id]; !ok {
			errs[FieldClientID] = ReasonUnknownClient
		}
	}

	if draft.Priority != domain.PriorityUnset && !draft.Priority.Valid() {
		errs[FieldPriority] = ReasonInvalidPriority
	}
	if draft.State != "" && !draft.State.Valid() {
		errs[FieldStatus] = ReasonInvalidStatus
	}
	return errs
}

// Build validates draft and converts it into a task ready for Upsert.
func (v *TaskValidator) Build(draft TaskDraft) (domain.Task, error) {
	if err := v.Validate(draft).Err(); err != nil {
		return domain.Task{}, err
	}
	date, _ := domain.ParseDate(draft.ScheduledDate)
	return domain.NewTask(domain.TaskInput{
		ID:            draft.ID,
		Title:         draft.Title,
		Description:   draft.Description,
		State:         draft.State,
		Priority:      draft.Priority,
		ClientID:      domain.ClientID(draft.ClientID),
		ScheduledDate: date,
	})
}
