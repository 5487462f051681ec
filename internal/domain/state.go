package domain

import (
	"fmt"
	"slices"
	"strings"
)

// WorkflowState identifies the board column a task belongs to.
type WorkflowState string

const (
	StateOpen       WorkflowState = "OPEN"
	StateInProgress WorkflowState = "IN_PROGRESS"
	StateDone       WorkflowState = "DONE"
)

// WorkflowStates lists every state in board column order.
var WorkflowStates = []WorkflowState{StateOpen, StateInProgress, StateDone}

// Valid reports whether s is one of the three board states.
func (s WorkflowState) Valid() bool {
	return slices.Contains(WorkflowStates, s)
}

// Label returns the column heading shown for the state.
func (s WorkflowState) Label() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateInProgress:
		return "In Progress"
	case StateDone:
		return "Done"
	default:
		return string(s)
	}
}

// Index returns the column position of s, or -1 when s is not a board state.
func (s WorkflowState) Index() int {
	return slices.Index(WorkflowStates, s)
}

// Next returns the state to the right of s, clamped at the last column.
func (s WorkflowState) Next() WorkflowState {
	idx := s.Index()
	if idx < 0 || idx >= len(WorkflowStates)-1 {
		return s
	}
	return WorkflowStates[idx+1]
}

// Prev returns the state to the left of s, clamped at the first column.
func (s WorkflowState) Prev() WorkflowState {
	idx := s.Index()
	if idx <= 0 {
		return s
	}
	return WorkflowStates[idx-1]
}

// ParseWorkflowState accepts the canonical names case-insensitively, plus the
// "in-progress" and "in progress" spellings used on the command line.
func ParseWorkflowState(raw string) (WorkflowState, error) {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	state := WorkflowState(norm)
	if !state.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidWorkflowState, raw)
	}
	return state, nil
}
