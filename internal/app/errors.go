package app

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hylla/agenda/internal/domain"
)

// ErrNotFound and related errors classify board failures for errors.Is checks.
var (
	ErrNotFound    = errors.New("not found")
	ErrLoad        = errors.New("load failed")
	ErrTransition  = errors.New("transition failed")
	ErrValidation  = errors.New("validation failed")
	ErrPersistence = errors.New("persistence failed")
)

// LoadError reports a failed fetch. The board keeps its last good content.
type LoadError struct {
	Resource string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Resource, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is matches ErrLoad.
func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// TransitionError reports a state change that could not be persisted and was
// reverted in memory.
type TransitionError struct {
	TaskID domain.TaskID
	Title  string
	From   domain.WorkflowState
	To     domain.WorkflowState
	Err    error
}

func (e *TransitionError) Error() string {
	name := e.Title
	if name == "" {
		name = string(e.TaskID)
	}
	if e.From == "" {
		return fmt.Sprintf("move %q to %s: %v", name, e.To, e.Err)
	}
	return fmt.Sprintf("move %q from %s to %s: %v", name, e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// Is matches ErrTransition.
func (e *TransitionError) Is(target error) bool { return target == ErrTransition }

// ValidationError carries field-scoped form failures.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid task: " + strings.Join(parts, ", ")
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// PersistenceError reports a failed create, update or delete. Board content is
// left as it was before the attempt.
type PersistenceError struct {
	Op     string
	TaskID domain.TaskID
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("%s task: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
