package app

import (
	"context"

	"github.com/hylla/agenda/internal/domain"
)

// TaskRepository persists tasks in the task store.
type TaskRepository interface {
	ListTasks(context.Context) ([]domain.Task, error)
	CreateTask(context.Context, domain.Task) (domain.Task, error)
	UpdateTask(context.Context, domain.Task) (domain.Task, error)
	DeleteTask(context.Context, domain.TaskID) error
}

// ClientDirectory resolves client ids for card display and form validation.
type ClientDirectory interface {
	ListClients(context.Context) ([]domain.Client, error)
}

// Logger is the structured logger the board reports through.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
