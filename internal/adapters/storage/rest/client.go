// Package rest talks to the task store and client directory over HTTP.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hylla/agenda/internal/adapters/wire"
	"github.com/hylla/agenda/internal/app"
	"github.com/hylla/agenda/internal/domain"
)

// ErrUnauthorized reports a 401 from the store. The session has already been
// invalidated when it is returned.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInvalidBaseURL reports an unusable store address.
var ErrInvalidBaseURL = errors.New("invalid base url")

const maxErrorBody = 4 << 10

// StatusError reports an unexpected HTTP status from the store.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// Config holds configuration for the store client.
type Config struct {
	BaseURL     string
	TasksPath   string
	ClientsPath string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      app.Logger
}

// Client implements app.TaskRepository and app.ClientDirectory.
type Client struct {
	base        *url.URL
	tasksPath   string
	clientsPath string
	http        *http.Client
	session     *Session
	log         app.Logger
}

var (
	_ app.TaskRepository  = (*Client)(nil)
	_ app.ClientDirectory = (*Client)(nil)
)

// New constructs a new value for this package.
func New(cfg Config, session *Session) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w %q", ErrInvalidBaseURL, raw)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		base:        base,
		tasksPath:   normalizePath(cfg.TasksPath, "/tasks"),
		clientsPath: normalizePath(cfg.ClientsPath, "/clients"),
		http:        httpClient,
		session:     session,
		log:         loggerOrNop(cfg.Logger),
	}, nil
}

// Session returns the session the client authenticates with.
func (c *Client) Session() *Session { return c.session }

// ListTasks fetches every task.
func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var dtos []wire.Task
	if err := c.do(ctx, http.MethodGet, c.tasksPath, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(dtos))
	for _, dto := range dtos {
		task, err := dto.ToTask()
		if err != nil {
			return nil, fmt.Errorf("decode tasks: %w", err)
		}
		out = append(out, task)
	}
	return out, nil
}

// CreateTask posts a draft and returns the stored task with its new id.
func (c *Client) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	task.ID = ""
	return c.sendTask(ctx, http.MethodPost, c.tasksPath, task)
}

// UpdateTask replaces a stored task.
func (c *Client) UpdateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	if task.ID == "" {
		return domain.Task{}, domain.ErrInvalidID
	}
	return c.sendTask(ctx, http.MethodPut, c.taskPath(task.ID), task)
}

// DeleteTask removes a stored task.
func (c *Client) DeleteTask(ctx context.Context, id domain.TaskID) error {
	if id == "" {
		return domain.ErrInvalidID
	}
	return c.do(ctx, http.MethodDelete, c.taskPath(id), nil, nil)
}

// ListClients fetches the client directory.
func (c *Client) ListClients(ctx context.Context) ([]domain.Client, error) {
	var dtos []wire.Client
	if err := c.do(ctx, http.MethodGet, c.clientsPath, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]domain.Client, 0, len(dtos))
	for _, dto := range dtos {
		client, err := dto.ToClient()
		if err != nil {
			c.log.Warn("skipping client without id", "name", dto.Name)
			continue
		}
		out = append(out, client)
	}
	return out, nil
}

func (c *Client) sendTask(ctx context.Context, method, path string, task domain.Task) (domain.Task, error) {
	dto, err := wire.FromTask(task)
	if err != nil {
		return domain.Task{}, err
	}
	var saved wire.Task
	if err := c.do(ctx, method, path, dto, &saved); err != nil {
		return domain.Task{}, err
	}
	if saved.ID == "" {
		// Stores that answer 204 leave the body empty.
		return task, nil
	}
	return saved.ToTask()
}

func (c *Client) taskPath(id domain.TaskID) string {
	return c.tasksPath + "/" + url.PathEscape(string(id))
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	endpoint := c.base.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.session.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("store request failed", "method", method, "path", path, "err", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("store request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(started))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.session.Invalidate()
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readErrorMessage extracts a message from either the {"error":{"message"}}
// envelope or a plain-text body.
func readErrorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return strings.TrimSpace(string(raw))
}

func normalizePath(path, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = fallback
	}
	return "/" + strings.Trim(path, "/")
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func loggerOrNop(l app.Logger) app.Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
