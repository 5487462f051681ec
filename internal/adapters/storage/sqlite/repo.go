package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hylla/agenda/internal/app"
	"github.com/hylla/agenda/internal/domain"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository stores tasks, clients and the task activity ledger.
type Repository struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

var (
	_ app.TaskRepository  = (*Repository)(nil)
	_ app.ClientDirectory = (*Repository)(nil)
)

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newRepository(db)
}

func newRepository(db *sql.DB) (*Repository, error) {
	repo := &Repository{db: db, now: time.Now, newID: uuid.NewString}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS clients (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			priority INTEGER NOT NULL,
			client_id TEXT NOT NULL,
			scheduled_date TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(client_id) REFERENCES clients(id)
		);`,
		`CREATE TABLE IF NOT EXISTS change_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_change_events_task ON change_events(task_id, id);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// UpsertClient inserts or replaces a client directory entry.
func (r *Repository) UpsertClient(ctx context.Context, c domain.Client) error {
	if strings.TrimSpace(string(c.ID)) == "" {
		return domain.ErrInvalidID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients(id, name, address, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, address = excluded.address
	`, string(c.ID), c.Name, c.Address, ts(r.now()))
	return err
}

// ListClients lists clients in insertion order.
func (r *Repository) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, address FROM clients ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetClient returns client.
func (r *Repository) GetClient(ctx context.Context, id domain.ClientID) (domain.Client, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, address FROM clients WHERE id = ?`, string(id))
	return scanClient(row)
}

// CreateTask stores a draft under a fresh id.
func (r *Repository) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	t.ID = domain.TaskID(r.newID())
	now := r.now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = requireClient(ctx, tx, t.ClientID); err != nil {
		return domain.Task{}, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks(id, title, description, state, priority, client_id, scheduled_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(t.ID),
		t.Title,
		t.Description,
		string(t.State),
		int(t.Priority),
		string(t.ClientID),
		t.ScheduledDate.Format(domain.DateLayout),
		ts(now),
		ts(now),
	)
	if err != nil {
		return domain.Task{}, err
	}

	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		TaskID:    t.ID,
		Operation: domain.ChangeOperationCreate,
		Metadata: map[string]string{
			"state": string(t.State),
			"title": t.Title,
		},
		OccurredAt: now,
	})
	if err != nil {
		return domain.Task{}, err
	}

	err = tx.Commit()
	return t, err
}

// UpdateTask replaces a stored task. Last write wins.
func (r *Repository) UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	now := r.now()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	prev, err := getTaskByID(ctx, tx, t.ID)
	if err != nil {
		return domain.Task{}, err
	}
	if err = requireClient(ctx, tx, t.ClientID); err != nil {
		return domain.Task{}, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, state = ?, priority = ?, client_id = ?, scheduled_date = ?, updated_at = ?
		WHERE id = ?
	`,
		t.Title,
		t.Description,
		string(t.State),
		int(t.Priority),
		string(t.ClientID),
		t.ScheduledDate.Format(domain.DateLayout),
		ts(now),
		string(t.ID),
	)
	if err != nil {
		return domain.Task{}, err
	}
	if err = translateNoRows(res); err != nil {
		return domain.Task{}, err
	}

	op, metadata := classifyTaskChange(prev, t)
	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		TaskID:     t.ID,
		Operation:  op,
		Metadata:   metadata,
		OccurredAt: now,
	})
	if err != nil {
		return domain.Task{}, err
	}

	err = tx.Commit()
	return t, err
}

// GetTask returns task.
func (r *Repository) GetTask(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	return getTaskByID(ctx, r.db, id)
}

// ListTasks lists tasks in insertion order.
func (r *Repository) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, description, state, priority, client_id, scheduled_date
		FROM tasks
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// DeleteTask deletes task.
func (r *Repository) DeleteTask(ctx context.Context, id domain.TaskID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	task, err := getTaskByID(ctx, tx, id)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, string(id))
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}

	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		TaskID:    task.ID,
		Operation: domain.ChangeOperationDelete,
		Metadata: map[string]string{
			"state": string(task.State),
			"title": task.Title,
		},
		OccurredAt: r.now(),
	})
	if err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// ListChangeEvents returns the newest activity entries, optionally for one
// task, newest first.
func (r *Repository) ListChangeEvents(ctx context.Context, taskID domain.TaskID, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, task_id, operation, metadata_json, created_at FROM change_events`
	args := []any{}
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, string(taskID))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ChangeEvent{}
	for rows.Next() {
		var (
			event       domain.ChangeEvent
			taskIDRaw   string
			opRaw       string
			metadataRaw string
			createdRaw  string
		)
		if err := rows.Scan(&event.ID, &taskIDRaw, &opRaw, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		event.TaskID = domain.TaskID(taskIDRaw)
		event.Operation = domain.ChangeOperation(opRaw)
		if err := json.Unmarshal([]byte(metadataRaw), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode change event metadata_json: %w", err)
		}
		event.OccurredAt = parseTS(createdRaw)
		out = append(out, event)
	}
	return out, rows.Err()
}

// queryRower represents a single-row read contract used by DB and Tx implementations.
type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func getTaskByID(ctx context.Context, q queryRower, id domain.TaskID) (domain.Task, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, title, description, state, priority, client_id, scheduled_date
		FROM tasks
		WHERE id = ?
	`, string(id))
	return scanTask(row)
}

func requireClient(ctx context.Context, q queryRower, id domain.ClientID) error {
	var found string
	err := q.QueryRowContext(ctx, `SELECT id FROM clients WHERE id = ?`, string(id)).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: client %q not found", domain.ErrInvalidClientID, id)
	}
	return err
}

// insertChangeEvent inserts a change-event ledger record.
func insertChangeEvent(ctx context.Context, execer execerContext, event domain.ChangeEvent) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode change event metadata: %w", err)
	}
	_, err = execer.ExecContext(ctx, `
		INSERT INTO change_events(task_id, operation, metadata_json, created_at)
		VALUES (?, ?, ?, ?)
	`,
		string(event.TaskID),
		string(event.Operation),
		string(metadataJSON),
		ts(event.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}

// classifyTaskChange tells a column move apart from a field edit.
func classifyTaskChange(prev, next domain.Task) (domain.ChangeOperation, map[string]string) {
	if prev.State != next.State {
		return domain.ChangeOperationMove, map[string]string{
			"from_state": string(prev.State),
			"to_state":   string(next.State),
		}
	}
	fields := changedTaskFields(prev, next)
	metadata := map[string]string{}
	if len(fields) > 0 {
		metadata["changed_fields"] = strings.Join(fields, ",")
	}
	return domain.ChangeOperationUpdate, metadata
}

func changedTaskFields(prev, next domain.Task) []string {
	changed := make([]string, 0)
	if prev.Title != next.Title {
		changed = append(changed, "title")
	}
	if prev.Description != next.Description {
		changed = append(changed, "description")
	}
	if prev.Priority != next.Priority {
		changed = append(changed, "priority")
	}
	if prev.ClientID != next.ClientID {
		changed = append(changed, "client_id")
	}
	if !prev.ScheduledDate.Equal(next.ScheduledDate) {
		changed = append(changed, "scheduled_date")
	}
	return changed
}

func scanClient(s scanner) (domain.Client, error) {
	var c domain.Client
	var id string
	if err := s.Scan(&id, &c.Name, &c.Address); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Client{}, app.ErrNotFound
		}
		return domain.Client{}, err
	}
	c.ID = domain.ClientID(id)
	return c, nil
}

func scanTask(s scanner) (domain.Task, error) {
	var (
		t        domain.Task
		id       string
		state    string
		priority int
		clientID string
		dateRaw  string
	)
	if err := s.Scan(&id, &t.Title, &t.Description, &state, &priority, &clientID, &dateRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, app.ErrNotFound
		}
		return domain.Task{}, err
	}
	t.ID = domain.TaskID(id)
	t.State = domain.WorkflowState(state)
	if !t.State.Valid() {
		return domain.Task{}, fmt.Errorf("decode task %s state %q: %w", id, state, domain.ErrInvalidWorkflowState)
	}
	t.Priority = domain.Priority(priority)
	t.ClientID = domain.ClientID(clientID)
	date, err := domain.ParseDate(dateRaw)
	if err != nil {
		return domain.Task{}, fmt.Errorf("decode task %s scheduled_date %q: %w", id, dateRaw, err)
	}
	t.ScheduledDate = date
	return t, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
