package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hylla/agenda/internal/domain"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type stubStore struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (s *stubStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &rec.Body)
	}
	s.mu.Lock()
	s.requests = append(s.requests, rec)
	s.mu.Unlock()
	s.handler(w, r)
}

func newStubClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request), session *Session) (*Client, *stubStore) {
	t.Helper()
	store := &stubStore{handler: handler}
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)
	client, err := New(Config{BaseURL: srv.URL + "/api/"}, session)
	require.NoError(t, err)
	return client, store
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListTasksDecodesStoreFields(t *testing.T) {
	client, store := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"id":2,"titulo":"B","status":"EM_ABERTO","prioridade":2,"clienteId":1,"dataServico":"2026-03-02"},
			{"id":1,"titulo":"A","descricao":"d","status":"FINALIZADO","prioridade":1,"clienteId":1,"dataServico":"2026-03-01"}
		]`)
	}, NewSession("tok-1", nil))

	tasks, err := client.ListTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, domain.TaskID("2"), tasks[0].ID, "fetch order is preserved")
	assert.Equal(t, domain.StateDone, tasks[1].State)
	assert.Equal(t, "d", tasks[1].Description)

	require.Len(t, store.requests, 1)
	assert.Equal(t, http.MethodGet, store.requests[0].Method)
	assert.Equal(t, "/api/tasks", store.requests[0].Path)
	assert.Equal(t, "Bearer tok-1", store.requests[0].Auth)
}

func TestListTasksRejectsUnknownStatus(t *testing.T) {
	client, _ := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":1,"titulo":"A","status":"ARQUIVADO","prioridade":1,"clienteId":1,"dataServico":"2026-03-01"}]`)
	}, nil)
	_, err := client.ListTasks(context.Background())
	assert.ErrorContains(t, err, "unknown status")
}

func TestUpdateTaskSendsPutWithStoreStatus(t *testing.T) {
	client, store := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{
			"id": 1, "titulo": "Poda", "status": "EM_ANDAMENTO", "prioridade": 1, "clienteId": 4, "dataServico": "2026-03-10",
		})
	}, NewSession("t", nil))

	saved, err := client.UpdateTask(context.Background(), domain.Task{
		ID:            "1",
		Title:         "Poda",
		State:         domain.StateInProgress,
		Priority:      domain.PriorityHigh,
		ClientID:      "4",
		ScheduledDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateInProgress, saved.State)

	req := store.requests[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/api/tasks/1", req.Path)
	assert.Equal(t, "EM_ANDAMENTO", req.Body["status"])
	assert.Equal(t, float64(1), req.Body["id"])
	assert.Equal(t, "2026-03-10", req.Body["dataServico"])
}

func TestCreateTaskOmitsIDAndReturnsAssigned(t *testing.T) {
	client, store := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{
			"id": "abc", "titulo": "Nova", "status": "EM_ABERTO", "prioridade": 2, "clienteId": "c1", "dataServico": "2026-03-10",
		})
	}, nil)

	saved, err := client.CreateTask(context.Background(), domain.Task{
		ID:            "ignored",
		Title:         "Nova",
		State:         domain.StateOpen,
		Priority:      domain.PriorityMedium,
		ClientID:      "c1",
		ScheduledDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskID("abc"), saved.ID)
	req := store.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/tasks", req.Path)
	_, hasID := req.Body["id"]
	assert.False(t, hasID)
	assert.Equal(t, "", req.Auth)
}

func TestDeleteTaskAcceptsNoContent(t *testing.T) {
	client, store := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, nil)
	require.NoError(t, client.DeleteTask(context.Background(), "9"))
	assert.Equal(t, http.MethodDelete, store.requests[0].Method)
	assert.Equal(t, "/api/tasks/9", store.requests[0].Path)

	assert.ErrorIs(t, client.DeleteTask(context.Background(), ""), domain.ErrInvalidID)
}

func TestUnauthorizedInvalidatesSession(t *testing.T) {
	var invalidated int
	session := NewSession("expired", func() { invalidated++ })
	client, _ := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, session)

	_, err := client.ListTasks(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, invalidated)
	assert.Equal(t, "", session.Token())

	_, err = client.ListTasks(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, invalidated, "callback only fires when a token was held")
}

func TestStatusErrorCarriesEnvelopeMessage(t *testing.T) {
	client, _ := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"code": "invalid_request", "message": "client not found"}})
	}, nil)

	_, err := client.UpdateTask(context.Background(), domain.Task{ID: "1", Title: "x", State: domain.StateOpen, Priority: 2, ClientID: "z"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "client not found", statusErr.Message)
	assert.Contains(t, statusErr.Error(), "PUT /tasks/1: 400 client not found")
}

func TestNetworkFailureIsReturned(t *testing.T) {
	client, err := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, nil)
	require.NoError(t, err)
	_, err = client.ListTasks(context.Background())
	assert.Error(t, err)
}

func TestListClientsAcceptsBothNamings(t *testing.T) {
	client, store := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":1,"nome":"Padaria","endereco":"Rua A"},{"id":"x","name":"Oficina","address":"Rua B"},{"name":"sem id"}]`)
	}, nil)
	clients, err := client.ListClients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Client{
		{ID: "1", Name: "Padaria", Address: "Rua A"},
		{ID: "x", Name: "Oficina", Address: "Rua B"},
	}, clients)
	assert.Equal(t, "/api/clients", store.requests[0].Path)
}

func TestCustomPaths(t *testing.T) {
	store := &stubStore{handler: func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}}
	srv := httptest.NewServer(store)
	defer srv.Close()
	client, err := New(Config{BaseURL: srv.URL, TasksPath: "tarefas/", ClientsPath: "/clientes"}, nil)
	require.NoError(t, err)
	_, err = client.ListTasks(context.Background())
	require.NoError(t, err)
	_, err = client.ListClients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/tarefas", store.requests[0].Path)
	assert.Equal(t, "/clientes", store.requests[1].Path)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "://bad"} {
		_, err := New(Config{BaseURL: raw}, nil)
		assert.ErrorIs(t, err, ErrInvalidBaseURL, "base %q", raw)
	}
}

func TestSessionExpiryFromJWT(t *testing.T) {
	exp := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	session := NewSession(signed, nil)
	got, ok := session.ExpiresAt()
	require.True(t, ok)
	assert.True(t, got.Equal(exp))
	assert.Equal(t, "operator", session.Subject())
	assert.True(t, session.Valid(exp.Add(-time.Minute)))
	assert.False(t, session.Valid(exp.Add(time.Minute)))

	opaque := NewSession("not-a-jwt", nil)
	_, ok = opaque.ExpiresAt()
	assert.False(t, ok)
	assert.True(t, opaque.Valid(exp))
	assert.False(t, NewSession("", nil).Valid(exp))
}

func TestNilSessionIsInert(t *testing.T) {
	var session *Session
	assert.NotPanics(t, func() {
		session.SetToken("abc")
		session.Invalidate()
	})
	assert.Equal(t, "", session.Token())
	assert.Equal(t, "", session.Subject())
	assert.False(t, session.Valid(time.Now()))
}
