package gesture_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hylla/agenda/internal/adapters/storage/rest"
	"github.com/hylla/agenda/internal/app"
	"github.com/hylla/agenda/internal/domain"
	"github.com/hylla/agenda/internal/gesture"
)

// TestDragToInProgressPersistsOnce drives a pointer drag against a board
// backed by an HTTP store and checks the optimistic move and the single PUT.
func TestDragToInProgressPersistsOnce(t *testing.T) {
	var (
		mu   sync.Mutex
		puts []map[string]any
	)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/tasks":
			_, _ = io.WriteString(w, `[{"id":1,"titulo":"Troca de filtro","status":"EM_ABERTO","prioridade":1,"clienteId":7,"dataServico":"2026-03-10"}]`)
		case r.Method == http.MethodGet && r.URL.Path == "/clients":
			_, _ = io.WriteString(w, `[{"id":7,"name":"Padaria","address":"Rua A"}]`)
		case r.Method == http.MethodPut && r.URL.Path == "/tasks/1":
			<-release
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			puts = append(puts, body)
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(body)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := rest.New(rest.Config{BaseURL: srv.URL}, rest.NewSession("tok", nil))
	require.NoError(t, err)
	board := app.NewBoard(client, client, app.BoardConfig{})
	require.NoError(t, board.Refresh(context.Background()))

	columns := gesture.TargetsFunc(func(p gesture.Point) (domain.WorkflowState, bool) {
		if p.X < 0 || p.X >= 90 {
			return "", false
		}
		return domain.WorkflowStates[p.X/30], true
	})
	ctrl := gesture.NewController(board, columns, gesture.DefaultConfig())

	now := time.Now()
	require.Equal(t, gesture.Started, ctrl.Press("1", gesture.Point{X: 4, Y: 3}, gesture.Pointer, now).Kind)
	ctrl.Move(gesture.Point{X: 40, Y: 3}, now)
	out := ctrl.Release(gesture.Point{X: 40, Y: 3}, now)
	require.Equal(t, gesture.Dropped, out.Kind)

	inProgress := board.TasksInState(domain.StateInProgress)
	require.Len(t, inProgress, 1, "optimistic move is visible before the store answers")
	assert.Empty(t, board.TasksInState(domain.StateOpen))

	errCh := make(chan error, 1)
	go func() { errCh <- out.Transition.Persist(context.Background()) }()
	close(release)
	require.NoError(t, <-errCh)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, puts, 1)
	assert.Equal(t, "EM_ANDAMENTO", puts[0]["status"])
	assert.Equal(t, float64(1), puts[0]["id"])
}

// TestUnreachableStoreKeepsBoard checks that a failed reload leaves the last
// good board in place.
func TestUnreachableStoreKeepsBoard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":1,"titulo":"A","status":"EM_ABERTO","prioridade":2,"clienteId":1,"dataServico":"2026-03-10"}]`)
	}))
	client, err := rest.New(rest.Config{BaseURL: srv.URL, Timeout: time.Second}, nil)
	require.NoError(t, err)
	board := app.NewBoard(client, nil, app.BoardConfig{})
	_, err = board.Load(context.Background())
	require.NoError(t, err)

	srv.Close()
	_, err = board.Load(context.Background())
	assert.ErrorIs(t, err, app.ErrLoad)
	require.Len(t, board.Tasks(), 1)
	assert.Equal(t, domain.TaskID("1"), board.Tasks()[0].ID)
}
