package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hylla/agenda/internal/adapters/server/common"
	"github.com/hylla/agenda/internal/adapters/storage/sqlite"
	"github.com/hylla/agenda/internal/domain"
)

// recordingLogger captures log calls for assertions.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.record("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record("error", msg) }

func newTestService(t *testing.T) common.TaskService {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	require.NoError(t, repo.UpsertClient(context.Background(), domain.Client{ID: "1", Name: "Padaria", Address: "Rua A"}))
	return common.NewStoreAdapter(repo)
}

func doRequest(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNormalizeConfig(t *testing.T) {
	cfg, err := normalizeConfig(Config{APIEndpoint: "v1/", AllowedOrigins: []string{" ", "http://localhost:5173"}})
	require.NoError(t, err)
	assert.Equal(t, defaultBindAddress, cfg.HTTPBind)
	assert.Equal(t, "/v1", cfg.APIEndpoint)
	assert.Equal(t, "/mcp", cfg.MCPEndpoint)
	assert.Equal(t, "agenda", cfg.ServerName)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)

	_, err = normalizeConfig(Config{APIEndpoint: "/x", MCPEndpoint: "x"})
	assert.Error(t, err)
	_, err = normalizeConfig(Config{APIEndpoint: "/healthz"})
	assert.Error(t, err)
}

func TestNewHandlerRequiresService(t *testing.T) {
	_, _, err := NewHandler(Config{}, Dependencies{})
	assert.Error(t, err)
}

func TestHandlerServesHealthAndAPI(t *testing.T) {
	logger := &recordingLogger{}
	h, cfg, err := NewHandler(Config{}, Dependencies{Service: newTestService(t), Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, "/api", cfg.APIEndpoint)

	rec := doRequest(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = doRequest(t, h, http.MethodGet, "/api/clients", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Padaria")

	rec = doRequest(t, h, http.MethodGet, "/api/tasks/none", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.Contains(t, logger.lines, "debug request")
	assert.Contains(t, logger.lines, "warn request")
}

func TestReadinessReflectsStoreCheck(t *testing.T) {
	var failing bool
	h, _, err := NewHandler(Config{}, Dependencies{
		Service: newTestService(t),
		Ready: func(context.Context) error {
			if failing {
				return errors.New("db closed")
			}
			return nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/readyz", "").Code)
	failing = true
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(t, h, http.MethodGet, "/readyz", "").Code)
}

func TestBearerAuthGuardsAPI(t *testing.T) {
	const secret = "s3cret"
	h, _, err := NewHandler(Config{JWTSecret: secret}, Dependencies{Service: newTestService(t)})
	require.NoError(t, err)

	sign := func(key string, method jwt.SigningMethod, exp time.Time) string {
		t.Helper()
		var signingKey any = []byte(key)
		signed, err := jwt.NewWithClaims(method, jwt.MapClaims{"sub": "operator", "exp": exp.Unix()}).SignedString(signingKey)
		require.NoError(t, err)
		return signed
	}

	rec := doRequest(t, h, http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unauthorized"`)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	valid := sign(secret, jwt.SigningMethodHS256, time.Now().Add(time.Hour))
	assert.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/api/tasks", valid).Code)

	wrongKey := sign("other", jwt.SigningMethodHS256, time.Now().Add(time.Hour))
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, h, http.MethodGet, "/api/tasks", wrongKey).Code)

	expired := sign(secret, jwt.SigningMethodHS256, time.Now().Add(-time.Hour))
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, h, http.MethodGet, "/api/tasks", expired).Code)

	wrongAlg := sign(secret, jwt.SigningMethodHS512, time.Now().Add(time.Hour))
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, h, http.MethodGet, "/api/tasks", wrongAlg).Code)

	assert.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/healthz", "").Code, "health stays open")
}

func TestCORSPreflight(t *testing.T) {
	h, _, err := NewHandler(Config{
		JWTSecret:      "s3cret",
		AllowedOrigins: []string{"http://localhost:5173"},
	}, Dependencies{Service: newTestService(t)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", "authorization,content-type")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut))
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := bearerToken(req)
	assert.ErrorIs(t, err, ErrMissingBearer)

	req.Header.Set("Authorization", "Basic abc")
	_, err = bearerToken(req)
	assert.ErrorIs(t, err, ErrMissingBearer)

	req.Header.Set("Authorization", "bearer  tok ")
	got, err := bearerToken(req)
	require.NoError(t, err)
	assert.Equal(t, "tok", got)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPBind: "127.0.0.1:0"}, Dependencies{Service: newTestService(t)})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
