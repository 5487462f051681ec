package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	charmLog "github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v4"

	"github.com/hylla/agenda/internal/adapters/server"
	"github.com/hylla/agenda/internal/adapters/server/common"
	"github.com/hylla/agenda/internal/config"
	"github.com/hylla/agenda/internal/domain"
	"github.com/hylla/agenda/internal/tui"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("AGENDA_DEV_MODE", "false")
	os.Exit(m.Run())
}

// fakeProgram records the model it was built with and every Send.
type fakeProgram struct {
	model  tea.Model
	runErr error

	mu   sync.Mutex
	sent []tea.Msg
}

func (f *fakeProgram) Run() (tea.Model, error) {
	return f.model, f.runErr
}

func (f *fakeProgram) Send(msg tea.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
}

const seedYAML = `
clients:
  - id: "1"
    name: Padaria
    address: Rua A
  - id: "2"
    name: Oficina
    address: Av. Central
tasks:
  - title: Fix pump
    state: OPEN
    priority: 1
    client: "1"
    date: "2026-03-10"
  - title: Invoice
    state: DONE
    priority: 2
    client: "2"
    date: "2026-03-11"
`

// writeFixture writes a config and seed file into a temp dir and returns the
// config path and db path.
func writeFixture(t *testing.T, configBody string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.yaml")
	if err := os.WriteFile(seedPath, []byte(seedYAML), 0o644); err != nil {
		t.Fatalf("WriteFile(seed) error = %v", err)
	}
	cfgPath := filepath.Join(dir, "config.toml")
	body := "[serve]\nseed_file = " + `"` + filepath.ToSlash(seedPath) + `"` + "\n" + configBody
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile(config) error = %v", err)
	}
	return cfgPath, filepath.Join(dir, "agenda.db")
}

func TestRunVersion(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), []string{"--version"}, &out, io.Discard); err != nil {
		t.Fatalf("run(--version) error = %v", err)
	}
	if !strings.Contains(out.String(), "agenda") || !strings.Contains(out.String(), version) {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

func TestRunStartsBoardOnLocalStore(t *testing.T) {
	origFactory := programFactory
	t.Cleanup(func() { programFactory = origFactory })

	var started *fakeProgram
	programFactory = func(m tea.Model) program {
		started = &fakeProgram{model: m}
		return started
	}

	cfgPath, dbPath := writeFixture(t, "")
	if err := run(context.Background(), []string{"--config", cfgPath, "--db", dbPath, "--local"}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if started == nil {
		t.Fatal("expected program to start")
	}
	if _, ok := started.model.(tui.Model); !ok {
		t.Fatalf("expected tui.Model, got %T", started.model)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected sqlite file at %s: %v", dbPath, err)
	}
}

func TestRunBoardReportsProgramError(t *testing.T) {
	origFactory := programFactory
	t.Cleanup(func() { programFactory = origFactory })
	programFactory = func(m tea.Model) program {
		return &fakeProgram{model: m, runErr: errors.New("no tty")}
	}

	cfgPath, dbPath := writeFixture(t, "")
	err := run(context.Background(), []string{"--config", cfgPath, "--db", dbPath, "--local"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "no tty") {
		t.Fatalf("expected program error, got %v", err)
	}
}

func TestRunRemoteModeRejectsBadBaseURL(t *testing.T) {
	cfgPath, _ := writeFixture(t, "[store]\nbase_url = \"::not a url\"\n")
	err := run(context.Background(), []string{"--config", cfgPath}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "base_url") {
		t.Fatalf("expected base_url validation error, got %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if err := run(context.Background(), []string{"bogus"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected unknown command error")
	}
}

func TestRunInvalidFlag(t *testing.T) {
	if err := run(context.Background(), []string{"--bogus"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected invalid flag error")
	}
}

func TestRunRejectsInvalidLoggingLevelFromConfig(t *testing.T) {
	cfgPath, dbPath := writeFixture(t, "[logging]\nlevel = \"loud\"\n")
	err := run(context.Background(), []string{"--config", cfgPath, "--db", dbPath, "tasks", "--local"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "logging.level") {
		t.Fatalf("expected logging level error, got %v", err)
	}
}

func TestRunTasksPrintsSeededBoard(t *testing.T) {
	cfgPath, dbPath := writeFixture(t, "[board]\ndate_format = \"2006-01-02\"\n")
	var out strings.Builder
	if err := run(context.Background(), []string{"--config", cfgPath, "--db", dbPath, "--local", "tasks"}, &out, io.Discard); err != nil {
		t.Fatalf("run(tasks) error = %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"Open (1)",
		"In Progress (0)",
		"Done (1)",
		"[high] Fix pump · 2026-03-10 · Padaria, Rua A",
		"[medium] Invoice · 2026-03-11 · Oficina, Av. Central",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in output:\n%s", want, got)
		}
	}

	// A second run must not duplicate seed tasks.
	out.Reset()
	if err := run(context.Background(), []string{"--config", cfgPath, "--db", dbPath, "--local", "tasks"}, &out, io.Discard); err != nil {
		t.Fatalf("run(tasks) second error = %v", err)
	}
	if !strings.Contains(out.String(), "Open (1)") {
		t.Fatalf("expected seed applied once, got:\n%s", out.String())
	}
}

func TestRunServePassesConfigAndStore(t *testing.T) {
	origRunner := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = origRunner })

	var (
		gotCfg  server.Config
		gotDeps server.Dependencies
		tasks   []common.TaskView
	)
	serveCommandRunner = func(ctx context.Context, cfg server.Config, deps server.Dependencies) error {
		gotCfg, gotDeps = cfg, deps
		if err := deps.Ready(ctx); err != nil {
			return err
		}
		var err error
		tasks, err = deps.Service.ListTasks(ctx, common.ListTasksRequest{})
		return err
	}

	cfgPath, dbPath := writeFixture(t, "jwt_secret = \"s3cret\"\nallowed_origins = [\"http://localhost:5173\"]\n")
	args := []string{"--config", cfgPath, "--db", dbPath, "serve", "--bind", "127.0.0.1:9999", "--mcp-read-only"}
	if err := run(context.Background(), args, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(serve) error = %v", err)
	}
	if gotCfg.HTTPBind != "127.0.0.1:9999" || gotCfg.JWTSecret != "s3cret" || !gotCfg.MCPReadOnly {
		t.Fatalf("unexpected serve config %#v", gotCfg)
	}
	if len(gotCfg.AllowedOrigins) != 1 || gotCfg.APIEndpoint != "/api" || gotCfg.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected endpoints/origins %#v", gotCfg)
	}
	if gotDeps.Logger == nil || gotDeps.Service == nil {
		t.Fatal("expected logger and service dependencies")
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 seeded tasks over the service, got %d", len(tasks))
	}
}

func TestRunTokenMintsVerifiableToken(t *testing.T) {
	t.Setenv("AGENDA_SERVE_JWT_SECRET", "s3cret")
	cfgPath, dbPath := writeFixture(t, "")
	tokenPath := filepath.Join(filepath.Dir(cfgPath), "token")
	if err := os.WriteFile(cfgPath, []byte("[store]\ntoken_file = \""+filepath.ToSlash(tokenPath)+"\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var out strings.Builder
	args := []string{"--config", cfgPath, "--db", dbPath, "token", "--subject", "ana", "--ttl", "1h", "--save"}
	if err := run(context.Background(), args, &out, io.Discard); err != nil {
		t.Fatalf("run(token) error = %v", err)
	}
	raw := strings.TrimSpace(out.String())
	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return []byte("s3cret"), nil }); err != nil {
		t.Fatalf("ParseWithClaims() error = %v", err)
	}
	if claims.Subject != "ana" || claims.ExpiresAt == nil {
		t.Fatalf("unexpected claims %#v", claims)
	}
	saved, err := os.ReadFile(tokenPath)
	if err != nil || strings.TrimSpace(string(saved)) != raw {
		t.Fatalf("expected saved token, got %q err=%v", saved, err)
	}

	loaded, err := config.LoadWithEnv(cfgPath, config.Default(dbPath))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if tok, err := loaded.Store.ResolveToken(); err != nil || tok != raw {
		t.Fatalf("expected token_file to resolve the minted token, got %q err=%v", tok, err)
	}
}

func TestMintTokenValidation(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	if _, err := mintToken("", "agenda", "ana", time.Hour, now); err == nil {
		t.Fatal("expected missing secret error")
	}
	if _, err := mintToken("s", "agenda", "ana", 0, now); err == nil {
		t.Fatal("expected ttl error")
	}
}

func TestRunPathsCommand(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), []string{"--app", "agenda-test", "paths"}, &out, io.Discard); err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	for _, want := range []string{"app: agenda-test", "dev_mode: false", "config:", "db:", "token:", "seed:"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in paths output %q", want, out.String())
		}
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("AGENDA_TEST_BOOL", "true")
	if v, ok := parseBoolEnv("AGENDA_TEST_BOOL"); !ok || !v {
		t.Fatalf("expected true, got %v %v", v, ok)
	}
	t.Setenv("AGENDA_TEST_BOOL", "nope")
	if _, ok := parseBoolEnv("AGENDA_TEST_BOOL"); ok {
		t.Fatal("expected invalid bool to be ignored")
	}
}

func TestToTUIRuntimeConfigMapsFields(t *testing.T) {
	cfg := config.Default("/tmp/agenda.db")
	cfg.Drag.PointerDistance = 9
	cfg.Drag.TouchDelayMS = 250
	cfg.Board.DateFormat = "2006-01-02"
	cfg.Board.ShowAddress = false
	cfg.Board.RefreshSeconds = 30

	got := toTUIRuntimeConfig(cfg)
	if got.Drag.PointerDistance != 9 || got.Drag.TouchDelay != 250*time.Millisecond || got.Drag.TouchTolerance != cfg.Drag.TouchTolerance {
		t.Fatalf("unexpected drag config %#v", got.Drag)
	}
	if got.DateFormat != "2006-01-02" || got.Cards.ShowAddress || !got.Cards.ShowDescription {
		t.Fatalf("unexpected board config %#v", got)
	}
	if got.RefreshInterval != 30*time.Second {
		t.Fatalf("unexpected refresh interval %s", got.RefreshInterval)
	}
}

func TestWatchConfigSendsReloadedConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	logger, err := newRuntimeLogger(io.Discard, "agenda", false, config.LoggingConfig{Level: "error"}, nil)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	env := &runtimeEnv{configPath: cfgPath, defaults: config.Default(filepath.Join(dir, "agenda.db")), logger: logger}
	p := &fakeProgram{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		watchConfig(ctx, env, p)
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(cfgPath, []byte("[board]\ndate_format = \"2006\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		p.mu.Lock()
		n := len(p.sent)
		p.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected config message after file write")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestRuntimeLoggerCanMuteConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newRuntimeLogger(&buf, "agenda", false, config.LoggingConfig{Level: "info"}, nil)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	logger.Info("visible")
	logger.SetConsoleEnabled(false)
	logger.Info("hidden")
	if !strings.Contains(buf.String(), "visible") || strings.Contains(buf.String(), "hidden") {
		t.Fatalf("unexpected console output %q", buf.String())
	}
	if logger.DevLogPath() != "" {
		t.Fatal("expected no dev log outside dev mode")
	}
}

func TestRuntimeLoggerWritesDevFile(t *testing.T) {
	dir := t.TempDir()
	now := func() time.Time { return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) }
	logger, err := newRuntimeLogger(io.Discard, "agenda", true, config.LoggingConfig{
		Level:   "debug",
		DevFile: config.DevFileConfig{Enabled: true, Dir: dir},
	}, now)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	logger.SetConsoleEnabled(false)
	logger.Debug("task moved", "task_id", domain.TaskID("t1"))
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	want := filepath.Join(dir, "agenda-20260310.log")
	if logger.DevLogPath() != want {
		t.Fatalf("DevLogPath() = %q want %q", logger.DevLogPath(), want)
	}
	content, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "task_id=t1") {
		t.Fatalf("expected logfmt entry, got %q", content)
	}
}

func TestRuntimeLoggerRejectsBadLevel(t *testing.T) {
	if _, err := newRuntimeLogger(io.Discard, "agenda", false, config.LoggingConfig{Level: "loud"}, nil); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := charmLog.ParseLevel("warn"); err != nil {
		t.Fatalf("ParseLevel(warn) error = %v", err)
	}
}

func TestWorkspaceRootFromUsesNearestMarker(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if got := workspaceRootFrom(nested); got != root {
		t.Fatalf("workspaceRootFrom() = %q want %q", got, root)
	}
}

func TestSanitizeLogFileStem(t *testing.T) {
	cases := map[string]string{
		"agenda":     "agenda",
		"my app/dev": "my-app-dev",
		"  ":         "agenda",
		"c:\\x":      "c--x",
	}
	for in, want := range cases {
		if got := sanitizeLogFileStem(in); got != want {
			t.Fatalf("sanitizeLogFileStem(%q) = %q want %q", in, got, want)
		}
	}
}
