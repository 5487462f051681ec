package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/hylla/agenda/internal/adapters/server"
	"github.com/hylla/agenda/internal/adapters/server/common"
	"github.com/hylla/agenda/internal/adapters/storage/rest"
	"github.com/hylla/agenda/internal/adapters/storage/sqlite"
	"github.com/hylla/agenda/internal/app"
	"github.com/hylla/agenda/internal/config"
	"github.com/hylla/agenda/internal/domain"
	"github.com/hylla/agenda/internal/gesture"
	"github.com/hylla/agenda/internal/platform"
	"github.com/hylla/agenda/internal/tui"
)

// version stores a package-level helper value.
var version = "dev"

// program is the part of tea.Program the board command drives.
type program interface {
	Run() (tea.Model, error)
	Send(tea.Msg)
}

// programFactory stores a package-level helper value.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg server.Config, deps server.Dependencies) error {
	return server.Run(ctx, cfg, deps)
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	local      bool
}

// run builds the command tree and executes args against it.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version), fang.WithNotifySignal(os.Interrupt))
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{appName: platform.DefaultAppName, devMode: version == "dev"}
	if envDev, ok := parseBoolEnv("AGENDA_DEV_MODE"); ok {
		opts.devMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("AGENDA_APP_NAME")); envApp != "" {
		opts.appName = envApp
	}

	root := &cobra.Command{
		Use:   "agenda",
		Short: "Service task board for field work",
		Long:  "agenda shows service tasks as an Open / In Progress / Done board. Move cards with the mouse or [ and ].",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setupRuntime(opts, stderr, "board")
			if err != nil {
				return err
			}
			defer env.close(stderr)
			return runBoard(cmd.Context(), env)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to the local sqlite task store")
	flags.StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", opts.devMode, "use dev mode paths (<app>-dev)")
	flags.BoolVar(&opts.local, "local", false, "use the local sqlite store instead of the remote task API")

	root.AddCommand(
		newServeCommand(opts, stderr),
		newTokenCommand(opts, stdout, stderr),
		newTasksCommand(opts, stdout, stderr),
		newPathsCommand(opts, stdout),
	)
	return root
}

// runtimeEnv is the resolved configuration and logger of one invocation.
type runtimeEnv struct {
	appName    string
	paths      platform.Paths
	configPath string
	defaults   config.Config
	cfg        config.Config
	logger     *runtimeLogger
	overrides  globalOptions
}

// setupRuntime resolves paths, loads config (file, then AGENDA_* env, then
// flags) and builds the runtime logger.
func setupRuntime(opts *globalOptions, stderr io.Writer, command string) (*runtimeEnv, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: opts.appName,
		DevMode: opts.devMode,
	})
	if err != nil {
		return nil, err
	}

	configPath := strings.TrimSpace(opts.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("AGENDA_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}

	defaults := config.Default(paths.DBPath)
	defaults.Store.TokenFile = paths.TokenPath
	defaults.Serve.SeedFile = paths.SeedPath

	env := &runtimeEnv{
		appName:    opts.appName,
		paths:      paths,
		configPath: configPath,
		defaults:   defaults,
		overrides:  *opts,
	}
	cfg, err := env.loadConfig()
	if err != nil {
		return nil, err
	}
	env.cfg = cfg

	logger, err := newRuntimeLogger(stderr, opts.appName, opts.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	if command == "board" {
		// The board owns the terminal; runtime logs go to the dev file only.
		logger.SetConsoleEnabled(false)
	}
	env.logger = logger

	logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Serve.DBPath)
	logger.Info("configuration loaded", "config_path", configPath, "store_mode", cfg.Store.Mode, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}
	return env, nil
}

// loadConfig reads the config file and applies env and flag overrides.
func (e *runtimeEnv) loadConfig() (config.Config, error) {
	return loadConfigWith(e.configPath, e.defaults, e.overrides)
}

func loadConfigWith(configPath string, defaults config.Config, overrides globalOptions) (config.Config, error) {
	cfg, err := config.LoadWithEnv(configPath, defaults)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if db := strings.TrimSpace(overrides.dbPath); db != "" {
		cfg.Serve.DBPath = db
	}
	if overrides.local {
		cfg.Store.Mode = config.StoreModeLocal
	}
	return cfg, nil
}

func (e *runtimeEnv) close(stderr io.Writer) {
	if closeErr := e.logger.Close(); closeErr != nil && e.logger.shouldLogToSink(e.logger.consoleSink) {
		_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", closeErr)
	}
}

// boardStore is the task repository and client directory the board reads.
type boardStore struct {
	tasks   app.TaskRepository
	clients app.ClientDirectory
	close   func() error
}

// openBoardStore connects to the remote task API or opens the local sqlite store.
func openBoardStore(ctx context.Context, cfg config.Config, logger *runtimeLogger) (boardStore, error) {
	if strings.EqualFold(string(cfg.Store.Mode), string(config.StoreModeLocal)) {
		repo, err := openLocalRepository(ctx, cfg, logger)
		if err != nil {
			return boardStore{}, err
		}
		return boardStore{tasks: repo, clients: repo, close: repo.Close}, nil
	}

	token, err := cfg.Store.ResolveToken()
	if err != nil {
		return boardStore{}, err
	}
	session := rest.NewSession(token, func() {
		logger.Warn("task store rejected the session token", "hint", "run `agenda token` or update store.token")
	})
	client, err := rest.New(rest.Config{
		BaseURL:     cfg.Store.BaseURL,
		TasksPath:   cfg.Store.TasksPath,
		ClientsPath: cfg.Store.ClientsPath,
		Timeout:     cfg.Store.Timeout(),
		Logger:      logger,
	}, session)
	if err != nil {
		return boardStore{}, fmt.Errorf("configure task store client: %w", err)
	}
	logger.Info("remote task store configured", "base_url", cfg.Store.BaseURL, "authenticated", token != "")
	return boardStore{tasks: client, clients: client, close: func() error { return nil }}, nil
}

// openLocalRepository opens the sqlite store and applies the seed file when present.
func openLocalRepository(ctx context.Context, cfg config.Config, logger *runtimeLogger) (*sqlite.Repository, error) {
	dbPath := cfg.Serve.DBPath
	logger.Info("opening sqlite repository", "db_path", dbPath)
	repo, err := sqlite.Open(dbPath)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", dbPath, "err", err)
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}

	seedPath := strings.TrimSpace(cfg.Serve.SeedFile)
	if seedPath == "" {
		return repo, nil
	}
	seed, err := sqlite.LoadSeed(seedPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("no seed file", "path", seedPath)
		return repo, nil
	}
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("load seed %q: %w", seedPath, err)
	}
	clients, tasks, err := repo.ApplySeed(ctx, seed)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("apply seed %q: %w", seedPath, err)
	}
	logger.Info("seed applied", "path", seedPath, "clients", clients, "tasks", tasks)
	return repo, nil
}

// runBoard runs the interactive board until the operator quits.
func runBoard(ctx context.Context, env *runtimeEnv) error {
	logger := env.logger
	store, err := openBoardStore(ctx, env.cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.close(); closeErr != nil {
			logger.Warn("task store close failed", "err", closeErr)
		}
	}()

	board := app.NewBoard(store.tasks, store.clients, app.BoardConfig{Logger: logger})
	m := tui.NewModel(
		board,
		tui.WithRuntimeConfig(toTUIRuntimeConfig(env.cfg)),
		tui.WithReloadConfigCallback(func() (tui.RuntimeConfig, error) {
			logger.Info("runtime config reload requested", "config_path", env.configPath)
			cfg, err := env.loadConfig()
			if err != nil {
				logger.Error("runtime config reload failed", "config_path", env.configPath, "err", err)
				return tui.RuntimeConfig{}, err
			}
			return toTUIRuntimeConfig(cfg), nil
		}),
		tui.WithChangeFeed(),
		tui.WithLogger(logger),
	)
	p := programFactory(m)

	watchCtx, stopWatch := context.WithCancel(ctx)
	wg := conc.NewWaitGroup()
	wg.Go(func() {
		watchConfig(watchCtx, env, p)
	})

	logger.Info("starting tui program loop")
	_, err = p.Run()
	stopWatch()
	wg.Wait()
	if err != nil {
		logger.Error("tui program terminated with error", "err", err)
		return fmt.Errorf("run tui program: %w", err)
	}
	logger.Info("command flow complete", "command", "board")
	return nil
}

// watchConfig pushes config file edits into the running program.
func watchConfig(ctx context.Context, env *runtimeEnv, p program) {
	logger := env.logger
	if err := config.EnsureConfigDir(env.configPath); err != nil {
		logger.Warn("config watch disabled", "config_path", env.configPath, "err", err)
		return
	}
	err := config.Watch(ctx, env.configPath, env.defaults,
		func(cfg config.Config) {
			if db := strings.TrimSpace(env.overrides.dbPath); db != "" {
				cfg.Serve.DBPath = db
			}
			logger.Info("config file changed", "config_path", env.configPath)
			p.Send(tui.ConfigMsg(toTUIRuntimeConfig(cfg)))
		},
		func(err error) {
			logger.Warn("config file reload failed", "config_path", env.configPath, "err", err)
		},
	)
	if err != nil {
		logger.Warn("config watch stopped", "config_path", env.configPath, "err", err)
	}
}

// toTUIRuntimeConfig maps persisted config values into runtime model options.
func toTUIRuntimeConfig(cfg config.Config) tui.RuntimeConfig {
	return tui.RuntimeConfig{
		Drag: gesture.Config{
			PointerDistance: cfg.Drag.PointerDistance,
			TouchDelay:      cfg.Drag.TouchDelay(),
			TouchTolerance:  cfg.Drag.TouchTolerance,
		},
		DateFormat: cfg.Board.DateFormat,
		Cards: tui.CardFieldConfig{
			ShowDescription: cfg.Board.ShowDescription,
			ShowAddress:     cfg.Board.ShowAddress,
		},
		RefreshInterval: cfg.Board.RefreshInterval(),
	}
}

func newServeCommand(opts *globalOptions, stderr io.Writer) *cobra.Command {
	var (
		bind     string
		seedPath string
		readOnly bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local task store over HTTP and MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setupRuntime(opts, stderr, "serve")
			if err != nil {
				return err
			}
			defer env.close(stderr)

			cfg := env.cfg
			if bind != "" {
				cfg.Serve.Bind = bind
			}
			if seedPath != "" {
				cfg.Serve.SeedFile = seedPath
			}
			if readOnly {
				cfg.Serve.MCPReadOnly = true
			}
			return runServe(cmd.Context(), env, cfg)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "listen address (default from serve.bind)")
	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML seed file applied to an empty store")
	cmd.Flags().BoolVar(&readOnly, "mcp-read-only", false, "expose only read tools over MCP")
	return cmd
}

func runServe(ctx context.Context, env *runtimeEnv, cfg config.Config) error {
	logger := env.logger
	repo, err := openLocalRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Warn("sqlite close failed", "db_path", cfg.Serve.DBPath, "err", closeErr)
		}
	}()

	logger.Info("command flow start", "command", "serve")
	err = serveCommandRunner(ctx, server.Config{
		HTTPBind:       cfg.Serve.Bind,
		APIEndpoint:    cfg.Serve.APIEndpoint,
		MCPEndpoint:    cfg.Serve.MCPEndpoint,
		ServerName:     env.appName,
		ServerVersion:  version,
		JWTSecret:      cfg.Serve.JWTSecret,
		AllowedOrigins: cfg.Serve.AllowedOrigins,
		MCPReadOnly:    cfg.Serve.MCPReadOnly,
	}, server.Dependencies{
		Service: common.NewStoreAdapter(repo),
		Logger:  logger,
		Ready: func(ctx context.Context) error {
			_, err := repo.ListClients(ctx)
			return err
		},
	})
	if err != nil {
		logger.Error("command flow failed", "command", "serve", "err", err)
		return fmt.Errorf("run serve command: %w", err)
	}
	logger.Info("command flow complete", "command", "serve")
	return nil
}

func newTokenCommand(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
		save    bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with serve.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			env, err := setupRuntime(opts, stderr, "token")
			if err != nil {
				return err
			}
			defer env.close(stderr)

			signed, err := mintToken(env.cfg.Serve.JWTSecret, env.appName, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			if save {
				path := env.cfg.Store.TokenFile
				if err := config.EnsureConfigDir(path); err != nil {
					return fmt.Errorf("create token dir: %w", err)
				}
				if err := os.WriteFile(path, []byte(signed+"\n"), 0o600); err != nil {
					return fmt.Errorf("write token file: %w", err)
				}
				env.logger.Info("token saved", "path", path, "subject", subject)
			}
			_, err = fmt.Fprintln(stdout, signed)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&save, "save", false, "also write the token to store.token_file")
	return cmd
}

// mintToken signs an HS256 token accepted by the serve command.
func mintToken(secret, issuer, subject string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("serve.jwt_secret is not configured")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be > 0, got %s", ttl)
	}
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func newTasksCommand(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "Print the board grouped by workflow state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setupRuntime(opts, stderr, "tasks")
			if err != nil {
				return err
			}
			defer env.close(stderr)

			store, err := openBoardStore(cmd.Context(), env.cfg, env.logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.close() }()

			board := app.NewBoard(store.tasks, store.clients, app.BoardConfig{Logger: env.logger})
			if err := board.Refresh(cmd.Context()); err != nil {
				return err
			}
			return printBoard(stdout, board, env.cfg.Board.DateFormat)
		},
	}
}

// printBoard writes each column with its cards in display order.
func printBoard(w io.Writer, board *app.Board, dateFormat string) error {
	var b strings.Builder
	for i, state := range domain.WorkflowStates {
		if i > 0 {
			b.WriteString("\n")
		}
		tasks := board.TasksInState(state)
		fmt.Fprintf(&b, "%s (%d)\n", state.Label(), len(tasks))
		for _, task := range tasks {
			name, address := board.ClientInfo(task.ClientID)
			date := "-"
			if !task.ScheduledDate.IsZero() {
				date = task.ScheduledDate.Format(dateFormat)
			}
			fmt.Fprintf(&b, "  [%s] %s · %s · %s, %s\n", task.Priority, task.Title, date, name, address)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func newPathsCommand(opts *globalOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			paths, err := platform.DefaultPathsWithOptions(platform.Options{
				AppName: opts.appName,
				DevMode: opts.devMode,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(stdout, "token: %s\n", paths.TokenPath)
			_, _ = fmt.Fprintf(stdout, "seed: %s\n", paths.SeedPath)
			return nil
		},
	}
}

// parseBoolEnv parses input into a normalized form.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
