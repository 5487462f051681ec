package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	toml "github.com/pelletier/go-toml/v2"
)

// EnvPrefix is the prefix of environment overrides, e.g. AGENDA_STORE_BASE_URL.
const EnvPrefix = "AGENDA"

// StoreMode selects where the board reads and writes tasks.
type StoreMode string

const (
	StoreModeRemote StoreMode = "remote"
	StoreModeLocal  StoreMode = "local"
)

type Config struct {
	Store   StoreConfig   `toml:"store" envconfig:"STORE"`
	Drag    DragConfig    `toml:"drag" envconfig:"DRAG"`
	Board   BoardConfig   `toml:"board" envconfig:"BOARD"`
	Logging LoggingConfig `toml:"logging" envconfig:"LOGGING"`
	Serve   ServeConfig   `toml:"serve" envconfig:"SERVE"`
}

type StoreConfig struct {
	Mode           StoreMode `toml:"mode" envconfig:"MODE"`
	BaseURL        string    `toml:"base_url" envconfig:"BASE_URL"`
	TasksPath      string    `toml:"tasks_path" envconfig:"TASKS_PATH"`
	ClientsPath    string    `toml:"clients_path" envconfig:"CLIENTS_PATH"`
	Token          string    `toml:"token" envconfig:"TOKEN"`
	TokenFile      string    `toml:"token_file" envconfig:"TOKEN_FILE"`
	TimeoutSeconds int       `toml:"timeout_seconds" envconfig:"TIMEOUT_SECONDS"`
}

type DragConfig struct {
	PointerDistance float64 `toml:"pointer_distance" envconfig:"POINTER_DISTANCE"`
	TouchDelayMS    int     `toml:"touch_delay_ms" envconfig:"TOUCH_DELAY_MS"`
	TouchTolerance  float64 `toml:"touch_tolerance" envconfig:"TOUCH_TOLERANCE"`
}

type BoardConfig struct {
	DateFormat      string `toml:"date_format" envconfig:"DATE_FORMAT"`
	ShowDescription bool   `toml:"show_description" envconfig:"SHOW_DESCRIPTION"`
	ShowAddress     bool   `toml:"show_address" envconfig:"SHOW_ADDRESS"`
	// RefreshSeconds reloads the board periodically; 0 disables polling.
	RefreshSeconds int `toml:"refresh_seconds" envconfig:"REFRESH_SECONDS"`
}

type LoggingConfig struct {
	Level   string        `toml:"level" envconfig:"LEVEL"`
	DevFile DevFileConfig `toml:"dev_file" envconfig:"DEV_FILE"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled" envconfig:"ENABLED"`
	Dir     string `toml:"dir" envconfig:"DIR"`
}

type ServeConfig struct {
	Bind           string   `toml:"bind" envconfig:"BIND"`
	APIEndpoint    string   `toml:"api_endpoint" envconfig:"API_ENDPOINT"`
	MCPEndpoint    string   `toml:"mcp_endpoint" envconfig:"MCP_ENDPOINT"`
	MCPReadOnly    bool     `toml:"mcp_read_only" envconfig:"MCP_READ_ONLY"`
	DBPath         string   `toml:"db_path" envconfig:"DB_PATH"`
	JWTSecret      string   `toml:"jwt_secret" envconfig:"JWT_SECRET"`
	SeedFile       string   `toml:"seed_file" envconfig:"SEED_FILE"`
	AllowedOrigins []string `toml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

func Default(dbPath string) Config {
	return Config{
		Store: StoreConfig{
			Mode:           StoreModeRemote,
			BaseURL:        "http://localhost:8080/api",
			TasksPath:      "/tasks",
			ClientsPath:    "/clients",
			TimeoutSeconds: 10,
		},
		Drag: DragConfig{
			PointerDistance: 5,
			TouchDelayMS:    100,
			TouchTolerance:  8,
		},
		Board: BoardConfig{
			DateFormat:      "02/01/2006",
			ShowDescription: true,
			ShowAddress:     true,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".agenda/log",
			},
		},
		Serve: ServeConfig{
			Bind:        "127.0.0.1:8080",
			APIEndpoint: "/api",
			MCPEndpoint: "/mcp",
			DBPath:      dbPath,
		},
	}
}

// Load reads path over defaults. A missing or empty file yields the defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ApplyEnv overlays AGENDA_* environment variables on cfg. Unset variables
// leave the loaded value untouched.
func ApplyEnv(cfg Config) (Config, error) {
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("apply environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadWithEnv is Load followed by ApplyEnv.
func LoadWithEnv(path string, defaults Config) (Config, error) {
	cfg, err := Load(path, defaults)
	if err != nil {
		return Config{}, err
	}
	return ApplyEnv(cfg)
}

func (c Config) Validate() error {
	switch StoreMode(strings.ToLower(string(c.Store.Mode))) {
	case StoreModeRemote:
		if err := validateBaseURL(c.Store.BaseURL); err != nil {
			return err
		}
	case StoreModeLocal:
	default:
		return fmt.Errorf("invalid store.mode: %q", c.Store.Mode)
	}
	if c.Store.TimeoutSeconds < 0 {
		return errors.New("store.timeout_seconds must be >= 0")
	}

	if c.Drag.PointerDistance <= 0 {
		return errors.New("drag.pointer_distance must be > 0")
	}
	if c.Drag.TouchDelayMS < 0 {
		return errors.New("drag.touch_delay_ms must be >= 0")
	}
	if c.Drag.TouchTolerance <= 0 {
		return errors.New("drag.touch_tolerance must be > 0")
	}

	if strings.TrimSpace(c.Board.DateFormat) == "" {
		return errors.New("board.date_format is required")
	}
	if c.Board.RefreshSeconds < 0 {
		return errors.New("board.refresh_seconds must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	if strings.TrimSpace(c.Serve.DBPath) == "" {
		return errors.New("serve.db_path is required")
	}
	return nil
}

func validateBaseURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("store.base_url is required in remote mode")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid store.base_url: %q", raw)
	}
	return nil
}

// Timeout returns the per-request store timeout.
func (s StoreConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ResolveToken returns the configured bearer token, reading token_file when
// token is empty.
func (s StoreConfig) ResolveToken() (string, error) {
	if tok := strings.TrimSpace(s.Token); tok != "" {
		return tok, nil
	}
	path := strings.TrimSpace(s.TokenFile)
	if path == "" {
		return "", nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(content)), nil
}

// TouchDelay returns the touch activation hold time.
func (d DragConfig) TouchDelay() time.Duration {
	return time.Duration(d.TouchDelayMS) * time.Millisecond
}

// RefreshInterval returns the board polling interval, or 0 when disabled.
func (b BoardConfig) RefreshInterval() time.Duration {
	return time.Duration(b.RefreshSeconds) * time.Second
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
