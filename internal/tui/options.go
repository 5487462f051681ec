package tui

import (
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/hylla/agenda/internal/app"
	"github.com/hylla/agenda/internal/gesture"
)

// CardFieldConfig selects the optional lines shown on each card.
type CardFieldConfig struct {
	ShowDescription bool
	ShowAddress     bool
}

// RuntimeConfig holds the settings that can change while the board is open.
type RuntimeConfig struct {
	Drag            gesture.Config
	DateFormat      string
	Cards           CardFieldConfig
	RefreshInterval time.Duration
}

// Option configures a Model.
type Option func(*Model)

func DefaultCardFieldConfig() CardFieldConfig {
	return CardFieldConfig{ShowDescription: true, ShowAddress: true}
}

// WithRuntimeConfig applies board settings. Zero values keep the current ones.
func WithRuntimeConfig(cfg RuntimeConfig) Option {
	return func(m *Model) {
		if m.drag != nil {
			m.drag.SetConfig(cfg.Drag)
		}
		if format := strings.TrimSpace(cfg.DateFormat); format != "" {
			m.dateFormat = format
		}
		m.cards = cfg.Cards
		m.refreshInterval = cfg.RefreshInterval
	}
}

// WithReloadConfigCallback lets the reload key re-read settings from disk.
func WithReloadConfigCallback(fn func() (RuntimeConfig, error)) Option {
	return func(m *Model) {
		m.reloadConfig = fn
	}
}

// WithChangeFeed makes the model redraw whenever the board signals a change
// made outside the event loop.
func WithChangeFeed() Option {
	return func(m *Model) {
		m.followChanges = true
	}
}

// WithClipboard replaces the system clipboard writer used by the copy key.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copyText = write
		}
	}
}

// WithLogger routes model diagnostics to logger.
func WithLogger(logger app.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.log = logger
		}
	}
}

func systemClipboard(text string) error {
	return clipboard.WriteAll(text)
}
