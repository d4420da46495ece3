// Package config reads and writes the global ~/.livewire/config.toml.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Endpoints are the backend addresses a session connects to.
type Endpoints struct {
	ChatPush string `toml:"chat_push"`
	FeedPush string `toml:"feed_push"`
	APIBase  string `toml:"api_base"`
}

// Tuning holds the pagination and mutation timing knobs.
type Tuning struct {
	PageLimit         int `toml:"page_limit"`
	MessagePageLimit  int `toml:"message_page_limit"`
	MutationTimeoutMS int `toml:"mutation_timeout_ms"`
	ToggleDebounceMS  int `toml:"toggle_debounce_ms"`
}

// MutationTimeout is the deadline for a pending mutation to confirm.
func (t Tuning) MutationTimeout() time.Duration {
	return time.Duration(t.MutationTimeoutMS) * time.Millisecond
}

// ToggleDebounce is the coalescing window for rapid toggle taps.
func (t Tuning) ToggleDebounce() time.Duration {
	return time.Duration(t.ToggleDebounceMS) * time.Millisecond
}

// Config represents the global config file.
type Config struct {
	DefaultSession string    `toml:"default_session"`
	Endpoints      Endpoints `toml:"endpoints"`
	Tuning         Tuning    `toml:"tuning"`
}

// Default returns the config used when no file exists.
func Default() *Config {
	return &Config{
		Endpoints: Endpoints{
			ChatPush: "ws://localhost:3000/chat",
			FeedPush: "ws://localhost:3000/feed",
			APIBase:  "http://localhost:3000",
		},
		Tuning: Tuning{
			PageLimit:         25,
			MessagePageLimit:  30,
			MutationTimeoutMS: 10000,
			ToggleDebounceMS:  500,
		},
	}
}

// Load reads config from the given path, filling unset tuning and
// endpoint values with defaults. Returns an error if the file is
// missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Endpoints.ChatPush == "" {
		cfg.Endpoints.ChatPush = def.Endpoints.ChatPush
	}
	if cfg.Endpoints.FeedPush == "" {
		cfg.Endpoints.FeedPush = def.Endpoints.FeedPush
	}
	if cfg.Endpoints.APIBase == "" {
		cfg.Endpoints.APIBase = def.Endpoints.APIBase
	}
	if cfg.Tuning.PageLimit <= 0 {
		cfg.Tuning.PageLimit = def.Tuning.PageLimit
	}
	if cfg.Tuning.MessagePageLimit <= 0 {
		cfg.Tuning.MessagePageLimit = def.Tuning.MessagePageLimit
	}
	if cfg.Tuning.MutationTimeoutMS <= 0 {
		cfg.Tuning.MutationTimeoutMS = def.Tuning.MutationTimeoutMS
	}
	if cfg.Tuning.ToggleDebounceMS <= 0 {
		cfg.Tuning.ToggleDebounceMS = def.Tuning.ToggleDebounceMS
	}
}
