package session

import "github.com/mmarins/livewire/internal/config"

const DefaultSessionName = "main"

// Resolve picks the active session name. The --session flag wins over
// the config file's default_session; with neither, "main" is used.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
