package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/nudge/nudge.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "nudge", "nudge.yaml"))
	}

	paths = append(paths, "nudge.yaml")

	if envPath := os.Getenv("NUDGE_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/nudge/nudge.yaml < ~/.config/nudge/nudge.yaml < ./nudge.yaml < $NUDGE_CONFIG
func Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ActivePath returns the highest-priority config file that exists on disk,
// or "" when nudge runs on defaults only.
func ActivePath() string {
	paths := searchPaths()
	for i := len(paths) - 1; i >= 0; i-- {
		if _, err := os.Stat(paths[i]); err == nil {
			return paths[i]
		}
	}
	return ""
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have higher priority than YAML config values.
func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("NUDGE_SOURCE_TOKEN"); token != "" {
		cfg.Source.Token = token
	}
	if token := os.Getenv("NUDGE_TELEGRAM_TOKEN"); token != "" {
		cfg.Notifications.Telegram.Token = token
	}
	if token := os.Getenv("NUDGE_NTFY_TOKEN"); token != "" {
		cfg.Notifications.Ntfy.Token = token
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config search paths
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	slog.Debug("loading config file", "path", path)

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(cfg *Config) error {
	if cfg.Server.Enabled && (cfg.Server.Port < 1 || cfg.Server.Port > 65535) {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	switch cfg.Source.Type {
	case SourceHTTP:
		if cfg.Source.URL == "" {
			return fmt.Errorf("source.url is required for the http source")
		}
	case SourceGoogleTasks:
		if cfg.Source.Google.TaskList == "" {
			return fmt.Errorf("source.google.task_list is required for the google_tasks source")
		}
	default:
		return fmt.Errorf("source.type must be %q or %q, got %q", SourceHTTP, SourceGoogleTasks, cfg.Source.Type)
	}
	if cfg.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be positive")
	}

	if cfg.Schedule.Cron == "" && cfg.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be positive when schedule.cron is not set")
	}
	if _, err := cfg.Schedule.Location(); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	if cfg.Schedule.Window < 0 {
		return fmt.Errorf("schedule.window must not be negative, got %s", cfg.Schedule.Window)
	}

	n := cfg.Notifications
	if n.Timeout <= 0 {
		return fmt.Errorf("notifications.timeout must be positive")
	}
	if n.Ntfy.Enabled && n.Ntfy.Topic == "" {
		return fmt.Errorf("notifications.ntfy.topic is required when ntfy is enabled")
	}
	for i, wh := range n.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("notifications.webhooks[%d].url is required", i)
		}
	}
	if n.Telegram.Enabled && (n.Telegram.Token == "" || n.Telegram.ChatID == 0) {
		return fmt.Errorf("notifications.telegram requires token and chat_id when enabled")
	}

	cfg.Database.Path = ExpandHome(cfg.Database.Path)
	cfg.Source.Google.CredentialsFile = ExpandHome(cfg.Source.Google.CredentialsFile)
	cfg.Source.Google.TokenFile = ExpandHome(cfg.Source.Google.TokenFile)
	return nil
}
