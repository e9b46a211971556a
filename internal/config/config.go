package config

import "time"

// Config is the root configuration for nudge.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Source        SourceConfig        `yaml:"source"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Database      DatabaseConfig      `yaml:"database"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
}

type ServerConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	LogLevel  string          `yaml:"log_level"`
	LogFile   string          `yaml:"log_file"`
	APITokens []APITokenEntry `yaml:"api_tokens"`
}

type APITokenEntry struct {
	Name      string `yaml:"name"`
	TokenHash string `yaml:"token_hash"`
}

// Source types.
const (
	SourceHTTP        = "http"
	SourceGoogleTasks = "google_tasks"
)

type SourceConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Token   string            `yaml:"token"`
	Headers map[string]string `yaml:"headers"`
	OAuth2  OAuth2Config      `yaml:"oauth2"`
	Fields  FieldsConfig      `yaml:"fields"`
	Google  GoogleTasksConfig `yaml:"google"`
}

// OAuth2Config enables the client-credentials flow against the task source.
type OAuth2Config struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// FieldsConfig holds gjson paths locating task fields in the source payload.
type FieldsConfig struct {
	List     string `yaml:"list"`
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Deadline string `yaml:"deadline"`
}

type GoogleTasksConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	TaskList        string `yaml:"task_list"`
}

type ScheduleConfig struct {
	Interval   time.Duration `yaml:"interval"`
	Cron       string        `yaml:"cron"`
	Timezone   string        `yaml:"timezone"`
	Window     time.Duration `yaml:"window"`
	RunOnStart bool          `yaml:"run_on_start"`
}

// Location returns the configured timezone, or time.Local when unset.
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

type NotificationsConfig struct {
	Timeout    time.Duration   `yaml:"timeout"`
	RatePerSec float64         `yaml:"rate_per_sec"`
	Burst      int             `yaml:"burst"`
	Log        bool            `yaml:"log"`
	MCP        bool            `yaml:"mcp"`
	Ntfy       NtfyConfig      `yaml:"ntfy"`
	Webhooks   []WebhookConfig `yaml:"webhooks"`
	Telegram   TelegramConfig  `yaml:"telegram"`
}

type NtfyConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Server   string   `yaml:"server"`
	Topic    string   `yaml:"topic"`
	Token    string   `yaml:"token"`
	Priority string   `yaml:"priority"`
	Tags     []string `yaml:"tags"`
}

type WebhookConfig struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Token    string `yaml:"token"`
	ChatID   int64  `yaml:"chat_id"`
	ThreadID int    `yaml:"thread_id"`
	APIURL   string `yaml:"api_url"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled:  true,
			Host:     "127.0.0.1",
			Port:     8421,
			LogLevel: "info",
		},
		Source: SourceConfig{
			Type:    SourceHTTP,
			URL:     "http://localhost:3000/todos",
			Timeout: 15 * time.Second,
			Fields: FieldsConfig{
				ID:       "_id",
				Title:    "title",
				Deadline: "deadline",
			},
			Google: GoogleTasksConfig{
				CredentialsFile: "~/.config/nudge/credentials.json",
				TokenFile:       "~/.config/nudge/token.json",
				TaskList:        "@default",
			},
		},
		Schedule: ScheduleConfig{
			Interval:   time.Minute,
			Window:     24 * time.Hour,
			RunOnStart: true,
		},
		Notifications: NotificationsConfig{
			Timeout:    10 * time.Second,
			RatePerSec: 3,
			Burst:      3,
			Log:        true,
			MCP:        true,
			Ntfy: NtfyConfig{
				Server:   "https://ntfy.sh",
				Priority: "high",
				Tags:     []string{"alarm_clock"},
			},
		},
		Database: DatabaseConfig{
			Path:          "~/.config/nudge/nudge.db",
			RetentionDays: 30,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			Burst:             30,
		},
	}
}
