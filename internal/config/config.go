// Package config loads the exporter's static configuration once at process
// start. All settings come from environment variables (a .env file, if
// present, is loaded by the entrypoint before this runs).
package config

import (
	"os"
	"strconv"

	"github.com/seclogix/auditpipe/internal/classify"
)

// Config holds all exporter configuration. It is built once and passed by
// reference; nothing mutates it afterwards.
type Config struct {
	Keycloak KeycloakConfig
	App      AppConfig
	Syslog   SyslogConfig
	Store    StoreConfig
	Log      LogConfig
	Tables   Tables

	// ShortLogs elides application event payloads from forwarded messages,
	// bounding log volume for bulk operations.
	ShortLogs bool

	// WindowHours is the trailing retrieval window for every source.
	WindowHours int
}

// KeycloakConfig holds identity-provider connection settings.
type KeycloakConfig struct {
	URL      string
	Realm    string
	ClientID string
	Username string
	Password string
}

// AppConfig holds application history API settings.
type AppConfig struct {
	URL   string
	Token string
}

// SyslogConfig holds collector connection settings. Hostname is the
// HOSTNAME field stamped on every forwarded message.
type SyslogConfig struct {
	Host     string
	Port     int
	Hostname string
}

// StoreConfig holds dedup store settings.
type StoreConfig struct {
	Driver        string // "sqlite" or "postgres"
	Path          string // sqlite database file
	DSN           string // postgres connection string
	RetentionDays int
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string // "json" or "console"
}

// Tables holds the three per-source classification tables.
type Tables struct {
	IdentityUser  classify.Table
	IdentityAdmin classify.Table
	Application   classify.Table
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	return Config{
		Keycloak: KeycloakConfig{
			URL:      os.Getenv("AUDITPIPE_KEYCLOAK_URL"),
			Realm:    getenv("AUDITPIPE_KEYCLOAK_REALM", "master"),
			ClientID: getenv("AUDITPIPE_KEYCLOAK_CLIENT_ID", "admin-cli"),
			Username: os.Getenv("AUDITPIPE_KEYCLOAK_USERNAME"),
			Password: os.Getenv("AUDITPIPE_KEYCLOAK_PASSWORD"),
		},
		App: AppConfig{
			URL:   os.Getenv("AUDITPIPE_APP_API_URL"),
			Token: os.Getenv("AUDITPIPE_APP_API_TOKEN"),
		},
		Syslog: SyslogConfig{
			Host:     getenv("AUDITPIPE_SYSLOG_HOST", "localhost"),
			Port:     getenvInt("AUDITPIPE_SYSLOG_PORT", 514),
			Hostname: getenv("AUDITPIPE_HOSTNAME", "audit-client"),
		},
		Store: StoreConfig{
			Driver:        getenv("AUDITPIPE_STORE_DRIVER", "sqlite"),
			Path:          getenv("AUDITPIPE_STORE_PATH", "storage/events.db"),
			DSN:           os.Getenv("AUDITPIPE_STORE_DSN"),
			RetentionDays: getenvInt("AUDITPIPE_RETENTION_DAYS", 30),
		},
		Log: LogConfig{
			Level:  getenv("AUDITPIPE_LOG_LEVEL", "info"),
			Format: getenv("AUDITPIPE_LOG_FORMAT", "json"),
		},
		Tables: Tables{
			IdentityUser:  classify.IdentityUserDefaults(),
			IdentityAdmin: classify.IdentityAdminDefaults(),
			Application:   classify.ApplicationDefaults(),
		},
		ShortLogs:   getenvBool("AUDITPIPE_SHORT_LOGS", true),
		WindowHours: getenvInt("AUDITPIPE_WINDOW_HOURS", 1),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
