package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codefionn/chatd/internal/consts"
	"github.com/codefionn/chatd/internal/secrets"
	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageJSON   = "json"
	StorageSQLite = "sqlite"
)

// StorageConfig selects where the durable tables live.
type StorageConfig struct {
	Backend    string `json:"backend"`               // "json" or "sqlite"
	SQLitePath string `json:"sqlite_path,omitempty"` // defaults to <data_dir>/chatd.db
}

// AIConfig holds the Gemini pass-through settings.
type AIConfig struct {
	Model             string   `json:"model"`
	APIKeys           []string `json:"api_keys"` // plain or "enc:" values
	HistoryWindow     int      `json:"history_window"`
	RequestsPerMinute int      `json:"requests_per_minute"` // 0 disables throttling
	TimeoutSeconds    int      `json:"timeout_seconds"`
}

// Config represents server configuration
type Config struct {
	ListenAddr           string        `json:"listen_addr"`
	DataDir              string        `json:"data_dir"`
	FilesDir             string        `json:"files_dir,omitempty"` // defaults to <data_dir>/files
	Storage              StorageConfig `json:"storage"`
	LogLevel             string        `json:"log_level"`     // debug, info, warn, error, none
	ConsoleLevel         string        `json:"console_level"` // level mirrored to stderr
	LogPath              string        `json:"log_path"`
	MaxConnections       int           `json:"max_connections"` // 0 means unlimited
	MaxUploadBytes       int64         `json:"max_upload_bytes"`
	UploadTimeoutSeconds int           `json:"upload_timeout_seconds"`
	ChatViewDefault      int           `json:"chat_view_default"`
	MetricsAddr          string        `json:"metrics_addr,omitempty"`
	AI                   AIConfig      `json:"ai"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:           "0.0.0.0:7002",
		DataDir:              "data",
		Storage:              StorageConfig{Backend: StorageJSON},
		LogLevel:             "debug",
		ConsoleLevel:         "info",
		LogPath:              filepath.Join("logs", "server.log"),
		MaxUploadBytes:       consts.MaxUploadBytes,
		UploadTimeoutSeconds: int(consts.Timeout2Minutes / time.Second),
		ChatViewDefault:      consts.DefaultChatView,
		AI: AIConfig{
			Model:          "gemini-2.0-flash",
			HistoryWindow:  consts.AIHistoryWindow,
			TimeoutSeconds: int(consts.Timeout60Seconds / time.Second),
		},
	}
}

// Load reads the JSON config at path over the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	config.fillDefaults()
	return config, nil
}

// fillDefaults restores defaults for fields the file blanked out.
func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.ConsoleLevel == "" {
		c.ConsoleLevel = def.ConsoleLevel
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = def.MaxUploadBytes
	}
	if c.UploadTimeoutSeconds <= 0 {
		c.UploadTimeoutSeconds = def.UploadTimeoutSeconds
	}
	if c.ChatViewDefault <= 0 {
		c.ChatViewDefault = def.ChatViewDefault
	}
	if c.AI.Model == "" {
		c.AI.Model = def.AI.Model
	}
	if c.AI.HistoryWindow <= 0 {
		c.AI.HistoryWindow = def.AI.HistoryWindow
	}
	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = def.AI.TimeoutSeconds
	}
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overlays environment variables on the config.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	set("CHATD_LISTEN", &c.ListenAddr)
	set("CHATD_DATA_DIR", &c.DataDir)
	set("CHATD_STORAGE", &c.Storage.Backend)
	set("CHATD_LOG_LEVEL", &c.LogLevel)
	set("CHATD_LOG_PATH", &c.LogPath)
	set("CHATD_METRICS_ADDR", &c.MetricsAddr)
	set("GEMINI_MODEL", &c.AI.Model)

	if keys := strings.TrimSpace(getenv("GEMINI_API_KEYS")); keys != "" {
		c.AI.APIKeys = splitKeys(keys)
	}
}

func splitKeys(raw string) []string {
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageJSON, StorageSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q (want %q or %q)", c.Storage.Backend, StorageJSON, StorageSQLite)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative")
	}
	if c.MaxUploadBytes > 1<<40 {
		return fmt.Errorf("max_upload_bytes %d is unreasonably large", c.MaxUploadBytes)
	}
	return nil
}

// ResolvedFilesDir returns the shared files directory.
func (c *Config) ResolvedFilesDir() string {
	if c.FilesDir != "" {
		return c.FilesDir
	}
	return filepath.Join(c.DataDir, "files")
}

// ResolvedSQLitePath returns the sqlite database path.
func (c *Config) ResolvedSQLitePath() string {
	if c.Storage.SQLitePath != "" {
		return c.Storage.SQLitePath
	}
	return filepath.Join(c.DataDir, "chatd.db")
}

// UploadTimeout is the deadline for reading one upload payload.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.UploadTimeoutSeconds) * time.Second
}

// AITimeout bounds one backend call.
func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AI.TimeoutSeconds) * time.Second
}

// HasEncryptedKeys reports whether any API key needs a secrets password.
func (c *Config) HasEncryptedKeys() bool {
	for _, k := range c.AI.APIKeys {
		if secrets.IsEncrypted(k) {
			return true
		}
	}
	return false
}

// DecryptAPIKeys returns the API keys in plaintext, decrypting "enc:" values
// with password.
func (c *Config) DecryptAPIKeys(password string) ([]string, error) {
	keys := make([]string, 0, len(c.AI.APIKeys))
	for i, k := range c.AI.APIKeys {
		plain, err := secrets.DecryptString(k, password)
		if err != nil {
			return nil, fmt.Errorf("api key %d: %w", i, err)
		}
		if plain = strings.TrimSpace(plain); plain != "" {
			keys = append(keys, plain)
		}
	}
	return keys, nil
}
