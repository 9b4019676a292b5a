// Package config loads the bankql YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Theme     string          `yaml:"theme"`
	Database  DatabaseConfig  `yaml:"database"`
	Validator ValidatorConfig `yaml:"validator"`
	Corrector CorrectorConfig `yaml:"corrector"`
	Generator GeneratorConfig `yaml:"generator"`
	Audit     AuditConfig     `yaml:"audit"`
	History   HistoryConfig   `yaml:"history"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig selects the database queries run against. DSN wins over the
// individual fields.
type DatabaseConfig struct {
	Adapter         string `yaml:"adapter"`
	DSN             string `yaml:"dsn,omitempty"`
	Host            string `yaml:"host,omitempty"`
	Port            int    `yaml:"port,omitempty"`
	User            string `yaml:"user,omitempty"`
	Password        string `yaml:"password,omitempty"`
	Database        string `yaml:"database,omitempty"`
	File            string `yaml:"file,omitempty"`
	ConnectAttempts uint   `yaml:"connect_attempts"`
}

// ValidatorConfig holds the validation strictness.
type ValidatorConfig struct {
	Level string `yaml:"level"` // strict, moderate or lenient
}

// CorrectorConfig holds correction settings.
type CorrectorConfig struct {
	RowLimit int `yaml:"row_limit"`
}

// GeneratorConfig selects the text-generation service. The API key is read
// from the environment variable named by APIKeyEnv.
type GeneratorConfig struct {
	Provider    string        `yaml:"provider"` // openai, anthropic or none
	Model       string        `yaml:"model,omitempty"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	APIKeyEnv   string        `yaml:"api_key_env,omitempty"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// AuditConfig controls the JSON Lines turn audit file.
type AuditConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path,omitempty"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// HistoryConfig controls the local turn history database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Theme: "default",
		Database: DatabaseConfig{
			Adapter:         "sqlite",
			File:            "banking.db",
			ConnectAttempts: 5,
		},
		Validator: ValidatorConfig{Level: "strict"},
		Corrector: CorrectorConfig{RowLimit: 1000},
		Generator: GeneratorConfig{
			Provider:    "none",
			Temperature: 0.1,
			MaxTokens:   512,
			Timeout:     30 * time.Second,
		},
		Audit:   AuditConfig{MaxSizeMB: 10},
		History: HistoryConfig{Enabled: true},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			CORSOrigins:  []string{"http://localhost:*", "http://127.0.0.1:*"},
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// ConfigDir returns the bankql configuration directory path, typically
// ~/.config/bankql/.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config dir: %w", err)
	}
	return filepath.Join(base, "bankql"), nil
}

// DefaultPath returns ConfigDir()/config.yaml.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads a Config from the YAML file at path over the defaults. If the
// file does not exist, it returns DefaultConfig without error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from DefaultPath.
func LoadDefault() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Save writes the Config to the YAML file at path, creating any necessary
// parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Kept in sync with validate.Levels and generate.Providers; config stays a
// leaf package.
var (
	validLevels    = []string{"strict", "moderate", "lenient"}
	validProviders = []string{"openai", "anthropic", "none"}
	validFormats   = []string{"text", "json"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

func oneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("%s: unknown value %q (want one of %s)", field, value, strings.Join(allowed, ", "))
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	errs := []error{
		oneOf("validator.level", c.Validator.Level, validLevels),
		oneOf("generator.provider", c.Generator.Provider, validProviders),
		oneOf("log.format", c.Log.Format, validFormats),
		oneOf("log.level", c.Log.Level, validLogLevels),
	}
	if c.Corrector.RowLimit <= 0 {
		errs = append(errs, fmt.Errorf("corrector.row_limit: must be positive, got %d", c.Corrector.RowLimit))
	}
	if c.Generator.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("generator.max_tokens: must be positive, got %d", c.Generator.MaxTokens))
	}
	if c.Database.ConnectAttempts == 0 {
		errs = append(errs, errors.New("database.connect_attempts: must be at least 1"))
	}
	return errors.Join(errs...)
}

// APIKey returns the generator API key from the environment.
func (g GeneratorConfig) APIKey() string {
	env := g.APIKeyEnv
	if env == "" {
		switch strings.ToLower(g.Provider) {
		case "openai":
			env = "OPENAI_API_KEY"
		case "anthropic":
			env = "ANTHROPIC_API_KEY"
		default:
			return ""
		}
	}
	return os.Getenv(env)
}

// AuditPath returns the audit file path, defaulting to
// ConfigDir()/audit.jsonl.
func (c *Config) AuditPath() (string, error) {
	return pathOr(c.Audit.Path, "audit.jsonl")
}

// HistoryPath returns the history database path, defaulting to
// ConfigDir()/history.db.
func (c *Config) HistoryPath() (string, error) {
	return pathOr(c.History.Path, "history.db")
}

func pathOr(path, name string) (string, error) {
	if path != "" {
		return path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// BuildDSN constructs a connection string from the individual fields. If DSN
// is already set, it is returned as-is. For file-based adapters (sqlite,
// duckdb) it returns the File field. For network adapters it builds
// "user:password@host:port/database".
func (dc *DatabaseConfig) BuildDSN() string {
	if dc.DSN != "" {
		return dc.DSN
	}

	adapter := strings.ToLower(dc.Adapter)
	if adapter == "sqlite" || adapter == "duckdb" {
		return dc.File
	}

	var b strings.Builder
	if dc.User != "" {
		b.WriteString(dc.User)
		if dc.Password != "" {
			b.WriteByte(':')
			b.WriteString(dc.Password)
		}
		b.WriteByte('@')
	}

	host := dc.Host
	if host == "" {
		host = "localhost"
	}
	b.WriteString(host)
	if dc.Port > 0 {
		fmt.Fprintf(&b, ":%d", dc.Port)
	}
	if dc.Database != "" {
		b.WriteByte('/')
		b.WriteString(dc.Database)
	}

	return b.String()
}

// DisplayString returns the connection without credentials, formatted as
// "adapter://host:port/database" or "adapter://file".
func (dc *DatabaseConfig) DisplayString() string {
	adapter := strings.ToLower(dc.Adapter)
	if adapter == "sqlite" || adapter == "duckdb" {
		file := dc.File
		if file == "" {
			file = dc.DSN
		}
		return fmt.Sprintf("%s://%s", dc.Adapter, file)
	}

	host := dc.Host
	if host == "" {
		host = "localhost"
	}
	location := host
	if dc.Port > 0 {
		location = fmt.Sprintf("%s:%d", host, dc.Port)
	}
	if dc.Database != "" {
		return fmt.Sprintf("%s://%s/%s", dc.Adapter, location, dc.Database)
	}
	return fmt.Sprintf("%s://%s", dc.Adapter, location)
}
