// Package config provides configuration management for cowork.
//
// Configuration is loaded from multiple sources with the following precedence
// (highest to lowest):
//  1. CLI flags (set via SetOverride)
//  2. Environment variables with the COWORK_ prefix (COWORK_API_BASE_URL)
//  3. Project config: ./cowork.yaml or ./.cowork/config.yaml
//  4. Global config: ~/.config/cowork/config.yaml
//  5. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the cowork.yaml configuration file.
type Config struct {
	// Version is the configuration schema version (currently "1")
	Version string `yaml:"version" mapstructure:"version" validate:"required,eq=1"`

	// API configures the REST gateway
	API APIConfig `yaml:"api" mapstructure:"api"`

	// WS configures the per-task event channels
	WS WSConfig `yaml:"ws" mapstructure:"ws"`

	// Store configures the local task state store
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Poll configures the status polling fallback
	Poll PollConfig `yaml:"poll" mapstructure:"poll"`
}

// APIConfig holds the REST gateway settings.
type APIConfig struct {
	// BaseURL is the backend root, e.g. http://localhost:8000
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`

	// Token is sent as a bearer token when non-empty
	Token string `yaml:"token,omitempty" mapstructure:"token"`

	// Timeout bounds each individual attempt
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`

	// MaxAttempts is the number of tries per request
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1,lte=10"`

	// RetryDelay is multiplied by the attempt number between tries
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay" validate:"gte=0"`
}

// WSConfig holds the event channel settings.
type WSConfig struct {
	// BaseURL overrides the websocket root. Derived from api.base_url when empty.
	BaseURL string `yaml:"base_url,omitempty" mapstructure:"base_url" validate:"omitempty,url"`

	// Global selects the shared /ws?task_id= endpoint instead of /ws/tasks/{id}
	Global bool `yaml:"global" mapstructure:"global"`

	// ReconnectBaseDelay is the first reconnect delay; it doubles per attempt
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay" mapstructure:"reconnect_base_delay" validate:"gt=0"`

	// MaxReconnectAttempts is the number of reconnects before giving up
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts" mapstructure:"max_reconnect_attempts" validate:"gte=1,lte=20"`

	// KeepaliveInterval is the ping period; zero disables pings
	KeepaliveInterval time.Duration `yaml:"keepalive_interval" mapstructure:"keepalive_interval" validate:"gte=0"`

	// DialTimeout bounds the websocket handshake
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout" validate:"gt=0"`
}

// StoreConfig holds the task state store settings.
type StoreConfig struct {
	// HistoryCap bounds the number of history entries kept
	HistoryCap int `yaml:"history_cap" mapstructure:"history_cap" validate:"gte=1,lte=1000"`

	// Path is the history file; empty disables persistence
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

// PollConfig holds the polling fallback settings.
type PollConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval" validate:"gt=0"`
}

// WSBaseURL returns the websocket root, deriving ws:// or wss:// from the
// API base URL when ws.base_url is unset.
func (c *Config) WSBaseURL() string {
	if c.WS.BaseURL != "" {
		return c.WS.BaseURL
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return strings.TrimRight(u.String(), "/")
}

// ValidationError represents a configuration validation error with field details.
type ValidationError struct {
	Field   string
	Tag     string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Message)
	}
	return strings.Join(msgs, "; ")
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v         *viper.Viper
	validator *validator.Validate
	overrides map[string]interface{}
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("COWORK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{
		v:         v,
		validator: validator.New(),
		overrides: make(map[string]interface{}),
	}
}

// SetOverride sets a CLI override value that takes highest precedence.
// Use dot notation for nested keys (e.g., "api.base_url").
func (l *Loader) SetOverride(key string, value interface{}) {
	l.overrides[key] = value
}

// Load reads configuration from all sources and returns the merged result.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.setDefaults()

	globalPath := l.globalConfigPath()
	if globalPath != "" && fileExists(globalPath) {
		if err := l.loadConfigFile(globalPath); err != nil {
			return nil, fmt.Errorf("failed to load global config %s: %w", globalPath, err)
		}
	}

	projectPath := l.findProjectConfig()
	if projectPath != "" {
		if err := l.loadConfigFile(projectPath); err != nil {
			return nil, fmt.Errorf("failed to load project config %s: %w", projectPath, err)
		}
	}

	return l.finish(cfg)
}

// LoadFromPath loads configuration from a specific file path.
// This is useful for testing or when a config path is explicitly specified.
func (l *Loader) LoadFromPath(path string) (*Config, error) {
	l.setDefaults()

	if err := l.loadConfigFile(path); err != nil {
		return nil, err
	}

	return l.finish(&Config{})
}

func (l *Loader) finish(cfg *Config) (*Config, error) {
	for key, value := range l.overrides {
		l.v.Set(key, value)
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration against the schema.
// Returns ValidationErrors with detailed information about any issues.
func (l *Loader) Validate(cfg *Config) error {
	var errs ValidationErrors

	err := l.validator.Struct(cfg)
	if err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, e := range validationErrs {
				errs = append(errs, ValidationError{
					Field:   e.Namespace(),
					Tag:     e.Tag(),
					Value:   e.Value(),
					Message: formatValidationError(e),
				})
			}
		} else {
			return fmt.Errorf("validation error: %w", err)
		}
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("version", defaults.Version)
	l.v.SetDefault("api.base_url", defaults.API.BaseURL)
	l.v.SetDefault("api.token", defaults.API.Token)
	l.v.SetDefault("api.timeout", defaults.API.Timeout)
	l.v.SetDefault("api.max_attempts", defaults.API.MaxAttempts)
	l.v.SetDefault("api.retry_delay", defaults.API.RetryDelay)
	l.v.SetDefault("ws.base_url", defaults.WS.BaseURL)
	l.v.SetDefault("ws.global", defaults.WS.Global)
	l.v.SetDefault("ws.reconnect_base_delay", defaults.WS.ReconnectBaseDelay)
	l.v.SetDefault("ws.max_reconnect_attempts", defaults.WS.MaxReconnectAttempts)
	l.v.SetDefault("ws.keepalive_interval", defaults.WS.KeepaliveInterval)
	l.v.SetDefault("ws.dial_timeout", defaults.WS.DialTimeout)
	l.v.SetDefault("store.history_cap", defaults.Store.HistoryCap)
	l.v.SetDefault("store.path", defaults.Store.Path)
	l.v.SetDefault("poll.interval", defaults.Poll.Interval)
}

func (l *Loader) loadConfigFile(path string) error {
	l.v.SetConfigFile(path)
	return l.v.MergeInConfig()
}

func (l *Loader) globalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cowork", "config.yaml")
}

func (l *Loader) findProjectConfig() string {
	if fileExists("cowork.yaml") {
		return "cowork.yaml"
	}

	altPath := filepath.Join(".cowork", "config.yaml")
	if fileExists(altPath) {
		return altPath
	}

	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func formatValidationError(e validator.FieldError) string {
	field := e.Namespace()
	// Remove the "Config." prefix for cleaner messages
	field = strings.TrimPrefix(field, "Config.")

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("'%s' is required", field)
	case "url":
		return fmt.Sprintf("'%s' must be a valid URL (got '%v')", field, e.Value())
	case "eq":
		return fmt.Sprintf("'%s' must be '%s' (got '%v')", field, e.Param(), e.Value())
	case "gt":
		return fmt.Sprintf("'%s' must be greater than %s (got '%v')", field, e.Param(), e.Value())
	case "gte":
		return fmt.Sprintf("'%s' must be at least %s (got '%v')", field, e.Param(), e.Value())
	case "lte":
		return fmt.Sprintf("'%s' must be at most %s (got '%v')", field, e.Param(), e.Value())
	default:
		return fmt.Sprintf("'%s' failed validation '%s'", field, e.Tag())
	}
}

// DefaultConfig returns a new Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		API: APIConfig{
			BaseURL:     "http://localhost:8000",
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
			RetryDelay:  time.Second,
		},
		WS: WSConfig{
			ReconnectBaseDelay:   time.Second,
			MaxReconnectAttempts: 5,
			KeepaliveInterval:    30 * time.Second,
			DialTimeout:          10 * time.Second,
		},
		Store: StoreConfig{
			HistoryCap: 100,
			Path:       DefaultStorePath(),
		},
		Poll: PollConfig{
			Interval: 2 * time.Second,
		},
	}
}

// DefaultStorePath returns ~/.config/cowork/state/history.json, or an empty
// path when the home directory is unknown.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cowork", "state", "history.json")
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	return Write(cfg, path)
}

// Write writes the configuration to the specified path.
func Write(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return err
		}
	}

	return os.WriteFile(path, data, 0600)
}

// SaveCredentials records the API base URL and token in the config file at
// path, keeping every other key already present.
func SaveCredentials(path, baseURL, token string) error {
	doc := map[string]interface{}{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if doc == nil {
			doc = map[string]interface{}{}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if _, ok := doc["version"]; !ok {
		doc["version"] = "1"
	}
	section, _ := doc["api"].(map[string]interface{})
	if section == nil {
		section = map[string]interface{}{}
	}
	section["base_url"] = baseURL
	if token != "" {
		section["token"] = token
	} else {
		delete(section, "token")
	}
	doc["api"] = section

	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Load is a convenience function that creates a Loader and loads the config.
// For more control over loading behavior, use NewLoader() directly.
func Load() (*Config, error) {
	return NewLoader().Load()
}

// Exists checks if a configuration file exists at the given path.
func Exists(path string) bool {
	return fileExists(path)
}

// GlobalConfigPath returns the path to the global configuration file.
func GlobalConfigPath() string {
	return NewLoader().globalConfigPath()
}

// FindProjectConfig returns the path to the project configuration file,
// or an empty string if no project config is found.
func FindProjectConfig() string {
	return NewLoader().findProjectConfig()
}
