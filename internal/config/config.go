// ABOUTME: Configuration loading and parsing for botdesk
// ABOUTME: Supports YAML or TOML files with .env loading, environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied before a file is decoded.
const (
	DefaultBaseURL      = "http://localhost:8080"
	DefaultTimeout      = "60s"
	DefaultPollInterval = "1s"
	DefaultMaxBytes     = 10 << 20
	DefaultDriver       = "sqlite"
)

// DefaultSuggestions are the starter prompts shown for an empty conversation.
var DefaultSuggestions = []string{
	"Analyze my Market",
	"Review Business Plan",
	"Financial Insights",
	"Risk Assessment",
	"Growth Strategy",
	"Competitor Analysis",
}

// Config represents the complete botdesk configuration
type Config struct {
	Remote      RemoteConfig      `yaml:"remote" toml:"remote"`
	Storage     StorageConfig     `yaml:"storage" toml:"storage"`
	Attachments AttachmentsConfig `yaml:"attachments" toml:"attachments"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Suggestions []string          `yaml:"suggestions" toml:"suggestions"`
}

// RemoteConfig holds the response service address
type RemoteConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// StorageConfig selects the durable store
type StorageConfig struct {
	Driver       string        `yaml:"driver" toml:"driver"`
	Path         string        `yaml:"path" toml:"path"`
	PollInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling; "0" disables cross-process polling
	PollIntervalRaw string `yaml:"poll_interval" toml:"poll_interval"`
}

// AttachmentsConfig limits what may be attached to a turn
type AttachmentsConfig struct {
	AllowedExtensions []string `yaml:"allowed_extensions" toml:"allowed_extensions"`
	MaxBytes          int64    `yaml:"max_bytes" toml:"max_bytes"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Parsed forms of DefaultTimeout and DefaultPollInterval.
const (
	defaultTimeout      = 60 * time.Second
	defaultPollInterval = time.Second
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := defaults()
	cfg.Remote.Timeout = defaultTimeout
	cfg.Storage.PollInterval = defaultPollInterval
	cfg.fillDerived()
	return cfg
}

// defaults is Default before durations and derived paths are filled in.
func defaults() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL:    DefaultBaseURL,
			TimeoutRaw: DefaultTimeout,
		},
		Storage: StorageConfig{
			Driver:          DefaultDriver,
			PollIntervalRaw: DefaultPollInterval,
		},
		Attachments: AttachmentsConfig{
			AllowedExtensions: []string{".pdf"},
			MaxBytes:          DefaultMaxBytes,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Suggestions: append([]string(nil), DefaultSuggestions...),
	}
}

// Path returns the config file location.
// Priority: BOTDESK_CONFIG env var > XDG_CONFIG_HOME/botdesk/config.yaml > ~/.config/botdesk/config.yaml
func Path() string {
	if envPath := os.Getenv("BOTDESK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "botdesk", "config.yaml")
}

// DataPath returns the default database location.
// Priority: XDG_DATA_HOME/botdesk > ~/.local/share/botdesk
func DataPath(driver string) string {
	name := "botdesk.db"
	if driver == "bolt" {
		name = "botdesk.bolt"
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return name
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "botdesk", name)
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file next to it is loaded first without overriding variables that
// are already set. Environment variables in the format ${VAR_NAME} are
// expanded. Files ending in .toml are decoded as TOML, anything else as YAML.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := defaults()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
			return nil, err
		}
		return Default(), nil
	}
	return Load(path)
}

// loadDotEnv loads path into the environment if it exists.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// finish parses durations and fills derived defaults after decoding.
func (c *Config) finish() error {
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	c.fillDerived()
	return nil
}

// fillDerived sets the driver and database path when the file left them out.
func (c *Config) fillDerived() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultDriver
	}
	if c.Storage.Path == "" && c.Storage.Driver != "memory" {
		c.Storage.Path = DataPath(c.Storage.Driver)
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil {
		return fmt.Errorf("remote.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("remote.base_url must use http or https scheme")
	}
	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout must not be negative")
	}

	switch c.Storage.Driver {
	case "sqlite", "bolt":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver must be sqlite, bolt or memory, got %q", c.Storage.Driver)
	}
	if c.Storage.PollInterval < 0 {
		return fmt.Errorf("storage.poll_interval must not be negative")
	}

	if c.Attachments.MaxBytes < 0 {
		return fmt.Errorf("attachments.max_bytes must not be negative")
	}
	for _, ext := range c.Attachments.AllowedExtensions {
		if strings.TrimSpace(ext) == "" {
			return fmt.Errorf("attachments.allowed_extensions must not contain empty entries")
		}
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// SlogLevel returns the configured level, defaulting to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	level, _ := parseLevel(l.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", s)
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Remote.TimeoutRaw != "" {
		cfg.Remote.Timeout, err = time.ParseDuration(cfg.Remote.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Remote.TimeoutRaw, err)
		}
	}

	if cfg.Storage.PollIntervalRaw != "" {
		cfg.Storage.PollInterval, err = time.ParseDuration(cfg.Storage.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Storage.PollIntervalRaw, err)
		}
	}

	return nil
}
