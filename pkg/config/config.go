// Package config loads engine configuration from YAML files with
// environment overrides. Precedence, lowest to highest: built-in defaults,
// ~/.parlance/config.yaml, ./.parlance/config.yaml, PARLANCE_* environment
// variables.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// ProjectDirName is the dot-directory parlance keeps its state in, both
// under $HOME and in the working directory.
const ProjectDirName = ".parlance"

// MinTokenLength is the minimum length accepted for static API tokens.
const MinTokenLength = 32

// Default server and engine settings.
const (
	DefaultBind          = "127.0.0.1:8787"
	DefaultShutdownGrace = 10 * time.Second
	DefaultParseTimeout  = 15 * time.Second
	DefaultLogLevel      = "info"
)

// Config is the complete engine configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Parser      ParserConfig      `yaml:"parser"`
	Images      ImagesConfig      `yaml:"images"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
	Flags       FlagsConfig       `yaml:"flags"`
	Bus         BusConfig         `yaml:"bus"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	// Bind is the listen address, host:port.
	Bind string `yaml:"bind"`

	// AuthToken enables static bearer-token auth when set.
	AuthToken string `yaml:"auth_token"`

	// JWTSecret enables JWT bearer auth when set. JWT is checked before
	// the static token.
	JWTSecret string `yaml:"jwt_secret"`

	// CORSOrigins lists allowed origins; empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins"`

	// PublicMetrics exposes /metrics to unauthenticated callers.
	PublicMetrics bool `yaml:"public_metrics"`

	// ShutdownGrace bounds how long in-flight requests get on shutdown.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// ParserConfig points at the structured-parse model service. An empty
// APIKey with an empty BaseURL leaves the engine pattern-rules-only.
type ParserConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`

	// Timeout is the hard ceiling on one parse call. A slow parser is a
	// no-match, never a hang.
	Timeout time.Duration `yaml:"timeout"`

	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`

	// MaxContextTokens bounds the ambient context sent with each call.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// ImagesConfig points at the image generation service.
type ImagesConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Size    string        `yaml:"size"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls the JSONL logger.
type LoggingConfig struct {
	Dir        string `yaml:"dir"`
	Level      string `yaml:"level"`
	EchoStderr bool   `yaml:"echo_stderr"`
}

// FlagsConfig locates the feature-flag file and tunes its watcher.
type FlagsConfig struct {
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Debounce     time.Duration `yaml:"debounce"`
}

// BusConfig selects the event bus driver.
type BusConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

// PermissionsConfig maps permission names to the roles that hold them. The
// wildcard role "*" grants a permission to everyone.
type PermissionsConfig struct {
	Grants map[string][]string `yaml:"grants"`
}

// TracingConfig toggles the stdout span exporter.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the built-in defaults. Paths under $HOME are
// resolved at load time, not here, so tests can override the base dir.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Bind:          DefaultBind,
			ShutdownGrace: DefaultShutdownGrace,
		},
		Parser: ParserConfig{
			Timeout:           DefaultParseTimeout,
			RequestsPerSecond: 1,
			Burst:             10,
			MaxContextTokens:  2048,
		},
		Images: ImagesConfig{
			Timeout: 2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
		Flags: FlagsConfig{
			PollInterval: 30 * time.Second,
			Debounce:     500 * time.Millisecond,
		},
		Bus: BusConfig{
			Driver: "memory",
			URL:    "nats://localhost:4222",
		},
	}
}

// BaseDir returns the per-user state directory, ~/.parlance.
func BaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ProjectDirName)
}

// Load reads configuration from the default locations with proper
// precedence and fills in derived defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	userConfigPath := filepath.Join(BaseDir(), "config.yaml")
	if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading user config: %w", err)
	}

	projectConfigPath := filepath.Join(".", ProjectDirName, "config.yaml")
	if err := loadAndMerge(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDerivedDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadFromPath reads configuration from one explicit file. Unlike Load, a
// missing file is an error here: the caller asked for that file.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDerivedDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDerivedDefaults fills path defaults that depend on the home
// directory.
func (c *Config) applyDerivedDefaults() {
	base := BaseDir()
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(base, "parlance.db")
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = filepath.Join(base, "logs")
	}
	if c.Flags.Path == "" {
		c.Flags.Path = filepath.Join(base, "flags.yaml")
	}
	if c.Images.BaseURL == "" {
		c.Images.BaseURL = c.Parser.BaseURL
	}
	if c.Images.APIKey == "" {
		c.Images.APIKey = c.Parser.APIKey
	}
}

// applyEnvOverrides applies PARLANCE_* environment variables on top of the
// merged file config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PARLANCE_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("PARLANCE_AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := os.Getenv("PARLANCE_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("PARLANCE_PARSER_BASE_URL"); v != "" {
		cfg.Parser.BaseURL = v
	}
	if v := os.Getenv("PARLANCE_PARSER_MODEL"); v != "" {
		cfg.Parser.Model = v
	}
	if v := os.Getenv("PARLANCE_PARSER_API_KEY"); v != "" {
		cfg.Parser.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Parser.APIKey == "" {
		cfg.Parser.APIKey = v
	}
	if v := os.Getenv("PARLANCE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("PARLANCE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PARLANCE_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := os.Getenv("PARLANCE_FLAGS_PATH"); v != "" {
		cfg.Flags.Path = v
	}
	if v := os.Getenv("PARLANCE_BUS_DRIVER"); v != "" {
		cfg.Bus.Driver = v
	}
	if v := os.Getenv("PARLANCE_BUS_URL"); v != "" {
		cfg.Bus.URL = v
	}
}

// ParserConfigured reports whether a structured-parse service is wired.
func (c *Config) ParserConfigured() bool {
	return c.Parser.BaseURL != "" || c.Parser.APIKey != ""
}

// Validate rejects configurations the engine cannot safely run with.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("server.bind %q is not host:port: %w", c.Server.Bind, err)
	}
	if c.Server.AuthToken != "" && len(c.Server.AuthToken) < MinTokenLength {
		return fmt.Errorf("server.auth_token must be at least %d characters", MinTokenLength)
	}
	if c.Server.ShutdownGrace < 0 {
		return fmt.Errorf("server.shutdown_grace must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	switch c.Bus.Driver {
	case "", "memory", "nats":
	default:
		return fmt.Errorf("bus.driver %q is not one of memory, nats", c.Bus.Driver)
	}
	if c.Bus.Driver == "nats" && c.Bus.URL == "" {
		return fmt.Errorf("bus.url is required with the nats driver")
	}

	if c.Parser.Timeout <= 0 {
		return fmt.Errorf("parser.timeout must be positive")
	}
	if c.Parser.RequestsPerSecond < 0 {
		return fmt.Errorf("parser.requests_per_second must not be negative")
	}

	if c.Images.Enabled && c.Images.BaseURL == "" && c.Parser.BaseURL == "" {
		return fmt.Errorf("images.enabled requires images.base_url or parser.base_url")
	}

	return nil
}
