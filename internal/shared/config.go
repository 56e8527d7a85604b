package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override values from the config file.
const (
	EnvSessionSecret = "AMALGAM_SESSION_SECRET"
	EnvDatabasePath  = "AMALGAM_DATABASE_PATH"
	EnvRedirectURI   = "AMALGAM_REDIRECT_URI"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Mastodon MastodonConfig `toml:"mastodon"`
	HTTP     HTTPConfig     `toml:"http"`
	Link     LinkConfig     `toml:"link"`
	Feed     FeedConfig     `toml:"feed"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	BaseURL       string `toml:"base_url"`
	SessionSecret string `toml:"session_secret"`
	SecureCookies bool   `toml:"secure_cookies"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// MastodonConfig describes how this application registers itself with remote servers.
type MastodonConfig struct {
	ClientName  string   `toml:"client_name"`
	Website     string   `toml:"website"`
	RedirectURI string   `toml:"redirect_uri"`
	Scopes      []string `toml:"scopes"`
	Scheme      string   `toml:"scheme"`
}

// HTTPConfig configures the outbound client shared by every remote call.
type HTTPConfig struct {
	Timeout   Duration `toml:"timeout"`
	UserAgent string   `toml:"user_agent"`
}

// LinkConfig holds retry budgets for the account linking flow.
type LinkConfig struct {
	AuthURLAttempts  int      `toml:"auth_url_attempts"`
	ExchangeAttempts int      `toml:"exchange_attempts"`
	TokenAttempts    int      `toml:"token_attempts"`
	RetryBackoff     Duration `toml:"retry_backoff"`
}

// FeedConfig controls timeline aggregation.
type FeedConfig struct {
	PageSize       int     `toml:"page_size"`
	FailFast       bool    `toml:"fail_fast"`
	MaxConcurrency int     `toml:"max_concurrency"`
	RateLimit      float64 `toml:"rate_limit"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Duration wraps [time.Duration] so it can be written as "10s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep their defaults, and environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process environment.
//
// Existing variables win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides secrets and deployment-specific values from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvSessionSecret); v != "" {
		c.Server.SessionSecret = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvRedirectURI); v != "" {
		c.Mastodon.RedirectURI = v
	}
}

// Validate checks values the rest of the application relies on.
func (c *Config) Validate() error {
	var problems []string
	if c.Mastodon.RedirectURI == "" {
		problems = append(problems, "mastodon.redirect_uri is empty")
	}
	if len(c.Mastodon.Scopes) == 0 {
		problems = append(problems, "mastodon.scopes is empty")
	}
	if s := c.Mastodon.Scheme; s != "http" && s != "https" {
		problems = append(problems, fmt.Sprintf("mastodon.scheme %q must be http or https", s))
	}
	if c.Feed.PageSize < 1 {
		problems = append(problems, "feed.page_size must be positive")
	}
	if c.Link.AuthURLAttempts < 1 || c.Link.ExchangeAttempts < 1 || c.Link.TokenAttempts < 1 {
		problems = append(problems, "link attempts must be at least 1")
	}
	if c.HTTP.Timeout.Duration <= 0 {
		problems = append(problems, "http.timeout must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes c to path as TOML, replacing any existing file.
func SaveConfig(c *Config, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
