package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database    DatabaseConfig    `toml:"database"`
	Library     LibraryConfig     `toml:"library"`
	Credentials CredentialsConfig `toml:"credentials"`
	RateLimits  map[string]int    `toml:"rate_limits"` // host -> minimum interval in milliseconds
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LibraryConfig contains local music library settings.
type LibraryConfig struct {
	Directories []string `toml:"directories"`
	Watch       bool     `toml:"watch"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Catalog  CatalogConfig  `toml:"catalog"`
	Video    VideoConfig    `toml:"video"`
	Metadata MetadataConfig `toml:"metadata"`
}

// CatalogConfig contains streaming catalog API credentials.
type CatalogConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	BaseURL      string `toml:"base_url"`
	AuthURL      string `toml:"auth_url"`
	TokenURL     string `toml:"token_url"`
}

// VideoConfig contains video source API settings.
type VideoConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// MetadataConfig contains metadata lookup credentials.
type MetadataConfig struct {
	AcoustIDAPIKey string `toml:"acoustid_api_key"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
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

// RateLimitDurations converts the configured per-host limits into durations.
func (c *Config) RateLimitDurations() map[string]time.Duration {
	limits := make(map[string]time.Duration, len(c.RateLimits))
	for host, ms := range c.RateLimits {
		limits[host] = time.Duration(ms) * time.Millisecond
	}
	return limits
}
