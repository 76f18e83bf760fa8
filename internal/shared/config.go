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
	Mail       MailConfig       `toml:"mail"`
	OAuth      OAuthConfig      `toml:"oauth"`
	Bandcamp   BandcampConfig   `toml:"bandcamp"`
	Collection CollectionConfig `toml:"collection"`
	Site       SiteConfig       `toml:"site"`
	Database   DatabaseConfig   `toml:"database"`
	Server     ServerConfig     `toml:"server"`
}

// MailConfig describes the IMAP account and message filters.
type MailConfig struct {
	Server          string   `toml:"server"`
	Port            int      `toml:"port"`
	Username        string   `toml:"username"`
	Password        string   `toml:"password"`
	Security        string   `toml:"security"`
	Auth            string   `toml:"auth"`
	Folders         []string `toml:"folders"`
	Senders         []string `toml:"senders"`
	Subjects        []string `toml:"subjects"`
	IncludeRead     bool     `toml:"include_read"`
	MarkAsRead      bool     `toml:"mark_as_read"`
	DeleteProcessed bool     `toml:"delete_processed"` // expunge processed messages after a successful save
}

// Address returns host:port for dialing.
func (m MailConfig) Address() string {
	return fmt.Sprintf("%s:%d", m.Server, m.Port)
}

// OAuthConfig holds the OAuth2 client used for XOAUTH-capable providers.
type OAuthConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	AuthURL      string   `toml:"auth_url"`
	TokenURL     string   `toml:"token_url"`
	RedirectURI  string   `toml:"redirect_uri"`
	Scopes       []string `toml:"scopes"`
}

// BandcampConfig tunes page fetching.
type BandcampConfig struct {
	UserAgent         string  `toml:"user_agent"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	Retries           int     `toml:"retries"`
	RetryDelaySeconds int     `toml:"retry_delay_seconds"`
	RateLimit         float64 `toml:"rate_limit"`
	Workers           int     `toml:"workers"`
}

func (b BandcampConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

func (b BandcampConfig) RetryDelay() time.Duration {
	return time.Duration(b.RetryDelaySeconds) * time.Second
}

// CollectionConfig names the documents exchanged between commands.
type CollectionConfig struct {
	Path           string `toml:"path"`
	SyncedPath     string `toml:"synced_path"`
	SnapshotPath   string `toml:"snapshot_path"`
	ListenedPrefix string `toml:"listened_prefix"`
}

// SiteConfig contains static site generation settings.
type SiteConfig struct {
	OutputDir    string `toml:"output_dir"`
	ItemsPerPage int    `toml:"items_per_page"`
	Title        string `toml:"title"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path            string `toml:"path"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	CacheMaxAgeDays int    `toml:"cache_max_age_days"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads a TOML file on top of the embedded defaults, so omitted keys keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigOrDefault loads path when it exists and falls back to the defaults otherwise.
func LoadConfigOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Mail.Security {
	case "tls", "starttls", "insecure":
	default:
		return fmt.Errorf("%w: mail.security must be tls, starttls or insecure, got %q", ErrInvalidConfig, c.Mail.Security)
	}
	switch c.Mail.Auth {
	case "password", "oauth":
	default:
		return fmt.Errorf("%w: mail.auth must be password or oauth, got %q", ErrInvalidConfig, c.Mail.Auth)
	}
	if c.Site.ItemsPerPage <= 0 {
		return fmt.Errorf("%w: site.items_per_page must be positive", ErrInvalidConfig)
	}
	if c.Collection.ListenedPrefix == "" {
		return fmt.Errorf("%w: collection.listened_prefix must not be empty", ErrInvalidConfig)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: config file already exists at %s", ErrInvalidArgument, path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
