package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vertextoedge/czds-fetch/internal/adapter/czds"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// CZDS_ACCOUNT_PASSWORD overrides account.password
const EnvPrefix = "CZDS"

// Config represents the entire application configuration
type Config struct {
	Account  AccountConfig  `mapstructure:"account"`
	CZDS     CZDSConfig     `mapstructure:"czds"`
	Download DownloadConfig `mapstructure:"download"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
}

// AccountConfig contains ICANN account API settings
type AccountConfig struct {
	AuthURL       string `mapstructure:"auth_url"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	SkipTLSVerify bool   `mapstructure:"skip_tls_verify"`
}

// CZDSConfig contains CZDS API settings
type CZDSConfig struct {
	APIURL string `mapstructure:"api_url"`
	TLDs   string `mapstructure:"tlds"` // Comma-separated; empty means every entitled zone
}

// DownloadConfig contains zone download settings
type DownloadConfig struct {
	Directory       string `mapstructure:"directory"`
	Concurrency     int    `mapstructure:"concurrency"`
	RequestTimeout  string `mapstructure:"request_timeout"`
	DownloadTimeout string `mapstructure:"download_timeout"`
	TempFileMaxAge  string `mapstructure:"temp_file_max_age"`
	BufferSizeMB    int    `mapstructure:"buffer_size_mb"`
}

// AuthConfig contains bearer token settings
type AuthConfig struct {
	TokenTTL    string `mapstructure:"token_ttl"`
	MinInterval string `mapstructure:"min_interval"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains download history database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from the specified file path. An empty path
// loads defaults and environment overrides only.
func Load(configPath string) (*Config, error) {
	config, err := load(configPath)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadLocal loads configuration for commands that never contact CZDS.
// Account credentials are not required.
func LoadLocal(configPath string) (*Config, error) {
	config, err := load(configPath)
	if err != nil {
		return nil, err
	}

	if err := config.ValidateSettings(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("account.auth_url", czds.DefaultAuthURL)
	v.SetDefault("account.username", "")
	v.SetDefault("account.password", "")
	v.SetDefault("account.skip_tls_verify", false)
	v.SetDefault("czds.api_url", czds.DefaultAPIURL)
	v.SetDefault("czds.tlds", "")
	v.SetDefault("download.directory", "./zonefiles")
	v.SetDefault("download.concurrency", 1)
	v.SetDefault("download.request_timeout", "30s")
	v.SetDefault("download.download_timeout", "0s")
	v.SetDefault("download.temp_file_max_age", "24h")
	v.SetDefault("download.buffer_size_mb", 1)
	v.SetDefault("auth.token_ttl", "0s")
	v.SetDefault("auth.min_interval", "0s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration including account credentials
func (c *Config) Validate() error {
	if c.Account.AuthURL == "" {
		return fmt.Errorf("account.auth_url is required")
	}
	if c.Account.Username == "" {
		return fmt.Errorf("account.username is required")
	}
	if c.Account.Password == "" {
		return fmt.Errorf("account.password is required")
	}
	if c.CZDS.APIURL == "" {
		return fmt.Errorf("czds.api_url is required")
	}

	return c.ValidateSettings()
}

// ValidateSettings validates everything except the CZDS account
func (c *Config) ValidateSettings() error {
	if c.Download.Directory == "" {
		return fmt.Errorf("download.directory is required")
	}
	if c.Download.Concurrency < 1 || c.Download.Concurrency > 10 {
		return fmt.Errorf("download.concurrency must be between 1 and 10")
	}

	durations := map[string]string{
		"download.request_timeout":   c.Download.RequestTimeout,
		"download.download_timeout":  c.Download.DownloadTimeout,
		"download.temp_file_max_age": c.Download.TempFileMaxAge,
		"auth.token_ttl":             c.Auth.TokenTTL,
		"auth.min_interval":          c.Auth.MinInterval,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// ClientConfig derives the CZDS client configuration
func (c *Config) ClientConfig() czds.Config {
	return czds.Config{
		AuthURL:         c.Account.AuthURL,
		APIURL:          c.CZDS.APIURL,
		Username:        c.Account.Username,
		Password:        c.Account.Password,
		OutputDir:       c.Download.Directory,
		RequestTimeout:  c.Download.GetRequestTimeout(),
		DownloadTimeout: c.Download.GetDownloadTimeout(),
		TokenTTL:        c.Auth.GetTokenTTL(),
		AuthMinInterval: c.Auth.GetMinInterval(),
		SkipTLSVerify:   c.Account.SkipTLSVerify,
		BufferSizeMB:    c.Download.BufferSizeMB,
	}
}

// GetDatabasePath returns the history database path. The default sits next
// to the download directory, e.g. /data/zones.history.db for /data/zones, so
// the directory only ever holds zone files.
func (c *Config) GetDatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}

	dir := filepath.Clean(c.Download.Directory)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return filepath.Join(filepath.Dir(dir), filepath.Base(dir)+".history.db")
}

// GetRequestTimeout returns the API request timeout as time.Duration
func (c *DownloadConfig) GetRequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetDownloadTimeout returns the whole-transfer timeout (0 = none)
func (c *DownloadConfig) GetDownloadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.DownloadTimeout)
	return d
}

// GetTempFileMaxAge returns the stale temp file age as time.Duration
func (c *DownloadConfig) GetTempFileMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.TempFileMaxAge)
	return d
}

// GetBufferSize returns the copy buffer size in bytes
func (c *DownloadConfig) GetBufferSize() int {
	if c.BufferSizeMB <= 0 {
		return 1024 * 1024
	}
	return c.BufferSizeMB * 1024 * 1024
}

// GetTokenTTL returns the token lifetime (0 = valid for the session)
func (c *AuthConfig) GetTokenTTL() time.Duration {
	d, _ := time.ParseDuration(c.TokenTTL)
	return d
}

// GetMinInterval returns the minimum spacing of authentication calls
func (c *AuthConfig) GetMinInterval() time.Duration {
	d, _ := time.ParseDuration(c.MinInterval)
	return d
}
