package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
account:
  username: researcher@example.com
  password: s3cret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://account-api.icann.org", cfg.Account.AuthURL)
	assert.Equal(t, "https://czds-api.icann.org", cfg.CZDS.APIURL)
	assert.Empty(t, cfg.CZDS.TLDs)
	assert.Equal(t, "./zonefiles", cfg.Download.Directory)
	assert.Equal(t, 1, cfg.Download.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Download.GetRequestTimeout())
	assert.Zero(t, cfg.Download.GetDownloadTimeout())
	assert.Equal(t, 24*time.Hour, cfg.Download.GetTempFileMaxAge())
	assert.Equal(t, 1024*1024, cfg.Download.GetBufferSize())
	assert.Zero(t, cfg.Auth.GetTokenTTL())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	zoneDir, err := filepath.Abs("zonefiles")
	require.NoError(t, err)
	assert.Equal(t, zoneDir+".history.db", cfg.GetDatabasePath())
}

func TestGetDatabasePath_OutsideDownloadDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "zones")
	cfg := &Config{Download: DownloadConfig{Directory: dir + string(filepath.Separator)}}

	path := cfg.GetDatabasePath()
	assert.Equal(t, dir+".history.db", path)
	assert.Equal(t, filepath.Dir(dir), filepath.Dir(path))
}

func TestLoadLocal_CredentialsNotRequired(t *testing.T) {
	path := writeConfig(t, `
download:
  directory: /data/zones
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account.username")

	cfg, err := LoadLocal(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/zones", cfg.Download.Directory)
	assert.Empty(t, cfg.Account.Password)
}

func TestLoadLocal_StillValidatesSettings(t *testing.T) {
	path := writeConfig(t, `
download:
  concurrency: 20
`)

	_, err := LoadLocal(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download.concurrency")
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
account:
  auth_url: https://auth.example
  username: researcher@example.com
  password: s3cret
czds:
  api_url: https://czds.example
  tlds: "com, xyz"
download:
  directory: /data/zones
  concurrency: 4
  request_timeout: 10s
  download_timeout: 1h
auth:
  token_ttl: 23h
  min_interval: 2s
logging:
  level: debug
  format: text
database:
  path: /data/history.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	client := cfg.ClientConfig()
	assert.Equal(t, "https://auth.example", client.AuthURL)
	assert.Equal(t, "https://czds.example", client.APIURL)
	assert.Equal(t, "researcher@example.com", client.Username)
	assert.Equal(t, "/data/zones", client.OutputDir)
	assert.Equal(t, 10*time.Second, client.RequestTimeout)
	assert.Equal(t, time.Hour, client.DownloadTimeout)
	assert.Equal(t, 23*time.Hour, client.TokenTTL)
	assert.Equal(t, 2*time.Second, client.AuthMinInterval)
	assert.NoError(t, client.Validate())

	assert.Equal(t, "com, xyz", cfg.CZDS.TLDs)
	assert.Equal(t, 4, cfg.Download.Concurrency)
	assert.Equal(t, "/data/history.db", cfg.GetDatabasePath())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CZDS_ACCOUNT_USERNAME", "env-user")
	t.Setenv("CZDS_ACCOUNT_PASSWORD", "env-pass")
	t.Setenv("CZDS_CZDS_TLDS", "org")
	t.Setenv("CZDS_DOWNLOAD_CONCURRENCY", "3")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-user", cfg.Account.Username)
	assert.Equal(t, "env-pass", cfg.Account.Password)
	assert.Equal(t, "org", cfg.CZDS.TLDs)
	assert.Equal(t, 3, cfg.Download.Concurrency)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Account:  AccountConfig{AuthURL: "https://auth.example", Username: "u", Password: "p"},
			CZDS:     CZDSConfig{APIURL: "https://czds.example"},
			Download: DownloadConfig{Directory: "zones", Concurrency: 1, RequestTimeout: "30s", DownloadTimeout: "0s", TempFileMaxAge: "24h"},
			Auth:     AuthConfig{TokenTTL: "0s", MinInterval: "0s"},
			Logging:  LoggingConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing username", func(c *Config) { c.Account.Username = "" }, "account.username"},
		{"missing password", func(c *Config) { c.Account.Password = "" }, "account.password"},
		{"missing directory", func(c *Config) { c.Download.Directory = "" }, "download.directory"},
		{"zero concurrency", func(c *Config) { c.Download.Concurrency = 0 }, "download.concurrency"},
		{"too many workers", func(c *Config) { c.Download.Concurrency = 11 }, "download.concurrency"},
		{"bad duration", func(c *Config) { c.Auth.TokenTTL = "soon" }, "auth.token_ttl"},
		{"negative duration", func(c *Config) { c.Download.RequestTimeout = "-1s" }, "download.request_timeout"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
