package czds

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Default ICANN endpoints
const (
	DefaultAuthURL = "https://account-api.icann.org"
	DefaultAPIURL  = "https://czds-api.icann.org"
)

const (
	authenticatePath = "/api/authenticate"
	linksPath        = "/czds/downloads/links"
	downloadPathFmt  = "/czds/downloads/%s.zone"

	dispositionHeader = "Content-Disposition"
	dispositionMarker = "attachment;filename="

	defaultUserAgent      = "czds-fetch/0.1"
	defaultRequestTimeout = 30 * time.Second
)

// Config is the immutable configuration of one client instance
type Config struct {
	AuthURL   string
	APIURL    string
	Username  string
	Password  string
	OutputDir string

	// RequestTimeout bounds authentication and links calls, and the wait for
	// download response headers
	RequestTimeout time.Duration

	// DownloadTimeout bounds a whole zone file transfer (0 = no limit)
	DownloadTimeout time.Duration

	// TokenTTL expires a bearer token after issue (0 = valid for the session)
	TokenTTL time.Duration

	// AuthMinInterval spaces out authentication calls (0 = no limit)
	AuthMinInterval time.Duration

	UserAgent     string
	SkipTLSVerify bool
	BufferSizeMB  int
}

// Validate checks the required fields
func (c Config) Validate() error {
	if c.AuthURL == "" {
		return fmt.Errorf("auth url is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("api url is required")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if c.Password == "" {
		return fmt.Errorf("password is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	c.AuthURL = strings.TrimSuffix(c.AuthURL, "/")
	c.APIURL = strings.TrimSuffix(c.APIURL, "/")
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.BufferSizeMB <= 0 {
		c.BufferSizeMB = 1
	}
	return c
}

// NewHTTPClients builds the API client and the download client.
// The download client has no overall timeout unless DownloadTimeout is set.
func NewHTTPClients(cfg Config) (api *http.Client, download *http.Client) {
	cfg = cfg.withDefaults()
	bufferSize := cfg.BufferSizeMB * 1024 * 1024

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.SkipTLSVerify,
		},
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	downloadTransport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.SkipTLSVerify,
		},
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     120 * time.Second,

		WriteBufferSize: bufferSize,
		ReadBufferSize:  bufferSize,

		ForceAttemptHTTP2: true,

		// Zone files are already gzipped
		DisableCompression: true,

		ResponseHeaderTimeout: cfg.RequestTimeout,
	}

	api = &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}
	download = &http.Client{
		Transport: downloadTransport,
		Timeout:   cfg.DownloadTimeout,
	}
	return api, download
}

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken string `json:"accessToken"`
	Message     string `json:"message"`
}

// StatusError represents an unexpected HTTP status from the CZDS API
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s from %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}
