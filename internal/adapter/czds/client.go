package czds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/czds-fetch/internal/domain"
	"github.com/vertextoedge/czds-fetch/internal/port"
)

// Client is a CZDS zone download client
type Client struct {
	apiURL         string
	userAgent      string
	tokens         port.TokenSource
	store          port.ZoneStore
	httpClient     *http.Client
	downloadClient *http.Client
	logger         *zap.Logger
}

// Ensure Client implements port.ZoneClient
var _ port.ZoneClient = (*Client)(nil)

// NewClient creates a new CZDS client with transports built from cfg
func NewClient(cfg Config, tokens port.TokenSource, store port.ZoneStore, logger *zap.Logger) *Client {
	api, download := NewHTTPClients(cfg)
	return NewClientWithHTTP(cfg, tokens, store, api, download, logger)
}

// NewClientWithHTTP creates a new CZDS client with caller-supplied transports
func NewClientWithHTTP(
	cfg Config,
	tokens port.TokenSource,
	store port.ZoneStore,
	httpClient *http.Client,
	downloadClient *http.Client,
	logger *zap.Logger,
) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if downloadClient == nil {
		downloadClient = httpClient
	}

	return &Client{
		apiURL:         cfg.APIURL,
		userAgent:      cfg.UserAgent,
		tokens:         tokens,
		store:          store,
		httpClient:     httpClient,
		downloadClient: downloadClient,
		logger:         logger,
	}
}

// EnsureAuthenticated makes sure a bearer token is held
func (c *Client) EnsureAuthenticated(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

// ListAvailableLinks returns the download URLs the account is entitled to.
// An empty response body yields an empty set.
func (c *Client) ListAvailableLinks(ctx context.Context) ([]domain.ZoneLink, error) {
	urlStr := c.apiURL + linksPath

	resp, err := c.doAuthenticated(ctx, c.httpClient, urlStr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		drain(resp.Body)
		return nil, fmt.Errorf("%w: links request forbidden (status %d)", domain.ErrAuthentication, resp.StatusCode)
	default:
		drain(resp.Body)
		return nil, fmt.Errorf("%w: %w", domain.ErrNetwork, &StatusError{StatusCode: resp.StatusCode, URL: urlStr})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(fmt.Errorf("failed to read links response: %w", err))
	}

	links, err := ParseLinks(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("listed download links", zap.Int("count", len(links)))
	return links, nil
}

// ParseLinks decodes a links response body into a deduplicated set
func ParseLinks(body []byte) ([]domain.ZoneLink, error) {
	links := []domain.ZoneLink{}

	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return links, nil
	}

	var raw []string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: links response is not a list of urls: %w", domain.ErrProtocol, err)
	}

	seen := make(map[string]struct{}, len(raw))
	for _, link := range raw {
		if link == "" {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, domain.ZoneLink(link))
	}
	return links, nil
}

// ZoneURL returns the download URL of an explicitly requested TLD
func (c *Client) ZoneURL(tld string) (string, error) {
	tld = strings.ToLower(strings.TrimSpace(tld))
	if tld == "" {
		return "", fmt.Errorf("%w: empty tld", domain.ErrInvalidInput)
	}
	return c.apiURL + fmt.Sprintf(downloadPathFmt, url.PathEscape(tld)), nil
}

// FetchZone downloads the zone file of a TLD by name
func (c *Client) FetchZone(ctx context.Context, tld string) (*domain.DownloadedFile, error) {
	urlStr, err := c.ZoneURL(tld)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, tld, urlStr)
}

// FetchURL downloads the zone file behind a download URL
func (c *Client) FetchURL(ctx context.Context, downloadURL string) (*domain.DownloadedFile, error) {
	return c.fetch(ctx, downloadURL, downloadURL)
}

func (c *Client) fetch(ctx context.Context, zone, urlStr string) (*domain.DownloadedFile, error) {
	start := time.Now()

	resp, err := c.doAuthenticated(ctx, c.downloadClient, urlStr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusNotFound:
		drain(resp.Body)
		return nil, fmt.Errorf("%w (status %d)", domain.ErrAuthorizationDenied, resp.StatusCode)
	default:
		drain(resp.Body)
		return nil, fmt.Errorf("%w: %w", domain.ErrNetwork, &StatusError{StatusCode: resp.StatusCode, URL: urlStr})
	}

	name, err := FileNameFromHeader(resp.Header)
	if err != nil {
		drain(resp.Body)
		return nil, err
	}

	if err := c.store.CheckSpace(resp.ContentLength); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}

	c.logger.Debug("saving zone file",
		zap.String("zone", zone),
		zap.String("file", name),
		zap.Int64("content_length", resp.ContentLength))

	path, written, err := c.store.WriteZoneFile(name, &bodyReader{r: resp.Body})
	if err != nil {
		var readErr *bodyReadError
		if errors.As(err, &readErr) {
			return nil, networkError(fmt.Errorf("failed to read zone file body: %w", readErr.err))
		}
		return nil, fmt.Errorf("%w: failed to save zone file %s: %w", domain.ErrIO, name, err)
	}

	return &domain.DownloadedFile{
		Zone:    zone,
		Path:    path,
		Name:    name,
		Size:    written,
		Elapsed: time.Since(start),
	}, nil
}

// doAuthenticated issues an authenticated GET. On 401 the token is dropped
// and the request is retried exactly once with a fresh one.
func (c *Client) doAuthenticated(ctx context.Context, hc *http.Client, urlStr string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid url %q: %w", domain.ErrProtocol, urlStr, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := hc.Do(req)
		if err != nil {
			return nil, networkError(fmt.Errorf("request failed: %w", err))
		}

		if resp.StatusCode != http.StatusUnauthorized {
			return resp, nil
		}
		drain(resp.Body)
		resp.Body.Close()

		if attempt > 0 {
			return nil, fmt.Errorf("%w: token rejected after re-authentication (status 401)", domain.ErrAuthentication)
		}

		c.logger.Debug("token rejected, re-authenticating", zap.String("url", urlStr))
		c.tokens.Invalidate(token)
	}
}

// FileNameFromHeader extracts the zone file name from the response headers.
// A missing Content-Disposition header means the account is not entitled to
// the zone or the zone does not exist.
func FileNameFromHeader(h http.Header) (string, error) {
	values := h.Values(dispositionHeader)
	if len(values) == 0 {
		return "", domain.ErrAuthorizationDenied
	}

	name, ok := ParseDispositionFileName(values[0])
	if !ok {
		return "", fmt.Errorf("%w: no file name in %s %q", domain.ErrProtocol, dispositionHeader, values[0])
	}
	if !safeFileName(name) {
		return "", fmt.Errorf("%w: unsafe file name %q", domain.ErrProtocol, name)
	}
	return name, nil
}

// ParseDispositionFileName returns everything after the first
// "attachment;filename=" marker of a header value, verbatim
func ParseDispositionFileName(value string) (string, bool) {
	idx := strings.Index(value, dispositionMarker)
	if idx < 0 {
		return "", false
	}
	name := value[idx+len(dispositionMarker):]
	if name == "" {
		return "", false
	}
	return name, true
}

func safeFileName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

// networkError classifies a transport failure. Cancellation is kept apart
// from network errors so an aborted batch is not reported as a fault.
func networkError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrNetwork, err)
}

// bodyReader tags read errors so they can be told apart from write errors
type bodyReader struct {
	r io.Reader
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		return n, &bodyReadError{err: err}
	}
	return n, err
}

type bodyReadError struct {
	err error
}

func (e *bodyReadError) Error() string {
	return e.err.Error()
}

func (e *bodyReadError) Unwrap() error {
	return e.err
}
