package czds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vertextoedge/czds-fetch/internal/domain"
	"github.com/vertextoedge/czds-fetch/internal/port"
	"github.com/vertextoedge/czds-fetch/internal/util/ratelimiter"
)

const refreshKey = "token"

// Session owns the bearer token obtained from the ICANN account API
type Session struct {
	authURL    string
	username   string
	password   string
	userAgent  string
	ttl        time.Duration
	httpClient *http.Client
	limiter    *ratelimiter.Limiter
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.RWMutex
	token    string
	issuedAt time.Time

	group     singleflight.Group
	refreshes atomic.Int64
}

// Ensure Session implements port.TokenSource
var _ port.TokenSource = (*Session)(nil)

// NewSession creates a session; no network call is made until a token is needed
func NewSession(cfg Config, httpClient *http.Client, logger *zap.Logger) *Session {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient, _ = NewHTTPClients(cfg)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Session{
		authURL:    cfg.AuthURL,
		username:   cfg.Username,
		password:   cfg.Password,
		userAgent:  cfg.UserAgent,
		ttl:        cfg.TokenTTL,
		httpClient: httpClient,
		limiter:    ratelimiter.New(cfg.AuthMinInterval),
		logger:     logger,
		now:        time.Now,
	}
}

// EnsureAuthenticated guarantees a valid token is held after return
func (s *Session) EnsureAuthenticated(ctx context.Context) error {
	_, err := s.Token(ctx)
	return err
}

// Token returns the held token, authenticating first if it is absent or expired.
// Concurrent callers share a single in-flight authentication.
func (s *Session) Token(ctx context.Context) (string, error) {
	if token, ok := s.current(); ok {
		return token, nil
	}

	ch := s.group.DoChan(refreshKey, func() (interface{}, error) {
		// A refresh may have finished between current() and DoChan
		if token, ok := s.current(); ok {
			return token, nil
		}
		return s.authenticate(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", domain.ErrAuthentication, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops token if it is still the held one
func (s *Session) Invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != "" && s.token == token {
		s.token = ""
		s.issuedAt = time.Time{}
	}
}

func (s *Session) current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", false
	}
	if s.ttl > 0 && s.now().Sub(s.issuedAt) >= s.ttl {
		return "", false
	}
	return s.token, true
}

// authenticate performs the account API login
func (s *Session) authenticate(ctx context.Context) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
	}

	payload, err := json.Marshal(authRequest{Username: s.username, Password: s.password})
	if err != nil {
		return "", fmt.Errorf("%w: failed to encode credentials: %w", domain.ErrAuthentication, err)
	}

	urlStr := s.authURL + authenticatePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %w", domain.ErrAuthentication, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	s.logger.Debug("authenticating", zap.String("url", urlStr), zap.String("username", s.username))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: auth endpoint unreachable: %w", domain.ErrAuthentication, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		drain(resp.Body)
		return "", fmt.Errorf("%w: invalid username or password (status %d)", domain.ErrAuthentication, resp.StatusCode)
	default:
		drain(resp.Body)
		return "", fmt.Errorf("%w: %w", domain.ErrAuthentication, &StatusError{StatusCode: resp.StatusCode, URL: urlStr})
	}

	var authResp authResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", fmt.Errorf("%w: failed to decode auth response: %w", domain.ErrAuthentication, err)
	}
	if authResp.AccessToken == "" {
		return "", fmt.Errorf("%w: auth response carried no access token", domain.ErrAuthentication)
	}

	s.mu.Lock()
	s.token = authResp.AccessToken
	s.issuedAt = s.now()
	s.mu.Unlock()

	refreshes := s.refreshes.Add(1)
	s.logger.Debug("authenticated",
		zap.String("message", authResp.Message),
		zap.Int64("refreshes", refreshes))
	return authResp.AccessToken, nil
}

// drain consumes what is left of a body so the connection can be reused
func drain(r io.Reader) {
	io.Copy(io.Discard, io.LimitReader(r, 64*1024))
}
