package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// CZDSServer is an in-process fake of the ICANN account and CZDS APIs
type CZDSServer struct {
	Server   *httptest.Server
	URL      string
	Username string
	Password string

	mu          sync.Mutex
	zones       map[string][]byte
	denied      map[string]bool
	broken      map[string]bool
	failing     map[string]int
	stalled     map[string]time.Duration
	linksDelay  time.Duration
	linksBody   *string
	validTokens map[string]bool
	tokenSeq    int
	authDelay   time.Duration
	authStatus  int

	authCalls     atomic.Int32
	downloadCalls atomic.Int32
	linksCalls    atomic.Int32
}

// NewCZDSServer starts a fake server that is closed when the test ends
func NewCZDSServer(t testing.TB) *CZDSServer {
	t.Helper()

	s := &CZDSServer{
		Username:    "researcher@example.com",
		Password:    "s3cret",
		zones:       make(map[string][]byte),
		denied:      make(map[string]bool),
		broken:      make(map[string]bool),
		failing:     make(map[string]int),
		stalled:     make(map[string]time.Duration),
		validTokens: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/authenticate", s.handleAuthenticate)
	mux.HandleFunc("/czds/downloads/links", s.handleLinks)
	mux.HandleFunc("/czds/downloads/", s.handleDownload)

	s.Server = httptest.NewServer(mux)
	s.URL = s.Server.URL
	t.Cleanup(s.Server.Close)
	return s
}

// AddZone makes a zone downloadable with the given content
func (s *CZDSServer) AddZone(tld string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones[tld] = content
}

// DenyZone makes the zone respond 200 without a Content-Disposition header
func (s *CZDSServer) DenyZone(tld string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied[tld] = true
}

// BreakZone makes the zone connection drop halfway through the body
func (s *CZDSServer) BreakZone(tld string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken[tld] = true
}

// FailZone makes the zone respond with status for every request
func (s *CZDSServer) FailZone(tld string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[tld] = status
}

// StallZone holds back the response headers of the zone for d, or until the
// client gives up
func (s *CZDSServer) StallZone(tld string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalled[tld] = d
}

// SetLinksDelay holds back links responses for d, or until the client gives up
func (s *CZDSServer) SetLinksDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linksDelay = d
}

// SetLinksBody overrides the raw links response body
func (s *CZDSServer) SetLinksBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linksBody = &body
}

// SetAuthDelay slows down authentication responses
func (s *CZDSServer) SetAuthDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authDelay = d
}

// SetAuthStatus forces the authentication endpoint to answer with status
func (s *CZDSServer) SetAuthStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authStatus = status
}

// RevokeTokens invalidates every issued token, as if they expired
func (s *CZDSServer) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validTokens = make(map[string]bool)
}

// ZoneURL returns the download URL the server lists for tld
func (s *CZDSServer) ZoneURL(tld string) string {
	return s.URL + "/czds/downloads/" + tld + ".zone"
}

// FileName returns the name the server assigns to tld's zone file
func (s *CZDSServer) FileName(tld string) string {
	return tld + ".txt.gz"
}

// AuthCalls returns the number of authentication requests received
func (s *CZDSServer) AuthCalls() int {
	return int(s.authCalls.Load())
}

// DownloadCalls returns the number of zone download requests received
func (s *CZDSServer) DownloadCalls() int {
	return int(s.downloadCalls.Load())
}

// LinksCalls returns the number of links requests received
func (s *CZDSServer) LinksCalls() int {
	return int(s.linksCalls.Load())
}

func (s *CZDSServer) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	s.authCalls.Add(1)

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	delay := s.authDelay
	forced := s.authStatus
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if forced != 0 {
		w.WriteHeader(forced)
		return
	}

	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if creds.Username != s.Username || creds.Password != s.Password {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Invalid username or password"}`)
		return
	}

	s.mu.Lock()
	s.tokenSeq++
	token := fmt.Sprintf("token-%d", s.tokenSeq)
	s.validTokens[token] = true
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"accessToken": token,
		"message":     "Authentication Successful",
	})
}

func (s *CZDSServer) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validTokens[token]
}

func (s *CZDSServer) handleLinks(w http.ResponseWriter, r *http.Request) {
	s.linksCalls.Add(1)

	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	delay := s.linksDelay
	s.mu.Unlock()
	if !stall(r, delay) {
		return
	}

	s.mu.Lock()
	override := s.linksBody
	tlds := make([]string, 0, len(s.zones)+len(s.denied))
	for tld := range s.zones {
		tlds = append(tlds, tld)
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if override != nil {
		fmt.Fprint(w, *override)
		return
	}

	sort.Strings(tlds)
	links := make([]string, 0, len(tlds))
	for _, tld := range tlds {
		links = append(links, s.ZoneURL(tld))
	}
	json.NewEncoder(w).Encode(links)
}

func (s *CZDSServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.downloadCalls.Add(1)

	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/czds/downloads/")
	tld, ok := strings.CutSuffix(name, ".zone")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	s.mu.Lock()
	content, exists := s.zones[tld]
	denied := s.denied[tld]
	broken := s.broken[tld]
	status := s.failing[tld]
	delay := s.stalled[tld]
	s.mu.Unlock()

	if !stall(r, delay) {
		return
	}

	switch {
	case status != 0:
		w.WriteHeader(status)
		return
	case denied:
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"message":"not authorized"}`)
		return
	case !exists:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-disposition", "attachment;filename="+s.FileName(tld))
	w.Header().Set("Content-Type", "application/x-gzip")

	if broken {
		w.Header().Set("Content-Length", fmt.Sprint(len(content)+1024))
		w.WriteHeader(http.StatusOK)
		w.Write(content)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		panic(http.ErrAbortHandler)
	}

	w.Header().Set("Content-Length", fmt.Sprint(len(content)))
	w.Write(content)
}

// stall waits for d. It returns false when the client went away first.
func stall(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.Context().Done():
		return false
	}
}
