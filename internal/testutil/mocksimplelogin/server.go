// Package mocksimplelogin provides a mock SimpleLogin API server for testing.
package mocksimplelogin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Suffix is an alias suffix offered by /v5/alias/options.
type Suffix struct {
	Suffix       string `json:"suffix"`
	SignedSuffix string `json:"signed_suffix"`
	IsCustom     bool   `json:"is_custom"`
	IsPremium    bool   `json:"is_premium"`
}

// Mailbox is a mailbox returned by /v2/mailboxes.
type Mailbox struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Default  bool   `json:"default"`
	Verified bool   `json:"verified"`
}

// CreatedAlias records one creation request.
type CreatedAlias struct {
	Endpoint     string
	Email        string
	Prefix       string
	SignedSuffix string
	MailboxIDs   []int64
	Note         string
	Hostname     string
}

type injectedError struct {
	path      string
	status    int
	message   string
	remaining int
}

// Server is a mock SimpleLogin API server. Routes live under /api.
type Server struct {
	server  *httptest.Server
	handler http.Handler

	mu        sync.Mutex
	apiKey    string
	canCreate bool
	v3Enabled bool
	domains   []map[string]any
	suffixes  []Suffix
	mailboxes []Mailbox
	aliases   []CreatedAlias
	requests  []string
	errs      []*injectedError
}

// New creates and starts a mock server accepting API key "test-key", with
// one shared suffix and one default mailbox.
func New() *Server {
	s := &Server{
		apiKey:    "test-key",
		canCreate: true,
		v3Enabled: true,
		suffixes: []Suffix{
			{Suffix: ".brisk@simplelogin.com", SignedSuffix: ".brisk@simplelogin.com.sig1"},
		},
		mailboxes: []Mailbox{
			{ID: 7, Email: "secondary@example.org", Verified: true},
			{ID: 3, Email: "me@example.org", Default: true, Verified: true},
		},
	}

	r := chi.NewRouter()
	r.Use(s.record, s.inject, s.auth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/user_info", s.handleUserInfo)
		r.Get("/custom_domains", s.handleCustomDomains)
		r.Get("/v5/alias/options", s.handleAliasOptions)
		r.Get("/v2/mailboxes", s.handleMailboxes)
		r.Post("/v3/alias/custom/new", s.handleCreateV3)
		r.Post("/v2/alias/custom/new", s.handleCreateV2)
	})

	s.handler = r
	s.server = httptest.NewServer(r)
	return s
}

// Handler returns the router, for serving the mock outside httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// URL returns the API base URL (ending in /api).
func (s *Server) URL() string {
	return s.server.URL + "/api"
}

// Client returns an HTTP client bound to the server.
func (s *Server) Client() *http.Client {
	return s.server.Client()
}

// Close shuts the server down.
func (s *Server) Close() {
	s.server.Close()
}

// AddCustomDomain registers a custom domain and offers "@domain" as a suffix
// when verified.
func (s *Server) AddCustomDomain(domain string, verified bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domains = append(s.domains, map[string]any{
		"id":          len(s.domains) + 1,
		"domain_name": domain,
		"is_verified": verified,
	})
	if verified {
		s.suffixes = append(s.suffixes, Suffix{
			Suffix:       "@" + domain,
			SignedSuffix: "@" + domain + ".sig",
			IsCustom:     true,
		})
	}
}

// SetSuffixes replaces the offered suffixes.
func (s *Server) SetSuffixes(suffixes []Suffix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suffixes = suffixes
}

// SetMailboxes replaces the mailboxes.
func (s *Server) SetMailboxes(mailboxes []Mailbox) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mailboxes = mailboxes
}

// SetCanCreate toggles the account quota flag.
func (s *Server) SetCanCreate(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canCreate = v
}

// DisableV3 makes the v3 creation endpoint answer 405, as older self-hosted
// instances do.
func (s *Server) DisableV3() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v3Enabled = false
}

// SetNextError makes the next count requests to path (relative to /api) fail
// with status. An empty path matches any request; count <= 0 fails forever.
func (s *Server) SetNextError(path string, status int, message string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, &injectedError{path: path, status: status, message: message, remaining: count})
}

// Aliases returns every alias created so far.
func (s *Server) Aliases() []CreatedAlias {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CreatedAlias(nil), s.aliases...)
}

// Requests returns the paths requested so far, relative to /api.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, strings.TrimPrefix(r.URL.Path, "/api"))
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api")

		s.mu.Lock()
		var hit *injectedError
		for i, e := range s.errs {
			if e.path != "" && e.path != path {
				continue
			}
			hit = e
			if e.remaining > 0 {
				e.remaining--
				if e.remaining == 0 {
					s.errs = append(s.errs[:i], s.errs[i+1:]...)
				}
			}
			break
		}
		s.mu.Unlock()

		if hit != nil {
			writeJSON(w, hit.status, map[string]any{"error": hit.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		key := s.apiKey
		s.mu.Unlock()

		if r.Header.Get("Authentication") != key {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Wrong api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleUserInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       "Jane",
		"email":      "me@example.org",
		"is_premium": true,
	})
}

func (s *Server) handleCustomDomains(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	domains := append([]map[string]any{}, s.domains...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, domains)
}

func (s *Server) handleAliasOptions(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"can_create":        s.canCreate,
		"prefix_suggestion": "site",
		"suffixes":          append([]Suffix{}, s.suffixes...),
	})
}

func (s *Server) handleMailboxes(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"mailboxes": append([]Mailbox{}, s.mailboxes...)})
}

func (s *Server) handleCreateV3(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	enabled := s.v3Enabled
	s.mu.Unlock()
	if !enabled {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	var req struct {
		AliasPrefix  string  `json:"alias_prefix"`
		SignedSuffix string  `json:"signed_suffix"`
		MailboxIDs   []int64 `json:"mailbox_ids"`
		Note         string  `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON"})
		return
	}
	s.create(w, CreatedAlias{
		Endpoint:     "v3",
		Prefix:       req.AliasPrefix,
		SignedSuffix: req.SignedSuffix,
		MailboxIDs:   req.MailboxIDs,
		Note:         req.Note,
		Hostname:     r.URL.Query().Get("hostname"),
	})
}

func (s *Server) handleCreateV2(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AliasPrefix  string `json:"alias_prefix"`
		SignedSuffix string `json:"signed_suffix"`
		MailboxID    int64  `json:"mailbox_id"`
		Note         string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON"})
		return
	}
	s.create(w, CreatedAlias{
		Endpoint:     "v2",
		Prefix:       req.AliasPrefix,
		SignedSuffix: req.SignedSuffix,
		MailboxIDs:   []int64{req.MailboxID},
		Note:         req.Note,
		Hostname:     r.URL.Query().Get("hostname"),
	})
}

func (s *Server) create(w http.ResponseWriter, alias CreatedAlias) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var suffix string
	for _, sfx := range s.suffixes {
		if sfx.SignedSuffix == alias.SignedSuffix {
			suffix = sfx.Suffix
		}
	}
	if suffix == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid signed suffix"})
		return
	}

	alias.Email = alias.Prefix + suffix
	for _, a := range s.aliases {
		if a.Email == alias.Email {
			writeJSON(w, http.StatusConflict, map[string]any{"error": fmt.Sprintf("%s already exists", alias.Email)})
			return
		}
	}
	s.aliases = append(s.aliases, alias)
	writeJSON(w, http.StatusCreated, map[string]any{"id": len(s.aliases), "email": alias.Email})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck
	json.NewEncoder(w).Encode(v)
}
