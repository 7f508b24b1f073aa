// Package mockaddy provides a mock Addy.io API server for testing.
package mockaddy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Account mirrors the fields of GET /account-details the adapter reads.
type Account struct {
	ID                  string   `json:"id"`
	Username            string   `json:"username"`
	DefaultAliasDomain  string   `json:"default_alias_domain"`
	DefaultAliasFormat  string   `json:"default_alias_format"`
	ActiveSharedDomains []string `json:"active_shared_domains"`
}

// injectedError is a scheduled failure for matching requests.
type injectedError struct {
	path      string
	status    int
	message   string
	remaining int
}

// Server is a mock Addy.io API server. Routes live under /api/v1.
type Server struct {
	server  *httptest.Server
	handler http.Handler

	mu        sync.Mutex
	token     string
	account   Account
	domains   []map[string]any
	usernames []map[string]any
	aliases   []map[string]any
	requests  []string
	errs      []*injectedError
	nextAlias int
}

// New creates and starts a mock server accepting token "test-token".
func New() *Server {
	s := &Server{
		token: "test-token",
		account: Account{
			ID:                  "acc-1",
			Username:            "johndoe",
			DefaultAliasDomain:  "anonaddy.me",
			DefaultAliasFormat:  "random_characters",
			ActiveSharedDomains: []string{"anonaddy.me", "anonaddy.com"},
		},
	}

	r := chi.NewRouter()
	r.Use(s.record, s.inject, s.auth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/account-details", s.handleAccountDetails)
		r.Get("/domains", s.handleDomains)
		r.Get("/usernames", s.handleUsernames)
		r.Post("/aliases", s.handleCreateAlias)
	})

	s.handler = r
	s.server = httptest.NewServer(r)
	return s
}

// Handler returns the router, for serving the mock outside httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// URL returns the server root. Clients normalise it to /api/v1.
func (s *Server) URL() string {
	return s.server.URL
}

// Client returns an HTTP client bound to the server.
func (s *Server) Client() *http.Client {
	return s.server.Client()
}

// Close shuts the server down.
func (s *Server) Close() {
	s.server.Close()
}

// SetToken changes the accepted bearer token.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// SetAccount replaces the account details.
func (s *Server) SetAccount(account Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = account
}

// AddDomain registers a custom domain. catchAll is encoded as given; nil
// omits the field.
func (s *Server) AddDomain(domain string, catchAll any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := map[string]any{
		"id":     fmt.Sprintf("dom-%d", len(s.domains)+1),
		"domain": domain,
		"active": true,
	}
	if catchAll != nil {
		d["catch_all"] = catchAll
	}
	s.domains = append(s.domains, d)
}

// AddUsername registers an additional username. catchAll is encoded as
// given; nil omits the field.
func (s *Server) AddUsername(username string, catchAll any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := map[string]any{
		"id":       fmt.Sprintf("usr-%d", len(s.usernames)+1),
		"username": username,
		"active":   true,
	}
	if catchAll != nil {
		u["catch_all"] = catchAll
	}
	s.usernames = append(s.usernames, u)
}

// SetNextError makes the next count requests to path fail with status. An
// empty path matches any request; count <= 0 fails until Reset.
func (s *Server) SetNextError(path string, status int, message string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, &injectedError{path: path, status: status, message: message, remaining: count})
}

// Requests returns the paths requested so far, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountRequests returns how often path was requested.
func (s *Server) CountRequests(path string) int {
	n := 0
	for _, p := range s.Requests() {
		if p == path {
			n++
		}
	}
	return n
}

// Aliases returns the aliases created so far.
func (s *Server) Aliases() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.aliases...)
}

// Reset clears domains, usernames, aliases, requests and injected errors.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domains = nil
	s.usernames = nil
	s.aliases = nil
	s.requests = nil
	s.errs = nil
	s.nextAlias = 0
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, strings.TrimPrefix(r.URL.Path, "/api/v1"))
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/v1")

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
			writeJSON(w, hit.status, map[string]any{"message": hit.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAccountDetails(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	account := s.account
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": account})
}

func (s *Server) handleDomains(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	domains := append([]map[string]any{}, s.domains...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": domains})
}

func (s *Server) handleUsernames(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	usernames := append([]map[string]any{}, s.usernames...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": usernames})
}

func (s *Server) handleCreateAlias(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain      string `json:"domain"`
		Description string `json:"description"`
		Format      string `json:"format"`
		LocalPart   string `json:"local_part"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid JSON"})
		return
	}
	if req.Domain == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The domain field is required.",
			"errors":  map[string][]string{"domain": {"The domain field is required."}},
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	localPart := req.LocalPart
	if req.Format != "custom" || localPart == "" {
		s.nextAlias++
		localPart = fmt.Sprintf("gen%05d", s.nextAlias)
	}
	email := localPart + "@" + req.Domain
	for _, a := range s.aliases {
		if a["email"] == email {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"message": "The local part has already been taken.",
				"errors":  map[string][]string{"local_part": {"The local part has already been taken."}},
			})
			return
		}
	}

	alias := map[string]any{
		"id":          fmt.Sprintf("alias-%d", len(s.aliases)+1),
		"email":       email,
		"local_part":  localPart,
		"domain":      req.Domain,
		"description": req.Description,
		"format":      req.Format,
	}
	s.aliases = append(s.aliases, alias)
	writeJSON(w, http.StatusCreated, map[string]any{"data": alias})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck
	json.NewEncoder(w).Encode(v)
}
