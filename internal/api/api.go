// Package api serves the daemon's loopback HTTP API used by the extension
// UI and background script.
package api

import (
	"context"
	"log/slog"

	"github.com/sipico/alias-relay/internal/license"
	"github.com/sipico/alias-relay/internal/orchestrator"
	"github.com/sipico/alias-relay/internal/provider"
	"github.com/sipico/alias-relay/internal/settings"
)

// Pinger reports storage health for /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the API.
type Handler struct {
	registry     *provider.Registry
	settings     *settings.Store
	orchestrator *orchestrator.Orchestrator
	license      *license.Validator
	pinger       Pinger

	// tokenHash is the bcrypt hash of the access token.
	tokenHash string

	logger   *slog.Logger
	logLevel *slog.LevelVar
}

// Option configures a Handler.
type Option func(*Handler)

// WithLicense enables the /v1/license endpoints.
func WithLicense(v *license.Validator) Option {
	return func(h *Handler) {
		h.license = v
	}
}

// WithPinger sets the storage health check used by /ready.
func WithPinger(p Pinger) Option {
	return func(h *Handler) {
		h.pinger = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithLogLevel lets POST /v1/loglevel change the level at runtime.
func WithLogLevel(level *slog.LevelVar) Option {
	return func(h *Handler) {
		h.logLevel = level
	}
}

// NewHandler creates an API handler. tokenHash is the bcrypt hash of the
// bearer token clients must present.
func NewHandler(registry *provider.Registry, store *settings.Store, orch *orchestrator.Orchestrator, tokenHash string, opts ...Option) *Handler {
	h := &Handler{
		registry:     registry,
		settings:     store,
		orchestrator: orch,
		tokenHash:    tokenHash,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logLevel == nil {
		h.logLevel = new(slog.LevelVar)
	}
	return h
}
