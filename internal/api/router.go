package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sipico/alias-relay/internal/metrics"
	"github.com/sipico/alias-relay/internal/middleware"
)

// maxBodyBytes caps API request bodies.
const maxBodyBytes = 64 << 10

// NewRouter creates the API router.
func (h *Handler) NewRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.LoopbackOnly(h.logger))
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	r.Use(metrics.Middleware)
	r.Use(middleware.HTTPLogging(h.logger, nil))

	// Public endpoints (no auth)
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.TokenAuthMiddleware)

		r.Post("/loglevel", h.HandleSetLogLevel)

		r.Get("/providers", h.HandleListProviders)
		r.Route("/providers/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGetProvider)
			r.Put("/", h.HandleUpdateProvider)
			r.Delete("/", h.HandleDeleteProvider)
			r.Post("/verify", h.HandleVerifyProvider)
			r.Get("/domains", h.HandleDomains)
			r.Get("/domains/{domain}/catch-all", h.HandleCatchAll)
			r.Delete("/cache", h.HandleInvalidateCache)
			r.Get("/mode", h.HandleMode)
		})
		r.Put("/active-provider", h.HandleSetActiveProvider)

		r.Post("/alias/preview", h.HandlePreview)
		r.Post("/alias", h.HandleCreateAlias)

		if h.license != nil {
			r.Get("/license", h.HandleGetLicense)
			r.Post("/license", h.HandleActivateLicense)
			r.Delete("/license", h.HandleDeleteLicense)
		}
	})

	return r
}
