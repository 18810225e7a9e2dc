package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter mounts the public claim link and the /api/v1 surface.
// Only the endpoints that consume a claim token are rate limited.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(
		s.requestIDMiddleware,
		s.loggingMiddleware,
		s.recoveryMiddleware,
		s.bodySizeLimitMiddleware,
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	throttled := r.With(s.rateLimitMiddleware)
	throttled.Get("/claim", s.handleClaimLink)

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Get("/health", s.handleHealth)

		v1.Post("/tokens", s.handleIssue)
		v1.With(s.rateLimitMiddleware).Post("/tokens/validate", s.handleValidate)

		v1.Get("/devices", s.handleListDevices)
		v1.Post("/devices", s.handleRegister)

		v1.With(s.rateLimitMiddleware).Post("/claim", s.handleClaim)
	})

	return r
}
