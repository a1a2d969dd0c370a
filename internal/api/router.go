package api

import (
	"net/http"

	mw "github.com/centaurhq/centaur/internal/api/middleware"
	"github.com/centaurhq/centaur/internal/api/response"
	"github.com/go-chi/chi/v5"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	// FailureCapture is the ingestion middleware; it observes every route
	// below it, including the dashboard itself.
	FailureCapture func(http.Handler) http.Handler

	HealthHandler       http.HandlerFunc
	ListErrorsHandler   http.HandlerFunc
	GetErrorHandler     http.HandlerFunc
	ResolveErrorHandler http.HandlerFunc
	TriggerSweepHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware. Recovery sits outside FailureCapture so a logged
	// panic still turns into a clean 500 for the client.
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	if deps.FailureCapture != nil {
		r.Use(deps.FailureCapture)
	}

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/errors", orNotImplemented(deps.ListErrorsHandler))
		r.Get("/api/v1/errors/{errorID}", orNotImplemented(deps.GetErrorHandler))
		r.Patch("/api/v1/errors/{errorID}", orNotImplemented(deps.ResolveErrorHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/sweep", orNotImplemented(deps.TriggerSweepHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
