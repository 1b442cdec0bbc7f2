package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/brokerauth-go/internal/api"
	"github.com/MahdiBaghbani/brokerauth-go/internal/appctx"
)

// setupRoutes creates the chi router with the broker decision
// endpoints and the health probe.
//
// Middleware order matters: RequestID first so the request logger can
// pick it up, then the request logger so the recovery and timeout
// layers log through the request-scoped logger.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLoggerMiddleware)
	r.Use(s.recoverDenyMiddleware)
	r.Use(s.timeoutMiddleware)

	r.Post("/user", s.brokerHandler.User)
	r.Post("/vhost", s.brokerHandler.Vhost)
	r.Post("/resource", s.brokerHandler.Resource)
	r.Post("/topic", s.brokerHandler.Topic)

	r.Get("/healthz", api.HealthHandler)

	// A misconfigured broker pointing at the wrong path or method
	// still gets a safe verdict.
	r.NotFound(s.denyUnrouted("unknown path"))
	r.MethodNotAllowed(s.denyUnrouted("method not allowed"))

	return r
}

// denyUnrouted answers deny for requests outside the contract.
func (s *Server) denyUnrouted(detail string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appctx.Logger(r.Context()).Warn("request denied",
			"kind", "malformed_request",
			"detail", detail,
			"method", r.Method,
			"path", r.URL.Path,
		)
		api.WriteDeny(w)
	}
}
