// Package dashboard serves the read-only HTTP API over the snapshot store.
package dashboard

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Server wraps the HTTP server hosting the dashboard API.
type Server struct {
	httpServer *http.Server
}

// NewServer creates the dashboard server on addr with all API routes
// registered.
func NewServer(addr string, handlers *Handlers) *Server {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/makes-models", handlers.GetMakesModels)
		r.Get("/vehicles/{make}/{model}", handlers.GetVehicles)
		r.Get("/analysis/{make}/{model}", handlers.GetAnalysis)
		r.Get("/stats/{make}/{model}", handlers.GetStats)
		r.Get("/price-history/{make}/{model}", handlers.GetPriceHistory)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: r,
		},
	}
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
