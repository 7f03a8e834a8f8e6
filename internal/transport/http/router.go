package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"live-assessment-service/internal/app"
)

// NewRouter wires the REST, websocket and operational endpoints.
func NewRouter(gateway *app.Gateway, pushInterval time.Duration) http.Handler {
	sessions := NewSessionHandler(gateway)
	ws := NewWSHandler(gateway, pushInterval)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", sessions.CreateSession)
		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", sessions.Snapshot)
			r.Post("/join", sessions.Join)
			r.Post("/submissions", sessions.Submit)
			r.Post("/commands/{command}", sessions.Command)
		})
	})
	r.Get("/ws/sessions/{code}", ws.ServeWS)
	return r
}
