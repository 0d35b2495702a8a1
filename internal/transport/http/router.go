package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/portfolio-contact/internal/logger"
	"github.com/portfolio-contact/internal/transport/http/handler"
	appmiddleware "github.com/portfolio-contact/internal/transport/http/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds and returns the application router.
func NewRouter(deps *Deps) http.Handler {
	log := logger.OrNop(deps.Logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.RequestLogger(log))
	r.Use(appmiddleware.Recoverer(log))
	r.Use(appmiddleware.Metrics(deps.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	healthH := handler.NewHealthHandler(deps.Health)
	verificationH := handler.NewVerificationHandler(deps.Verification)
	contactH := handler.NewContactHandler(deps.Contact)

	if deps.Health != nil {
		r.Get("/live", deps.Health.LiveEndpoint)
		r.Get("/ready", deps.Health.ReadyEndpoint)
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)

		r.Route("/contact", func(r chi.Router) {
			r.Get("/verification/status", verificationH.Status)
			r.Post("/verification/{action}", verificationH.Action)
			r.Post("/messages", contactH.Submit)
		})
	})

	return r
}
