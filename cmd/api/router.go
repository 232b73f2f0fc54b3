package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/FACorreiaa/statement-reconciler/pkg/config"
)

// RouterConfig carries what the router needs beyond the handlers.
type RouterConfig struct {
	Server         config.ServerConfig
	MetricsEnabled bool
	Metrics        http.Handler
}

// NewRouter mounts every handler under /api/v1. Upload routes are rate
// limited per client address.
func NewRouter(d *Dependencies, cfg RouterConfig) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(d.Logger))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.MetricsEnabled && cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics)
	}

	uploads := newRateLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/import", func(r chi.Router) {
			r.Use(uploads.Middleware)
			d.ImportHandler.Routes(r)
		})

		r.Route("/transactions", func(r chi.Router) {
			d.CategorizationHandler.TransactionRoutes(r)
			d.PostingHandler.Routes(r)
		})

		r.Route("/categorization", d.CategorizationHandler.Routes)
	})

	return cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler(router)
}
