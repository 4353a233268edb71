package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/coah80/vidfix/internal/config"
	xlog "github.com/coah80/vidfix/internal/log"
	"github.com/coah80/vidfix/internal/metrics"
	"github.com/coah80/vidfix/internal/middleware"
	"github.com/coah80/vidfix/internal/routes"
)

// NewRouter wires middleware and routes. Rate limiting applies to /api only.
func NewRouter(deps *routes.Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(xlog.Middleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders(config.IsProduction()))
	r.Use(middleware.LoadCORS())
	r.Use(metrics.Middleware)
	r.Use(chimw.GetHead)

	deps.CoreRoutes(r)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(config.RateLimitMax, config.RateLimitWindow))
		deps.ProcessRoutes(r)
	})
	routes.StaticRoutes(r)

	return r
}

func New(deps *routes.Deps) *http.Server {
	return &http.Server{
		Addr:              ":" + config.Port,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func PrintBanner() {
	fmt.Printf(`
  ┌──────────────────────────────────┐
  │         vidfix %s        │
  │     video container fixer        │
  └──────────────────────────────────┘
`, padVersion(config.Version))
}

func padVersion(v string) string {
	for len(v) < 10 {
		v += " "
	}
	return v
}
