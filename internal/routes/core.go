package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coah80/vidfix/internal/config"
	"github.com/coah80/vidfix/internal/metrics"
	"github.com/coah80/vidfix/internal/services"
)

// Remuxer runs the container fix for one job.
type Remuxer interface {
	Remux(ctx context.Context, input, output string, onProgress func(services.Progress)) (services.Result, error)
}

// Cleanup defers artifact deletion.
type Cleanup interface {
	Schedule(kind, root, path string, delay time.Duration)
	Pending() int
}

// Deps carries the long-lived collaborators of the HTTP handlers.
type Deps struct {
	Remuxer Remuxer
	Cleanup Cleanup

	// BaseContext bounds remux runs. It outlives any single request and is
	// cancelled on shutdown. Nil means context.Background.
	BaseContext context.Context
}

func (d *Deps) CoreRoutes(r chi.Router) {
	r.Get("/health", d.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
}

func (d *Deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	pending := 0
	if d.Cleanup != nil {
		pending = d.Cleanup.Pending()
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"version":         config.Version,
		"pendingCleanups": pending,
	})
}
