package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/coah80/vidfix/internal/alerts"
	"github.com/coah80/vidfix/internal/config"
	xlog "github.com/coah80/vidfix/internal/log"
	"github.com/coah80/vidfix/internal/metrics"
	"github.com/coah80/vidfix/internal/util"
)

func (d *Deps) ProcessRoutes(r chi.Router) {
	r.Post("/process-video", d.handleProcessVideo)
}

func (d *Deps) handleProcessVideo(w http.ResponseWriter, r *http.Request) {
	up, err := receiveUpload(w, r)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(uploadResult(err)).Inc()
		logger := xlog.FromContext(r.Context())
		ev := logger.Warn()
		if util.StatusFor(err) >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Err(err).
			Str(xlog.FieldFilename, up.Filename).
			Int64(xlog.FieldSize, up.Size).
			Msg("upload rejected")
		respondError(w, err)
		return
	}
	paths := up.Paths
	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	metrics.UploadBytes.Observe(float64(up.Size))

	ctx := xlog.WithJobID(r.Context(), paths.ID)
	logger := zerolog.Ctx(ctx)
	logger.Info().
		Str(xlog.FieldFilename, paths.Name).
		Int64(xlog.FieldSize, up.Size).
		Msg("processing video")

	remuxCtx, cancel := d.remuxContext(ctx)
	defer cancel()

	res, err := d.Remuxer.Remux(remuxCtx, paths.Input, paths.Output, nil)
	if err != nil {
		logger.Error().Err(err).
			Str(xlog.FieldFilename, paths.Name).
			Int64(xlog.FieldSize, up.Size).
			Msg("error processing video")
		alerts.TranscodeFailed(paths.ID, paths.Name, err)
		respondError(w, err)
		d.Cleanup.Schedule("input", config.UploadDir, paths.Input, config.InputCleanupDelay)
		return
	}

	logger.Info().
		Int64(xlog.FieldSize, res.Size).
		Dur("elapsed", res.Elapsed).
		Msg("video processed")

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "Video processed successfully",
		"videoUrl": paths.URL(),
	})

	d.Cleanup.Schedule("input", config.UploadDir, paths.Input, config.InputCleanupDelay)
	d.Cleanup.Schedule("output", config.ProcessedDir, paths.Output, config.OutputCleanupDelay)
}

// remuxContext keeps the request's values but not its cancellation, so a
// client that disconnects mid-remux does not kill ffmpeg. Shutdown of the
// base context still does.
func (d *Deps) remuxContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := d.BaseContext
	if base == nil {
		base = context.Background()
	}
	rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(base, cancel)
	return rctx, func() {
		stop()
		cancel()
	}
}

func uploadResult(err error) string {
	switch {
	case errors.Is(err, util.ErrOversizeUpload):
		return "oversize"
	case util.StatusFor(err) == http.StatusBadRequest:
		return "rejected"
	default:
		return "error"
	}
}
