package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/coah80/vidfix/internal/alerts"
	"github.com/coah80/vidfix/internal/config"
	xlog "github.com/coah80/vidfix/internal/log"
	"github.com/coah80/vidfix/internal/routes"
	"github.com/coah80/vidfix/internal/server"
	"github.com/coah80/vidfix/internal/services"
	"github.com/coah80/vidfix/internal/util"
)

const shutdownTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()
	config.Load()

	xlog.Configure(xlog.Config{
		Level:   config.LogLevel,
		Console: !config.IsProduction(),
		Version: config.Version,
	})
	logger := xlog.WithComponent("main")

	defer func() {
		if r := recover(); r != nil {
			logger.Fatal().Interface("panic", r).Msg("unrecoverable error")
		}
	}()

	if err := util.CheckDependencies(); err != nil {
		logger.Fatal().Err(err).Msg("missing dependencies")
	}
	if err := util.EnsureDirs(); err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare directories")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := services.NewScheduler()
	deps := &routes.Deps{
		Remuxer:     services.NewRemuxer(config.FFmpegPath, config.UploadDir, config.ProcessedDir),
		Cleanup:     scheduler,
		BaseContext: ctx,
	}

	srv := server.New(deps)
	srv.BaseContext = func(net.Listener) context.Context { return ctx }

	util.StartRetentionSweep(ctx, config.SweepInterval, config.OutputCleanupDelay)

	server.PrintBanner()
	logger.Info().
		Str("port", config.Port).
		Str("env", config.EnvMode).
		Str("uploads", config.UploadDir).
		Str("processed", config.ProcessedDir).
		Dur("input_cleanup", config.InputCleanupDelay).
		Dur("output_cleanup", config.OutputCleanupDelay).
		Msg("server starting")
	alerts.ServerStarted()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	alerts.ServerStopping()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	scheduler.Stop()

	logger.Info().Int("pid", os.Getpid()).Msg("server stopped")
}
