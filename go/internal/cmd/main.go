package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/roundkeeper/go/internal/roundconfig"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	settings, err := loadSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid settings")
	}
	if err := setupLogging(settings, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("invalid logging settings")
	}

	roundCfg, err := roundconfig.Load(settings.RoundConfigDir, settings.Network)
	if err != nil {
		log.Fatal().Err(err).Str("network", settings.Network).Msg("failed to load round config")
	}
	log.Info().
		Str("network", roundCfg.Network).
		Str("config", roundCfg.Path).
		Time("game_start", roundCfg.Window.Start).
		Time("game_end", roundCfg.Window.End).
		Dur("refresh_interval", roundCfg.RefreshInterval).
		Msg("loaded round config")

	// signal-aware context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := setupServices(ctx, settings, *roundCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer svc.Close()

	go svc.Stream.Start(ctx)

	server := setupServer(settings, svc)
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if err := svc.Scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start round scheduler")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server exited unexpectedly")
	}

	// no round action runs past this point
	svc.Scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("graceful shutdown complete")
}
