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
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/resendio/resend/go/internal/config"
	"github.com/resendio/resend/go/internal/gateway"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Cooldown.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	store, closeStore, err := setupStore(ctx, cfg, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up marker store")
	}
	if closeStore != nil {
		defer closeStore()
	}

	worker, closeWorker, err := setupWorker(ctx, cfg, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up delivery worker")
	}
	if closeWorker != nil {
		defer closeWorker()
	}

	srv := gateway.NewServer(cfg, store, worker, clock)
	httpSrv := srv.HTTPServer()

	go func() {
		log.Info().
			Str("addr", httpSrv.Addr).
			Str("storage", cfg.Storage.Mode).
			Str("delivery", cfg.Delivery.Mode).
			Int("cooldown_seconds", cfg.Cooldown.PeriodSeconds).
			Msg("resend gateway listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	srv.Registry().CloseAll()
	log.Info().Msg("shutdown complete")
}
