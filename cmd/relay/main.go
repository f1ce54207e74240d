package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/adapters/relay"
	"github.com/connectra/meeting-client/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	var policy relay.Policy = relay.SimplePolicy{}
	if cfg.Relay.Policy == "drop" {
		policy = relay.DropPolicy{}
	}
	hub := relay.NewHub(policy, relay.NewRateLimiter(cfg.Relay.PublishLimit, cfg.Relay.PublishInterval))

	r := relay.SetupRouter(ctx, relay.RouterConfig{
		Mode:   cfg.Mode,
		Secret: cfg.Relay.Secret,
		WS: relay.WSOptions{
			ReadLimit:  cfg.Relay.ReadLimit,
			PingPeriod: cfg.Relay.PingPeriod,
			SendBuffer: cfg.Relay.SendBuffer,
		},
	}, hub)

	srv := &http.Server{
		Addr:    cfg.Relay.Listen,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", cfg.Relay.Listen).Msg("relay started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
