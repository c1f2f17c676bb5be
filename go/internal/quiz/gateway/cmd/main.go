package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizsync/go/internal/logger"
	"github.com/mcdev12/quizsync/go/internal/quiz/client"
	"github.com/mcdev12/quizsync/go/internal/quiz/config"
	"github.com/mcdev12/quizsync/go/internal/quiz/gateway"
)

func main() {
	cfg := config.Load()
	log.Logger = logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := cfg.OpenStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}
	defer st.Close()

	supplier, closeSupplier, err := cfg.OpenSupplier(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open question supplier")
	}
	defer closeSupplier()

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.Port = cfg.Port
	gatewayConfig.AllowedOrigins = cfg.AllowedOrigins
	gatewayConfig.JWTSecret = cfg.JWTSecret
	gatewayConfig.Clients = client.Config{
		Store:            st,
		Supplier:         supplier,
		Clock:            clockwork.NewRealClock(),
		RevealGrace:      cfg.RevealGrace,
		PointsPerCorrect: cfg.PointsPerCorrect,
		Logger:           log.Logger,
	}

	gatewayService, err := gateway.NewService(gatewayConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}
	server := gatewayService.NewServer()

	log.Info().
		Str("store", cfg.Store).
		Str("questions", cfg.QuestionSource).
		Str("port", cfg.Port).
		Msg("starting quiz gateway")

	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Hijacked WebSocket connections are not closed by Shutdown.
	cancel()
	if err := gatewayService.Stop(); err != nil {
		log.Error().Err(err).Msg("gateway stop failed")
	}

	log.Info().Msg("quiz gateway shutdown complete")
}
