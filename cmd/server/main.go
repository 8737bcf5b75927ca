package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/CodeRoom/internal/adapters/http"
	"github.com/dkeye/CodeRoom/internal/app"
	"github.com/dkeye/CodeRoom/internal/app/orch"
	"github.com/dkeye/CodeRoom/internal/app/sfu"
	"github.com/dkeye/CodeRoom/internal/config"
	"github.com/dkeye/CodeRoom/internal/runner"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Logger first so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	o := orch.New(
		app.NewRegistry(),
		app.NewRoomRegistry(cfg.DefaultCode, cfg.DefaultLanguage),
		app.SimplePolicy{},
		sfu.NewRelayManager(),
		cfg.QueueSize,
	)
	run := runner.New(cfg.Runner.URL, cfg.Runner.Timeout)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, o, run),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("CodeRoom server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
