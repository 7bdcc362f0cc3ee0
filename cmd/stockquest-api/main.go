package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockquest/internal/api"
	"stockquest/internal/config"
	"stockquest/internal/db"
	"stockquest/internal/game"
	"stockquest/internal/logging"
	"stockquest/internal/results"
	"stockquest/internal/rewards"
	"stockquest/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	dataset, err := game.LoadDataset()
	if err != nil {
		logger.Fatal().Err(err).Msg("load catalog")
	}

	registry := session.NewRegistry(dataset, session.Config{
		DefaultRounds: cfg.DefaultRounds,
		MaxRounds:     cfg.MaxRounds,
		TTL:           cfg.SessionTTL,
	}, logger.With().Str("component", "sessions").Logger())
	deps := api.Deps{Games: registry}

	var recorder api.Recorder
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("db connect failed")
		}
		defer pool.Close()

		store := results.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("results schema")
		}
		deps.Leaderboard = store
		recorder = store
	} else {
		logger.Warn().Msg("DATABASE_URL not set, results and leaderboard disabled")
	}

	var poster api.RewardPoster
	if cfg.RewardsURL != "" {
		poster = rewards.NewClient(cfg.RewardsURL, cfg.RewardsToken)
	} else {
		logger.Info().Msg("SQ_REWARDS_URL not set, rewards disabled")
	}
	registry.OnComplete(api.CompletionHook(logger, recorder, poster, cfg.SuccessReward))

	go registry.RunJanitor(ctx, cfg.JanitorEvery)

	server := api.New(cfg, logger, deps)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("addr", cfg.Addr).
		Int("stocks", len(dataset.Instruments)).
		Int("default_rounds", cfg.DefaultRounds).
		Msg("stockquest api listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}
