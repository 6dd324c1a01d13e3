// Command bot runs the donation tracker: the Discord bot, the scheduled
// season capture and clan sync jobs, and the read-only HTTP API.
//
// Usage:
//
//	donationbot
//	API_PORT=8080 LOG_LEVEL=debug donationbot

// @title Donation Tracker API
// @version 1.0.0
// @description Read-only API over seasonal Clash of Clans donation and achievement snapshots.
// @host localhost:8000
// @BasePath /
// @schemes http https
// @contact.name Donation Tracker
// @license.name MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/albapepper/donation-tracker/internal/api"
	"github.com/albapepper/donation-tracker/internal/bot"
	"github.com/albapepper/donation-tracker/internal/cache"
	"github.com/albapepper/donation-tracker/internal/capture"
	"github.com/albapepper/donation-tracker/internal/config"
	"github.com/albapepper/donation-tracker/internal/db"
	"github.com/albapepper/donation-tracker/internal/jobs"
	"github.com/albapepper/donation-tracker/internal/metrics"
	"github.com/albapepper/donation-tracker/internal/provider/coc"
	"github.com/albapepper/donation-tracker/internal/scheduler"
	"github.com/albapepper/donation-tracker/internal/store"

	_ "github.com/albapepper/donation-tracker/docs" // swagger docs
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, cfg.DatabaseURL, logger); err != nil {
			logger.Error("Failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	st := store.New(pool)
	m := metrics.New()

	appCache := cache.New(cfg.CacheEnabled)
	defer appCache.Close()
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	game := coc.NewClient(cfg.CoCBaseURL, cfg.CoCAPIToken, logger,
		coc.WithRequestsPerSecond(cfg.CoCRequestsPerSecond),
		coc.WithMaxRetries(cfg.CoCMaxRetries),
		coc.WithConcurrency(cfg.FetchConcurrency),
	)

	deps := &jobs.Deps{
		Store:   st,
		Players: game,
		Members: game,
		Capture: capture.Options{
			GroupSize:      cfg.CaptureGroupSize,
			Workers:        cfg.CaptureWorkers,
			IgnoreNotFound: cfg.CaptureIgnoreNotFound,
		},
		SyncWorkers: cfg.FetchConcurrency,
		Metrics:     m,
		Logger:      logger,
		Invalidate:  func() { appCache.InvalidatePrefix("") },
	}

	sched, err := scheduler.New([]scheduler.Job{
		{
			Name: "season",
			Spec: cfg.RolloverCron,
			Run: func(ctx context.Context) error {
				res, err := jobs.SeasonTick(ctx, deps)
				if res.Capture != nil {
					logger.Info("Season tick finished", "summary", res.Capture.Summary())
				}
				return err
			},
		},
		{
			Name: "clan-sync",
			Spec: cfg.ClanSyncCron,
			Run: func(ctx context.Context) error {
				res, ok, err := jobs.SyncTick(ctx, deps)
				if ok {
					logger.Info("Clan sync finished", "summary", res.Summary())
				}
				return err
			},
		},
	}, true, logger)
	if err != nil {
		logger.Error("Invalid schedule", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()

	// Discord is optional so the API and jobs can run headless.
	var discord *bot.Bot
	if cfg.DiscordToken != "" {
		discord, err = bot.New(cfg.DiscordToken, cfg.DiscordGuildID, st, game, appCache, logger)
		if err == nil {
			err = discord.Start(ctx)
		}
		if err != nil {
			logger.Error("Failed to start Discord bot", "error", err)
			os.Exit(1)
		}
		logger.Info("Discord bot started", "guild_id", cfg.DiscordGuildID)
	} else {
		logger.Info("Discord bot disabled (no DISCORD_TOKEN)")
	}

	router := api.NewRouter(st, appCache, m, cfg, logger)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting Donation Tracker API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	if discord != nil {
		if err := discord.Stop(); err != nil {
			logger.Error("Discord close error", "error", err)
		}
	}
	wg.Wait()
	logger.Info("Stopped")
}
