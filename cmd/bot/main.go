package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	adminwizard "github.com/mishalinitiative/quizbot/internal/admin"
	"github.com/mishalinitiative/quizbot/internal/bot"
	"github.com/mishalinitiative/quizbot/internal/config"
	"github.com/mishalinitiative/quizbot/internal/content"
	"github.com/mishalinitiative/quizbot/internal/database"
	"github.com/mishalinitiative/quizbot/internal/flow"
	"github.com/mishalinitiative/quizbot/internal/handler"
	"github.com/mishalinitiative/quizbot/internal/logger"
	"github.com/mishalinitiative/quizbot/internal/messenger"
	"github.com/mishalinitiative/quizbot/internal/middleware"
	"github.com/mishalinitiative/quizbot/internal/repository"
	"github.com/mishalinitiative/quizbot/internal/router"
	"github.com/mishalinitiative/quizbot/internal/service"
	"github.com/mishalinitiative/quizbot/internal/tableloader"
	"github.com/mishalinitiative/quizbot/internal/validator"
	"github.com/mishalinitiative/quizbot/internal/worker"
)

func main() {
	cfg := config.Load()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("dashboard_port", cfg.DashboardPort).
		Str("data_dir", cfg.DataDir).
		Str("log_level", cfg.LogLevel).
		Msg("Starting quizbot")

	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// Repositories.
	progressRepo := repository.NewProgressRepository(pool)
	scoreRepo := repository.NewScoreRepository(pool)
	badgeRepo := repository.NewBadgeRepository(pool)
	statRepo := repository.NewStatisticRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	menuRepo := repository.NewMenuRepository(pool)
	settingRepo := repository.NewSettingRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)
	legacyRepo := repository.NewLegacyRepository(pool)

	// Transport and content.
	tg := messenger.NewTelegramClient(cfg.BotToken, cfg.ChannelID, log)
	tables := tableloader.NewCSVLoader(log)
	loader := content.NewLoader(examRepo, tables, tg, cfg.DataDir, log)
	phrases := content.LoadPhrases(cfg.DataDir, tables, log)

	// Services.
	progressService := service.NewProgressService(progressRepo, scoreRepo, badgeRepo, legacyRepo, rdb, log)
	authService := service.NewAuthService(cfg, adminRepo)
	statsService := service.NewStatsService(statRepo, progressRepo, examRepo, rdb, log)
	menuService := service.NewMenuService(menuRepo, settingRepo, examRepo, cfg.DataDir, log)

	// Bot flow.
	machine := flow.NewMachine(tg, progressService, loader, phrases, log)
	wizard := adminwizard.NewWizard(rdb, examRepo, loader, tg, log)
	dispatcher := bot.NewDispatcher(tg, tg, machine, wizard, menuService, progressService, loader, examRepo,
		cfg.AdminUserID, cfg.ChannelID, log)

	// Background workers.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	statisticWorker := worker.NewStatisticWorker(statRepo, rdb, log)
	go statisticWorker.Start(workerCtx)

	botCtx, botCancel := context.WithCancel(context.Background())
	go dispatcher.Run(botCtx)

	// Dashboard HTTP server.
	handlers := &router.Handlers{
		Auth:      handler.NewAuthHandler(authService),
		Dashboard: handler.NewDashboardHandler(statsService),
		ExamAdmin: handler.NewExamAdminHandler(examRepo, loader),
		System:    handler.NewSystemHandler(pool, rdb, log),
		WS:        handler.NewWSHandler(rdb, log, cfg.AllowedOrigins),
	}
	loginLimiter := middleware.NewLoginRateLimiter(rdb, 30, time.Minute, log)
	r := router.SetupRouter(authService, loginLimiter, handlers, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.DashboardPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Dashboard listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Dashboard server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop pulling updates and let in-flight actions finish.
	botCancel()

	// 2. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
