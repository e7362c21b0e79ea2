package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/mallbridge/mallbridge/internal/adapter/ai"
	"github.com/mallbridge/mallbridge/internal/adapter/cafe24"
	"github.com/mallbridge/mallbridge/internal/adapter/store"
	"github.com/mallbridge/mallbridge/internal/domain"
	"github.com/mallbridge/mallbridge/internal/handler"
	"github.com/mallbridge/mallbridge/internal/middleware"
	"github.com/mallbridge/mallbridge/internal/service"
	"github.com/mallbridge/mallbridge/pkg/config"

	_ "github.com/lib/pq"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting MallBridge",
		"port", cfg.Port,
		"refresh_buffer_min", cfg.RefreshBufferMinutes,
		"scheduler_autostart", cfg.SchedulerAutostart,
	)

	// ── Database ─────────────────────────────────────────────────────────
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	// ── Adapters ─────────────────────────────────────────────────────────
	issuer := cafe24.NewIssuer(cfg.Cafe24ClientID, cfg.Cafe24ClientSecret)

	aiProvider := ai.NewOpenAIProvider(ai.OpenAIConfig{
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
	})

	// ── Services ─────────────────────────────────────────────────────────
	tokenService := service.NewTokenService(pgStore, cfg.Cafe24ClientID, cfg.RefreshBuffer())
	mallRegistry := cafe24.NewRegistry(issuer, tokenService, cfg.RefreshBuffer())
	authService := service.NewAuthService(issuer, tokenService, cfg.Cafe24RedirectBase, cfg.Cafe24Scope)
	replyService := service.NewReplyService(mallRegistry, aiProvider)

	schedulerCfg := domain.DefaultSchedulerConfig()
	schedulerCfg.Interval = cfg.SchedulerInterval()
	schedulerCfg.RefreshBuffer = cfg.RefreshBuffer()
	schedulerCfg.NotificationThreshold = time.Duration(cfg.NotificationThresholdMinutes) * time.Minute
	schedulerCfg.MaxRetryAttempts = cfg.RetryMaxAttempts
	schedulerCfg.RetryDelay = cfg.RetryDelay()
	scheduler := service.NewScheduler(schedulerCfg, tokenService, mallRegistry, pgStore)

	if cfg.SchedulerAutostart {
		scheduler.Start()
	}

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	// Audit middleware (logs all requests)
	app.Use(middleware.AuditMiddleware(pgStore))

	// ── Routes ───────────────────────────────────────────────────────────
	authHandler := handler.NewAuthHandler(authService, cfg.FrontendURL)
	authHandler.Register(app)

	tokenHandler := handler.NewTokenHandler(tokenService, mallRegistry)
	tokenHandler.Register(app)

	schedulerHandler := handler.NewSchedulerHandler(scheduler, cfg.LogRetentionDays)
	schedulerHandler.Register(app)

	boardHandler := handler.NewBoardHandler(mallRegistry, replyService)
	boardHandler.Register(app)

	// Health check
	app.Get("/api/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": "1.0.0",
		})
	})

	// ── Graceful shutdown ────────────────────────────────────────────────
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		slog.Info("shutting down")
		scheduler.Stop()
		if err := app.Shutdown(); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	scheduler.Stop()
}
