package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/levensailor/calndr-go/internal/auth"
	"github.com/levensailor/calndr-go/internal/config"
	"github.com/levensailor/calndr-go/internal/custody"
	"github.com/levensailor/calndr-go/internal/database"
	"github.com/levensailor/calndr-go/internal/handlers"
	"github.com/levensailor/calndr-go/internal/jobs"
	"github.com/levensailor/calndr-go/internal/middleware"
	"github.com/levensailor/calndr-go/internal/notify"
	"github.com/levensailor/calndr-go/internal/repository"
)

var Version = "dev"

func main() {
	cfg, err := config.Load(os.Getenv("CALNDR_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	if cfg.UsingDefaultSecret() {
		logger.Warn("Running with the built-in JWT secret; set CALNDR_JWT_SECRET before going to production")
	}

	// Database pool + schema bootstrap
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.New(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	err = db.EnsureSchema(ctx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to apply database schema: %v", err)
	}

	families := repository.NewFamilyRepository(db.Pool)
	users := repository.NewUserRepository(db.Pool)
	days := repository.NewCustodyRepository(db.Pool)
	templates := repository.NewTemplateRepository(db.Pool)

	if cfg.SeedDemo {
		if err := repository.SeedDemoFamily(context.Background(), families, users); err != nil {
			logger.Error("Failed to seed demo family", "error", err)
		}
	}

	// Custody change notifications run async; failures never block writes
	dispatcher := notify.NewDispatcher(logger, &notify.LogSink{Logger: logger})
	defer dispatcher.Close()

	engine := custody.NewEngine(days, users, dispatcher, logger)
	engine.MaxApplyDays = cfg.MaxApplyDays

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer)

	// Nightly consistency repair across all active families
	sweeper := jobs.NewRepairSweeper(engine, families, logger)
	if err := sweeper.Start(cfg.RepairCron); err != nil {
		log.Fatalf("Failed to schedule repair sweep: %v", err)
	}
	defer sweeper.Stop()

	// Initialize Gin
	r := gin.Default()

	// Health check
	r.GET("/health", func(c *gin.Context) {
		if err := db.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "degraded",
				"version": Version,
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"version":  Version,
			"database": db.Stats(),
		})
	})

	// Version endpoint
	r.GET("/api/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version": Version,
			"service": "calndr-go",
		})
	})

	// Root endpoint
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Calndr API",
			"version": Version,
		})
	})

	// Calendar feed authenticates by token, not JWT (calendar apps)
	r.GET("/feed/custody.ics", handlers.CustodyFeed(families, days, users))

	// Family-scoped API, resolved from the subdomain
	api := r.Group("/api", middleware.FamilyMiddleware(families, cfg.BaseDomain), middleware.RequireFamily())
	{
		api.POST("/auth/login", handlers.Login(users, jwtService))

		authed := api.Group("", middleware.RequireAuth(jwtService))
		{
			authed.GET("/me", handlers.CurrentUser(users))
			authed.GET("/guardians", handlers.ListGuardians(users))
			authed.GET("/custody", handlers.GetCustodyRange(days, users))
			authed.GET("/custody/:date", handlers.GetCustodyDay(days, users))
			authed.GET("/templates", handlers.ListTemplates(templates))
			authed.GET("/templates/:id", handlers.GetTemplate(templates))

			guardian := authed.Group("", middleware.RequireGuardian(), middleware.ProtectDemoFamily())
			{
				guardian.PUT("/custody/:date", handlers.SetCustodyDay(engine, users))
				guardian.POST("/custody/repair", handlers.TriggerRepair(engine))
				guardian.POST("/templates", handlers.CreateTemplate(templates))
				guardian.DELETE("/templates/:id", handlers.DeleteTemplate(templates))
				guardian.POST("/templates/:id/apply", handlers.ApplyTemplate(templates, engine))
			}
		}
	}

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Info("🚀 Server starting", "addr", cfg.Listen, "version", Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("🛑 Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("✅ Server exited")
}
