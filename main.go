package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/enzococca/mekan-admin/src/config"
	"github.com/enzococca/mekan-admin/src/db"
	"github.com/enzococca/mekan-admin/src/logging"
	"github.com/enzococca/mekan-admin/src/middleware"
	"github.com/enzococca/mekan-admin/src/models"
	"github.com/enzococca/mekan-admin/src/routes"
	"github.com/enzococca/mekan-admin/src/seed"
	"github.com/enzococca/mekan-admin/src/services"
	"github.com/enzococca/mekan-admin/src/utils"
	"github.com/enzococca/mekan-admin/src/web"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("error loading configuration")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	generated, err := cfg.EnsureSecret()
	if err != nil {
		logging.Fatal().Err(err).Msg("error generating session secret")
	}
	if generated {
		logging.Warn().Msg("SECRET_KEY not set, sessions will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database connection
	conn, err := db.Connect(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("error connecting to database")
	}

	findsTable, err := db.ResolveFindsTable(ctx, conn, cfg.Schema.FindsTable)
	if err != nil {
		logging.Fatal().Err(err).Msg("error resolving finds table")
	}
	cfg.Schema.FindsTable = findsTable
	catalog := models.NewCatalog(findsTable)
	logging.Info().Str("finds_table", findsTable).Strs("entities", catalog.Names()).Msg("catalog ready")

	if cfg.Database.AutoMigrate {
		if err := seed.Migrate(conn); err != nil {
			logging.Fatal().Err(err).Msg("error during auto-migration")
		}
		if err := seed.Seed(ctx, conn, cfg.Seed.AdminPassword); err != nil {
			logging.Fatal().Err(err).Msg("error seeding roles and admin user")
		}
	}

	// Services setup
	userService := services.NewUserService(conn)
	entityService := services.NewEntityService(conn, cfg.Schema)
	aggregateService := services.NewAggregateService(conn, catalog, cfg.Schema)
	exportService := services.NewExportService(entityService)

	var drive services.FileFetcher
	if client := utils.NewDriveClient(cfg.Media.DriveCredentialsPath, cfg.Media.DriveCredentialsJSON); client != nil {
		drive = services.NewBreakerFetcher(client, cfg.Media.DriveBreakerCooldown)
	}
	mediaService := services.NewMediaService(conn, cfg.Media.PublicBaseURL, drive)

	sessions := middleware.NewSessions(cfg.Session)
	var loginLimiter *middleware.RateLimiter
	if cfg.Session.LoginAttempts > 0 {
		loginLimiter = middleware.NewRateLimiter(cfg.Session.LoginAttempts, cfg.Session.LoginWindow)
	}

	// Gin router setup
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		gin.Recovery(),
		middleware.SetupCORS(cfg.CORS.Origins),
		sessions.Load(userService),
	)
	router.SetHTMLTemplate(web.Templates())

	// Routes setup
	routes.SetupSystemRoutes(router, conn)
	routes.SetupWebRoutes(router, userService, sessions, catalog, loginLimiter)
	routes.SetupAPIRoutes(router, routes.APIServices{
		Catalog:    catalog,
		Entities:   entityService,
		Aggregates: aggregateService,
		Media:      mediaService,
		Exports:    exportService,
		Activity:   userService,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Host,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logging.Info().Str("addr", cfg.Server.Host).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Str("addr", cfg.Server.Host).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown failed")
	}
	if sqlDB, err := conn.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
