package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimitrije/teamboard/internal/config"
	"github.com/dimitrije/teamboard/internal/database"
	"github.com/dimitrije/teamboard/internal/handlers"
	"github.com/dimitrije/teamboard/internal/logger"
	"github.com/dimitrije/teamboard/internal/metrics"
	authmw "github.com/dimitrije/teamboard/internal/middleware"
	"github.com/dimitrije/teamboard/internal/realtime"
	"github.com/dimitrije/teamboard/internal/services"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", logger.Err(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
	}

	hub := realtime.NewHub(m)
	go hub.Run(ctx)

	var broker realtime.Broker = realtime.NewLocalBroker(hub)
	var fanoutErr <-chan error
	if cfg.RedisURL != "" {
		rdb, err := realtime.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()

		redisBroker := realtime.NewRedisBroker(rdb, hub, log)
		fanoutErr = redisBroker.Start(ctx)
		broker = redisBroker
		log.Info("task changes fan out through redis")
	}

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	userService := services.NewUserService(db)
	tokenService := services.NewTokenService(db)
	teamService := services.NewTeamService(db).WithMetrics(m)
	taskService := services.NewTaskService(db, broker, log)

	authHandler := handlers.NewAuthHandler(cfg, userService, tokenService, jwtService, m, log)
	userHandler := handlers.NewUserHandler(userService, log)
	teamHandler := handlers.NewTeamHandler(teamService, log)
	taskHandler := handlers.NewTaskHandler(taskService, teamService, log)
	sseHandler := handlers.NewSSEHandler(hub, teamService, userService, log)
	syncHandler := handlers.NewSyncHandler(hub, teamService, userService, log)

	app := drift.New()

	if cfg.IsProduction() {
		app.SetMode(drift.ReleaseMode)
	} else {
		app.SetMode(drift.DebugMode)
	}

	app.Use(middleware.Recovery())
	app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       86400,
	}))
	app.Use(middleware.BodyParser())

	api := app.Group("/api/v1")

	auth := api.Group("/auth")
	auth.Post("/signup", authHandler.SignUp)
	auth.Post("/signin", authHandler.SignIn)
	auth.Get("/:provider/consent", authHandler.GetConsentURL)
	auth.Get("/:provider/callback", authHandler.Callback)
	auth.Post("/exchange", authHandler.ExchangeCode)
	auth.Post("/refresh", authHandler.RefreshToken)
	auth.Post("/logout", authHandler.Logout)

	protected := api.Group("")
	protected.Use(authmw.Auth(jwtService))

	protected.Post("/auth/logout-all", authHandler.LogoutAll)

	protected.Get("/users/me", userHandler.GetMe)
	protected.Patch("/users/me", userHandler.UpdateMe)

	protected.Get("/teams", teamHandler.List)
	protected.Post("/teams", teamHandler.Create)
	protected.Get("/teams/:id", teamHandler.Get)
	protected.Patch("/teams/:id", teamHandler.Update)
	protected.Delete("/teams/:id", teamHandler.Delete)
	protected.Get("/teams/:id/members", teamHandler.GetMembers)
	protected.Delete("/teams/:id/members/:memberId", teamHandler.RemoveMember)
	protected.Post("/teams/:id/leave", teamHandler.Leave)

	protected.Post("/join", teamHandler.Join)
	protected.Get("/codes/:code", teamHandler.Lookup)

	protected.Get("/teams/:id/tasks", taskHandler.List)
	protected.Post("/teams/:id/tasks", taskHandler.Create)
	protected.Patch("/tasks/:taskId", taskHandler.Update)
	protected.Patch("/tasks/:taskId/status", taskHandler.UpdateStatus)
	protected.Delete("/tasks/:taskId", taskHandler.Delete)

	protected.Get("/teams/:id/events", sseHandler.Connect)
	protected.Get("/sync", syncHandler.Connect)

	api.Get("/health", func(c *drift.Context) {
		if err := db.Pool.Ping(c.Request.Context()); err != nil {
			_ = c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		_ = c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/", authmw.Metrics(m, app))

	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := tokenService.CleanupExpired(ctx)
				if err != nil {
					log.Warn("refresh token cleanup failed", logger.Err(err))
					continue
				}
				log.Debug("expired refresh tokens removed", slog.Int64("count", removed))
			}
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", slog.String("addr", srv.Addr), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var fanout error
	select {
	case err := <-errCh:
		return err
	case fanout = <-fanoutErr:
		if fanout != nil {
			// Writes would still reach redis but never the local hub.
			log.Error("redis fan-out stopped", logger.Err(fanout))
			fanout = fmt.Errorf("redis fan-out stopped: %w", fanout)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(fanout, srv.Shutdown(shutdownCtx))
}
