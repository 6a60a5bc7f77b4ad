package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rentgrid/rentgrid/pkg/api"
	"github.com/rentgrid/rentgrid/pkg/auth"
	"github.com/rentgrid/rentgrid/pkg/authz"
	"github.com/rentgrid/rentgrid/pkg/config"
	"github.com/rentgrid/rentgrid/pkg/httputil"
	"github.com/rentgrid/rentgrid/pkg/middleware"
	"github.com/rentgrid/rentgrid/pkg/observability"
	"github.com/rentgrid/rentgrid/pkg/orgs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rentgrid: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting rentgrid")

	ctx := context.Background()

	// OpenTelemetry
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}

	if cfg.Database.MigrateOnStart {
		if err := authz.RunMigrations(ctx, db, logger); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
	}

	// Redis (optional session cache)
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		opts.DB = cfg.Redis.DB

		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis not reachable, sessions resolve from database only")
			redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// Metrics
	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// Role permission table
	roleTable := authz.NewRoleTable(logger)
	if cfg.Authz.PermissionsFile != "" {
		if err := roleTable.LoadFile(cfg.Authz.PermissionsFile); err != nil {
			return fmt.Errorf("failed to load permissions file: %w", err)
		}
		if err := roleTable.Watch(cfg.Authz.PermissionsFile); err != nil {
			logger.WithError(err).Warn("permissions file watch failed, hot reload disabled")
		}
		defer roleTable.Close()
	}

	// Stores and services
	authStore := auth.NewStore(db)
	orgService := orgs.NewPostgresService(db, logger)
	ownership := authz.NewOwnershipResolver(db, cfg.Authz.OwnershipCacheSize, cfg.Authz.OwnershipCacheTTL)
	assignments := authz.NewAssignmentStore(db, logger)
	overrides := authz.NewOverrideStore(db, logger)

	authorizer := authz.NewAuthorizer(roleTable, ownership, assignments, overrides, orgService, metrics, logger)

	var sessions auth.SessionResolver = authStore
	if redisClient != nil {
		sessions = auth.NewCachedSessionResolver(authStore, redisClient, cfg.Redis.SessionTTL, metrics)
	}

	authMiddleware := middleware.NewAuthMiddleware(sessions, authStore, orgService, authorizer, logger, metrics)

	// Router
	router := mux.NewRouter()
	handler := api.NewHandler(orgService, assignments, overrides, logger)
	handler.RegisterRoutes(router)

	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
	}
	if metrics != nil {
		middlewares = append(middlewares, metrics.MetricsMiddleware)
	}
	middlewares = append(middlewares, authMiddleware.Middleware)

	var rootHandler http.Handler = httputil.Chain(middlewares...)(router)
	if cfg.Observability.OTelEnabled {
		rootHandler = otelhttp.NewHandler(rootHandler, "rentgrid")
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      rootHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics server on a separate port
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.Handler(registry))
	}

	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	// Connection pool gauges
	if metrics != nil {
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				stats := db.Stats()
				metrics.DBConnectionsActive.Set(float64(stats.InUse))
				metrics.DBConnectionsIdle.Set(float64(stats.Idle))
			}
		}()
	}

	// Expired-session cleanup
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Authz.SessionCleanupSchedule, func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		removed, err := authStore.DeleteExpiredSessions(cleanupCtx)
		if err != nil {
			logger.WithError(err).Error("session cleanup failed")
			return
		}
		if removed > 0 {
			logger.WithField("removed", removed).Info("expired sessions removed")
		}
	}); err != nil {
		return fmt.Errorf("invalid session cleanup schedule: %w", err)
	}
	scheduler.Start()

	go func() {
		logger.WithField("addr", server.Addr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server failed")
		}
	}()

	manager := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	manager.RegisterShutdownFunc(func(ctx context.Context) error {
		scheduler.Stop()
		return nil
	})
	manager.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	if otelProviders != nil {
		manager.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	return manager.WaitForShutdown()
}
