package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/svc-facilitator/internal/api"
	"github.com/vitaliisemenov/svc-facilitator/internal/config"
	"github.com/vitaliisemenov/svc-facilitator/internal/database"
	"github.com/vitaliisemenov/svc-facilitator/internal/database/postgres"
	"github.com/vitaliisemenov/svc-facilitator/internal/facilitator"
	"github.com/vitaliisemenov/svc-facilitator/internal/infrastructure/cache"
	"github.com/vitaliisemenov/svc-facilitator/pkg/logger"
)

const (
	serviceName    = "svc-facilitator"
	serviceVersion = "1.0.0"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Mirrors service discovery and route policy from a Postgres source of truth",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the database migrations, hydrate the mirror, and serve the HTTP surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load and validate configuration without connecting to anything, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Printf("config ok: service_slug=%s database=%s mirror_ttl=%s audit_enabled=%t\n",
			cfg.Server.ServiceSlug, cfg.Database.Name, cfg.Mirror.TTL, cfg.Audit.Enabled)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file (optional)")
	rootCmd.AddCommand(serveCmd, validateConfigCmd)
}

func runServe(parentCtx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	log.Info("starting facilitator", "service", serviceName, "version", serviceVersion, "slug", cfg.Server.ServiceSlug)

	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgCfg := postgres.DefaultConfig()
	pgCfg.URI = cfg.Database.URI
	pgCfg.MaxConns = int32(cfg.Database.MaxConnections)
	pgCfg.MinConns = int32(cfg.Database.MinConnections)
	pgCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime
	pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	pgPool := postgres.NewPostgresPool(pgCfg, log)
	if err := pgPool.Connect(ctx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pgPool.Close()

	if err := database.RunMigrations(ctx, pgPool, log); err != nil {
		log.Warn("database migrations failed, continuing with existing schema", "error", err)
	}

	pool := pgPool.Pool()

	var negCache facilitator.NegativeCache
	if cfg.UsesRedisNegativeCache() {
		redisCache, err := cache.NewRedisCache(&cache.CacheConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, log)
		if err != nil {
			return fmt.Errorf("connect to redis negative cache backend: %w", err)
		}
		negCache = facilitator.NewRedisBackedNegativeCache(redisCache)
	}

	loader := facilitator.NewLoader(pool, cfg.Database.CollectionConfigs, cfg.Database.CollectionPolicies)
	lkg := facilitator.NewLKGStore(cfg.LKG.Path, pool, cfg.Database.CollectionLKG, log)

	store := facilitator.NewStore(loader, lkg, facilitator.StoreConfig{
		TTL:         cfg.Mirror.TTL,
		NegativeTTL: cfg.Mirror.NegativeTTL,
		MaxEntries:  cfg.Mirror.MaxEntries,
	}, negCache, log)

	hydrator := facilitator.NewHydrator(store, lkg, log)
	result := hydrator.Hydrate(ctx, logger.GenerateRequestID())
	if result.State == facilitator.StateNotReady {
		return fmt.Errorf("hydration failed, refusing to serve traffic: %w", result.Err)
	}
	log.Info("hydration complete", "state", result.State, "source", result.Source, "count", result.Count)

	if cfg.Audit.Enabled {
		auditor := facilitator.NewAuditor(pool, cfg.Database.CollectionConfigs, store, log)
		go auditor.RunPeriodically(ctx, cfg.Audit.Interval)
	}

	routerCfg := api.DefaultRouterConfig(cfg.Server.ServiceSlug, log)
	routerCfg.EnableMetrics = cfg.Metrics.Enabled
	routerCfg.MetricsPath = cfg.Metrics.Path
	router := api.NewRouter(store, routerCfg)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("http server failed", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server exited cleanly")
	return nil
}
