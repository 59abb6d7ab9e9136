package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/noa10/mataresit-sub018/internal/api"
	"github.com/noa10/mataresit-sub018/internal/config"
	"github.com/noa10/mataresit-sub018/internal/core/alerting"
	"github.com/noa10/mataresit-sub018/internal/core/metrics"
	"github.com/noa10/mataresit-sub018/internal/core/metricstore"
	"github.com/noa10/mataresit-sub018/internal/core/notify"
	"github.com/noa10/mataresit-sub018/internal/database"
	"github.com/noa10/mataresit-sub018/internal/websocket"
	"github.com/noa10/mataresit-sub018/pkg/errors"
	"github.com/noa10/mataresit-sub018/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Logging.Level)

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.Migrate(db.DB, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	// Create repositories
	repos := database.NewRepositories(db, log)

	// Create WebSocket hub
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	// Metric sample store fed by the ingest endpoint
	samples := metricstore.New(log)

	var collector metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector(cfg.Metrics.Prefix)
	}

	// Assemble the alerting pipeline
	healthMonitor := alerting.NewHealthMonitor(alerting.HealthMonitorConfig{
		DegradedErrorRate: cfg.Alerting.DegradedErrorRate,
	}, log)

	transport := notify.NewRegistry(log, cfg.Notifications.HTTPTimeout)
	dispatcher := alerting.NewDispatcher(repos.Channels, transport, healthMonitor, alerting.DispatcherConfig{
		SendTimeout: cfg.Notifications.SendTimeout,
		Retry: &errors.RetryPolicy{
			MaxAttempts:   cfg.Notifications.MaxAttempts,
			InitialDelay:  cfg.Notifications.InitialDelay,
			MaxDelay:      cfg.Notifications.MaxDelay,
			BackoffFactor: cfg.Notifications.BackoffFactor,
			Jitter:        true,
		},
		BreakerFailures: cfg.Notifications.BreakerFailures,
		BreakerCoolDown: cfg.Notifications.BreakerCoolDown,
	}, log)

	instanceManager := alerting.NewInstanceManager(repos.Instances, log)
	publisher := websocket.NewAlertPublisher(wsHub)
	instanceManager.SetPublisher(publisher)

	evaluator := alerting.NewEvaluator(samples, cfg.Alerting.SourceTimeout, log)
	suppression := alerting.NewSuppressionManager(repos.Maintenance, log)
	escalation := alerting.NewEscalationEngine(repos.Policies, instanceManager, dispatcher, log)

	engine := alerting.NewEngine(alerting.EngineConfig{
		EvaluationInterval:       cfg.Alerting.EvaluationInterval,
		MaxConcurrentEvaluations: cfg.Alerting.MaxConcurrentEvaluations,
		AlertRetention:           cfg.Alerting.AlertRetention,
	}, repos.Rules, evaluator, suppression, instanceManager, dispatcher, escalation, healthMonitor, collector, log)

	// Load bootstrap definitions before the first evaluation cycle
	if cfg.Alerting.SeedFile != "" {
		seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := alerting.LoadSeedFile(seedCtx, cfg.Alerting.SeedFile, alerting.SeedStores{
			Rules:    repos.Rules,
			Channels: repos.Channels,
			Policies: repos.Policies,
			Windows:  repos.Maintenance,
		}, log)
		cancel()
		if err != nil {
			log.Fatal("Failed to load seed definitions: ", err)
		}
	}

	if err := engine.Start(context.Background()); err != nil {
		log.Fatal("Failed to start alerting engine: ", err)
	}

	// Push health snapshots to dashboard clients
	snapshotDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				publisher.PublishHealthSnapshot(healthMonitor.Dashboard())
			case <-snapshotDone:
				return
			}
		}
	}()

	// Initialize router
	router := api.NewRouter(cfg, repos, log, wsHub, engine, instanceManager, dispatcher, healthMonitor, samples, collector)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Infof("Starting alerting service on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Stop evaluating before refusing requests so no cycle runs against a
	// closing database.
	engine.Stop()
	close(snapshotDone)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Info("Server exited")
}
