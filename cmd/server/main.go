package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/changewatch/internal/api"
	"github.com/notifyhub/changewatch/internal/checker"
	"github.com/notifyhub/changewatch/internal/config"
	"github.com/notifyhub/changewatch/internal/db"
	"github.com/notifyhub/changewatch/internal/domain"
	"github.com/notifyhub/changewatch/internal/events"
	"github.com/notifyhub/changewatch/internal/metrics"
	"github.com/notifyhub/changewatch/internal/notify"
	"github.com/notifyhub/changewatch/internal/persistence"
	"github.com/notifyhub/changewatch/internal/queue"
	"github.com/notifyhub/changewatch/internal/ratelimiter"
	"github.com/notifyhub/changewatch/internal/registry"
	"github.com/notifyhub/changewatch/internal/repository"
	"github.com/notifyhub/changewatch/internal/service"
	"github.com/notifyhub/changewatch/internal/status"
	"github.com/notifyhub/changewatch/internal/worker"
)

func main() {
	started := time.Now()

	level := zap.NewAtomicLevel()
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	logger, _ := zcfg.Build()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logger.Warn("invalid LOG_LEVEL, keeping info", zap.String("value", cfg.LogLevel))
	}

	ctx := context.Background()
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	// ---- metrics ----
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	// ---- proxies ----
	proxies := config.NewProxyList(cfg.Proxies)
	if cfg.ProxiesFile != "" {
		pw := config.NewProxyWatcher(cfg.ProxiesFile, cfg.Proxies, proxies, logger)
		if err := pw.Reload(); err != nil {
			logger.Fatal("failed to load proxies file", zap.Error(err))
		}
		pw.OnReload = func([]string) { m.ProxiesReloaded.Inc() }
		go func() {
			if err := pw.Run(workerCtx); err != nil {
				logger.Error("proxy watcher stopped", zap.Error(err))
			}
		}()
	}

	// ---- persistence ----
	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open watch storage", zap.Error(err))
	}
	defer closeRepo()

	var publisher events.Publisher
	if cfg.AMQPURL != "" {
		amqpPub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Fatal("failed to connect to amqp", zap.Error(err))
		}
		defer amqpPub.Close()
		publisher = amqpPub
	}

	var (
		observer   registry.Observer
		dispatcher *persistence.Dispatcher
	)
	if repo != nil || publisher != nil {
		dispatcher = persistence.NewDispatcher(repo, publisher, cfg.PersistBuffer, logger)
		dispatcher.OnDrop = func(domain.WatchEvent) { m.PersistDropped.Inc() }
		observer = dispatcher
	}

	// ---- core dependencies ----
	q := queue.New()
	q.OnCoalesce = func(queue.Item) { m.Coalesced.Inc() }

	reg := registry.New(registry.Options{
		DefaultThreshold: cfg.DefaultRecheck,
		Proxies:          proxies,
		Pending:          q,
		Observer:         observer,
	})
	reporter := status.NewReporter(reg, q, status.Policy{ExcludePaused: cfg.OverdueExcludePaused}, started)
	svc := service.NewWatchService(reg, q, reporter, logger)

	if repo != nil {
		if _, err := svc.Hydrate(ctx, repo); err != nil {
			logger.Fatal("failed to restore watches", zap.Error(err))
		}
	}

	persistCtx, cancelPersist := context.WithCancel(ctx)
	persistDone := make(chan struct{})
	if dispatcher != nil {
		go func() {
			defer close(persistDone)
			dispatcher.Run(persistCtx)
		}()
	} else {
		close(persistDone)
	}

	// ---- worker pool ----
	onChecked, onDropped := m.WorkerHooks()
	pool := worker.NewPool(cfg.Workers, worker.Deps{
		Queue:    q,
		Registry: reg,
		Checker:  checker.NewHTTPChecker(cfg.FetchTimeout, proxies),
		Limiter:  ratelimiter.New(cfg.FetchRatePerHost),
		Notifier: notify.NewLogNotifier(logger.Named("notify")),
	}, logger, worker.MetricHooks{
		OnChecked: onChecked,
		OnDropped: onDropped,
	})
	pool.Start(workerCtx)

	schedulerW := worker.NewSchedulerWorker(reg, q, cfg.SchedulerInterval, logger)
	go schedulerW.Run(workerCtx)

	auditW := worker.NewAuditWorker(reporter, cfg.AuditSchedule, logger)
	if err := auditW.Validate(); err != nil {
		logger.Fatal("invalid AUDIT_SCHEDULE", zap.Error(err))
	}
	auditW.OnStatus = func(s status.Status) {
		m.ObserveStatus(s.QueueSize, s.WatchCount, len(s.OverdueWatchIDs))
	}
	go func() {
		if err := auditW.Run(workerCtx); err != nil {
			logger.Error("audit worker stopped", zap.Error(err))
		}
	}()

	// ---- HTTP server ----
	router := api.NewRouter(svc, q, promReg, cfg.APIKey, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.Int("workers", pool.Size()),
			zap.Int("watches", reg.Len()),
			zap.String("storage", cfg.StorageDriver()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the scheduler and wake idle workers; pending rechecks are dropped.
	cancelWorkers()
	q.Shutdown()

	// 3. Wait for in-flight checks, bounded by the shutdown timeout.
	if !pool.WaitTimeout(cfg.ShutdownTimeout) {
		logger.Warn("in-flight checks did not finish before the shutdown timeout")
	}

	// 4. Flush buffered mutations to storage.
	cancelPersist()
	<-persistDone

	logger.Info("server stopped cleanly")
}

// openRepository picks the storage backend from DATABASE_URL. It returns a
// nil repository when persistence is disabled.
func openRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.WatchRepository, func(), error) {
	switch cfg.StorageDriver() {
	case "postgres":
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("database migrations applied")
		return repository.NewPgWatchRepository(pool), pool.Close, nil

	case "sqlite":
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath())
		if err != nil {
			return nil, nil, err
		}
		logger.Info("sqlite storage opened", zap.String("path", cfg.SQLitePath()))
		return repository.NewSqliteWatchRepository(conn), func() { _ = conn.Close() }, nil
	}

	logger.Warn("DATABASE_URL not set, watches are kept in memory only")
	return nil, func() {}, nil
}
