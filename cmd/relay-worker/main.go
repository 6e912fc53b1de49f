// Relay Worker — выполняет runs заданий.
//
// Worker:
//   - Принимает запросы на запуск через HTTP API и очередь runs.submit
//   - Выполняет шаги задания с retry и exponential backoff
//   - Публикует события о завершённых runs
//   - Запускает задания по расписанию
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Relay/internal/actor"
	"github.com/shaiso/Relay/internal/api"
	"github.com/shaiso/Relay/internal/authguard"
	"github.com/shaiso/Relay/internal/config"
	"github.com/shaiso/Relay/internal/dispatch"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/engine"
	"github.com/shaiso/Relay/internal/mq"
	"github.com/shaiso/Relay/internal/scheduler"
	"github.com/shaiso/Relay/internal/store"
	"github.com/shaiso/Relay/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "путь к файлу конфигурации")
	flag.Parse()

	logger := telemetry.SetupLogger()
	logger.Info("starting relay-worker")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Хранилище
	db, err := store.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		logger.Error("failed to connect to mongo", "error", err)
		os.Exit(1)
	}
	defer db.Close(context.Background())
	if err := db.EnsureIndexes(ctx); err != nil {
		logger.Error("failed to ensure indexes", "error", err)
		os.Exit(1)
	}
	logger.Info("mongo connected", "database", cfg.Mongo.Database)

	jobs := store.NewJobStore(db)
	runs := store.NewRunStore(db)

	// Auth
	guard := authguard.NewGuard(authguard.GuardConfig{
		JWKSURL:  cfg.Auth.JWKSURL,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})
	issuer := authguard.NewIssuer(authguard.IssuerConfig{
		TokenURL:     cfg.Auth.TokenURL,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
	})

	// RabbitMQ (опционально: без него worker принимает запуски только по HTTP)
	var publisher *mq.Publisher
	var mqConn *mq.Connection
	if cfg.AMQP.URL != "" {
		mqConn, err = mq.NewConnection(cfg.AMQP.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running in API-only mode", "error", err)
		} else {
			defer mqConn.Close()
			if err := mq.SetupTopology(mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			publisher = mq.NewPublisher(mqConn, logger)
		}
	}

	// Dispatcher
	caller := actor.NewCaller(engine.NewEngines(), issuer)
	var notifier dispatch.Notifier
	if publisher != nil {
		notifier = publisher
	}
	dispatcher := dispatch.New(dispatch.Config{
		QueueSize:         cfg.Dispatch.QueueSize,
		Concurrency:       cfg.Dispatch.Concurrency,
		DefaultTimeoutSec: cfg.Steps.DefaultTimeoutSec,
		DefaultRetry: &domain.RetryPolicy{
			MaxAttempts:    cfg.Steps.MaxAttempts,
			Backoff:        "exponential",
			InitialDelayMs: cfg.Steps.InitialDelayMs,
			MaxDelayMs:     cfg.Steps.MaxDelayMs,
		},
	}, jobs, runs, caller, notifier)
	dispatcher.Start(cfg.Dispatch.Concurrency)

	// Брошенные runs только показываем: их судьбу решает внешняя
	// reconciliation, worker не вправе их финализировать.
	reportStale(ctx, runs, cfg.Recovery.StaleAfter(), logger)

	// Consumer очереди запусков
	if mqConn != nil {
		consumer := mq.NewSubmitConsumer(mqConn, dispatcher, logger, cfg.AMQP.Prefetch)
		go func() {
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("submit consumer stopped", "error", err)
			}
		}()
	}

	// Scheduler
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(scheduler.Config{
			Jobs:         jobs,
			Submitter:    dispatcher,
			Logger:       logger,
			TickInterval: cfg.Scheduler.TickInterval(),
		})
		go sched.Run(ctx)
	}

	// HTTP API + /metrics
	mux := http.NewServeMux()
	handler := api.NewHandler(dispatcher, jobs, runs, guard, logger)
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.API.Listen, Handler: mux}
	go func() {
		logger.Info("listening", "addr", cfg.API.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	server.Shutdown(context.Background())
	dispatcher.Stop()
	logger.Info("relay-worker stopped")
}

type staleLister interface {
	ListStale(ctx context.Context, olderThan time.Duration) ([]domain.Run, error)
}

// reportStale сообщает о runs, застрявших в RUNNING дольше порога.
// Финализировать их worker не вправе: run может всё ещё выполняться
// другим экземпляром. Возобновить или пометить FAILED решает внешний
// reconciliation-процесс.
func reportStale(ctx context.Context, runs staleLister, olderThan time.Duration, logger *slog.Logger) {
	stale, err := runs.ListStale(ctx, olderThan)
	if err != nil {
		logger.Warn("failed to list stale runs", "error", err)
		return
	}
	for i := range stale {
		run := &stale[i]
		logger.Warn("stale run detected",
			"run_id", run.ID, "job_id", run.JobID, "updated_at", run.UpdatedAt)
	}
	if len(stale) > 0 {
		logger.Warn("stale runs require external reconciliation", "count", len(stale))
	}
}
