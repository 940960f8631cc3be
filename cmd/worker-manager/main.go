package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"admission-portal/internal/admission/ledger"
	"admission-portal/internal/admission/lifecycle"
	"admission-portal/internal/admission/reconciliation"
	"admission-portal/internal/common/aws"
	"admission-portal/internal/common/camunda"
	"admission-portal/internal/common/config"
	"admission-portal/internal/common/database"
	"admission-portal/internal/common/logger"
	"admission-portal/internal/common/observability"
	"admission-portal/internal/events"
	"admission-portal/internal/events/kafka"
	"admission-portal/internal/notify"
	"admission-portal/internal/ops"
	"admission-portal/internal/search"
	pgstore "admission-portal/internal/store/postgres"

	css "admission-portal/internal/workers/application/change-submission-status"
	fs "admission-portal/internal/workers/application/finalize-submission"
	uds "admission-portal/internal/workers/application/upsert-draft-step"
	cpr "admission-portal/internal/workers/payment/claim-payment-reference"
	mpr "admission-portal/internal/workers/payment/manage-payment-reference"
	rrp "admission-portal/internal/workers/payment/run-reconciliation-pass"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		zapLog.Fatal("worker manager failed", zap.Error(err))
	}
	log.Info("Worker manager stopped gracefully", nil)
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown(context.Background())

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err := retryWithBackoff(ctx, func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		return err
	}
	defer pg.Close()
	if cfg.Database.Postgres.MigrateOnStart {
		if err := pgstore.Migrate(ctx, pg.DB); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	st := pgstore.New(pg.DB)
	log.Info("PostgreSQL connected successfully", nil)

	checks := []ops.Option{ops.WithReadinessCheck("postgres", pg.Ping)}

	// --- Redis (id sequence, scheduler lease) ---
	var rdb *database.RedisClient
	if cfg.Database.Redis.Address != "" {
		err = retryWithBackoff(ctx, func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			return err
		}
		defer rdb.Close()
		checks = append(checks, ops.WithReadinessCheck("redis", rdb.Ping))
		log.Info("Redis connected successfully", nil)
	}

	// --- Event subscribers ---
	var subscribers []events.Subscriber

	if cfg.Notifications.Email.Enabled || cfg.Notifications.SMS.Enabled {
		awsCfg, err := aws.LoadConfig(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			return err
		}
		subscribers = append(subscribers, notify.NewNotifier(notify.Config{
			EmailEnabled: cfg.Notifications.Email.Enabled,
			SMSEnabled:   cfg.Notifications.SMS.Enabled,
			FromEmail:    cfg.Notifications.Email.FromEmail,
			SenderID:     cfg.Notifications.SMS.SenderID,
		}, aws.NewSESClient(awsCfg), aws.NewSNSClient(awsCfg), log))
	}

	if cfg.Search.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(ctx, func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			return err
		}
		indexer := search.NewIndexer(esClient.Client, cfg.Search.Index, log)
		if err := indexer.EnsureIndex(ctx); err != nil {
			return err
		}
		subscribers = append(subscribers, indexer)
		checks = append(checks, ops.WithReadinessCheck("elasticsearch", esClient.Ping), ops.WithSearch(indexer))
		log.Info("Elasticsearch connected successfully", nil)
	}

	if cfg.Events.Kafka.Enabled {
		kc, err := kafka.NewClient(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.ClientID, cfg.Events.Kafka.Topic)
		if err != nil {
			return err
		}
		defer kc.Close()
		subscribers = append(subscribers, kafka.NewForwarder(kc, cfg.Events.Kafka.Topic, log))
		checks = append(checks, ops.WithReadinessCheck("kafka", kc.Ping))
	}

	dispatcher := events.NewDispatcher(log, subscribers)

	// --- Domain services ---
	var ids lifecycle.IDGenerator = lifecycle.NewRandomSequence(cfg.Lifecycle.IDPrefix)
	if cfg.Lifecycle.IDSequence == config.IDSequenceRedis {
		ids = lifecycle.NewRedisSequence(rdb.Client, cfg.Lifecycle.IDPrefix)
	}
	manager := lifecycle.NewManager(st, log,
		lifecycle.WithIDGenerator(ids),
		lifecycle.WithPublisher(dispatcher),
		lifecycle.WithMaxIDAttempts(cfg.Lifecycle.MaxIDAttempts),
	)
	led := ledger.New(st, log, ledger.WithPublisher(dispatcher))
	engine := reconciliation.NewEngine(st, led, log,
		reconciliation.WithConcurrency(cfg.Reconciliation.Concurrency),
		reconciliation.WithBatchSize(cfg.Reconciliation.BatchSize),
		reconciliation.WithClaimTimeout(config.GetDuration(cfg.Reconciliation.ClaimTimeout)),
		reconciliation.WithObservability(obs),
	)

	if cfg.Reconciliation.Enabled {
		scheduler := reconciliation.NewScheduler(engine, cfg.Reconciliation.IntervalDuration(), log,
			reconciliation.WithLease(rdb.Client, cfg.Reconciliation.LeaseKey, config.GetDuration(cfg.Reconciliation.LeaseTTL)),
		)
		go scheduler.Start(ctx)
	}

	// --- Zeebe workers ---
	var workers []*camunda.Worker
	if cfg.Camunda.Enabled {
		zc, err := camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		}, log)
		if err != nil {
			return err
		}
		defer zc.Close()
		checks = append(checks, ops.WithReadinessCheck("zeebe", zc.HealthCheck))
		log.Info("Zeebe client connected successfully", nil)

		start := func(taskType string, h camunda.JobHandler) {
			if w := camunda.StartWorker(zc.GetClient(), taskType, config.GetWorkerConfig(cfg, taskType), h, log); w != nil {
				workers = append(workers, w)
			}
		}
		timeout := func(taskType string) time.Duration {
			return config.GetDuration(config.GetWorkerConfig(cfg, taskType).Timeout)
		}

		start(uds.TaskType, uds.NewHandler(&uds.Config{Timeout: timeout(uds.TaskType)}, manager, log, obs))
		start(fs.TaskType, fs.NewHandler(&fs.Config{Timeout: timeout(fs.TaskType)}, manager, log, obs))
		start(css.TaskType, css.NewHandler(&css.Config{Timeout: timeout(css.TaskType)}, manager, log, obs))
		start(cpr.TaskType, cpr.NewHandler(&cpr.Config{Timeout: timeout(cpr.TaskType)}, led, log, obs))
		start(mpr.TaskType, mpr.NewHandler(&mpr.Config{Timeout: timeout(mpr.TaskType)}, led, log, obs))
		start(rrp.TaskType, rrp.NewHandler(&rrp.Config{Timeout: timeout(rrp.TaskType)}, engine, log, obs))
		log.Info("Workers registered", map[string]interface{}{"count": len(workers)})
	}

	// --- Health, metrics and ops server ---
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           ops.New(engine, log, checks...).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("Ops server listening", map[string]interface{}{"addr": cfg.HTTP.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// --- Graceful Shutdown ---
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received, stopping workers...", nil)
	case err := <-serveErr:
		log.Error("Ops server failed", map[string]interface{}{"error": err.Error()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Error stopping ops server", map[string]interface{}{"error": err.Error()})
	}
	for _, w := range workers {
		w.Stop()
	}
	return nil
}
