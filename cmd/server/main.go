package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"examdesk/internal/payments"
	paymentMetrics "examdesk/internal/payments/metrics"
	"examdesk/internal/platform/config"
	"examdesk/internal/platform/httpserver"
	"examdesk/internal/platform/logger"
	platformMetrics "examdesk/internal/platform/metrics"
	"examdesk/internal/platform/postgres"
	"examdesk/internal/platform/redis"
	"examdesk/internal/results"
	resultMetrics "examdesk/internal/results/metrics"
	"examdesk/internal/schedule"
	scheduleMetrics "examdesk/internal/schedule/metrics"
	httptransport "examdesk/internal/transport/http"
)

// main wires dependencies and owns the process lifecycle. Every backing
// service is optional: missing Postgres, Redis, or Kafka configuration falls
// back to in-memory implementations so a dev instance runs with no
// infrastructure at all.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err.Error())
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err.Error())
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	resMetrics := resultMetrics.New()

	// Scheduling.
	var (
		scheduleStore schedule.Store
		enrollments   schedule.EnrollmentReader
	)
	if pool != nil {
		scheduleStore = schedule.NewPostgresStore(pool)
		enrollments = schedule.NewPostgresEnrollments(pool)
	} else {
		mem := schedule.NewInMemoryEnrollments()
		scheduleStore = schedule.NewInMemoryStore(mem)
		enrollments = mem
	}
	scheduler := schedule.NewService(scheduleStore, enrollments, log, scheduleMetrics.New())

	// Result publication.
	var (
		examStore     results.ExamStore
		gradeStore    results.GradeStore
		progressStore results.ProgressStore
	)
	if pool != nil {
		examStore = results.NewPostgresExamStore(pool)
		gradeStore = results.NewPostgresGradeStore(pool)
		progressStore = results.NewPostgresProgressStore(pool)
	} else {
		examStore = results.NewInMemoryExamStore()
		gradeStore = results.NewInMemoryGradeStore()
		progressStore = results.NewInMemoryProgressStore()
	}
	var cache results.Cache
	if redisClient != nil {
		cache = results.NewRedisCache(redisClient.Client, resMetrics)
	} else {
		cache = results.NewInMemoryCache()
	}
	var notifier results.Notifier
	kafkaNotifier, err := results.NewKafkaNotifier(cfg.Kafka.Brokers)
	if err != nil {
		log.Error("kafka connection failed", "error", err.Error())
		os.Exit(1)
	}
	if kafkaNotifier != nil {
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	} else {
		notifier = results.NewInMemoryNotifier()
	}

	publisher := results.NewPublisher(examStore, gradeStore, progressStore, cache, notifier,
		results.PublisherConfig{
			Topic:         cfg.Kafka.Topic,
			BatchSize:     cfg.Publish.BatchSize,
			ResultTTL:     cfg.Publish.ResultTTL,
			RetryAttempts: cfg.Publish.RetryAttempts,
			RetryBackoff:  cfg.Publish.RetryBackoff,
			StallAfter:    cfg.Publish.StallAfter,
		},
		results.WithLogger(log),
		results.WithMetrics(resMetrics),
	)
	dispatcher := results.NewDispatcher(publisher, cfg.Publish.Workers, cfg.Publish.Backlog, log, resMetrics)
	reader := results.NewReader(examStore, gradeStore, cache, cfg.Publish.ResultTTL, log, resMetrics)

	// Payments.
	var paymentStore payments.Store
	if pool != nil {
		paymentStore = payments.NewPostgresStore(pool)
	} else {
		paymentStore = payments.NewInMemoryStore()
	}
	var gateway payments.Gateway
	if cfg.Gateway.URL != "" {
		gateway = payments.NewHTTPGateway(cfg.Gateway.URL, cfg.Gateway.Timeout, log)
	} else {
		gateway = payments.NewInMemoryGateway()
	}
	paymentService := payments.NewService(paymentStore, gateway, log, paymentMetrics.New())

	health := map[string]httptransport.HealthChecker{}
	if pool != nil {
		health["postgres"] = func() error { return pool.Ping(context.Background()) }
	}
	if redisClient != nil {
		health["redis"] = func() error { return redisClient.Health(context.Background()) }
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:  log,
		Metrics: platformMetrics.New(),
		Health:  health,
		Handlers: []httptransport.Registrar{
			httptransport.NewScheduleHandler(scheduler, log),
			httptransport.NewResultsHandler(dispatcher, publisher, reader, log),
			httptransport.NewPaymentsHandler(paymentService, cfg.Gateway.WebhookSecret, log),
		},
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting examdesk", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
