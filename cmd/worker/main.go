package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sf7293/tmanager/configs"
	"github.com/sf7293/tmanager/internal/bootstrap"
	"github.com/sf7293/tmanager/internal/notification"
)

var isReady atomic.Bool

// The worker consumes notification batches from RabbitMQ and runs the daily sweep.
// Usage: worker [worker-name]
func main() {
	cfg := configs.InitConfig()
	cfg.InitLogger()

	workerName := "notification-worker"
	if len(os.Args) > 1 && os.Args[1] != "" {
		workerName = os.Args[1]
	} else if hostname, err := os.Hostname(); err == nil {
		workerName = hostname
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Setting up a context with cfg.WorkerTimeOutInSeconds seconds time out, which limits the time spent on connecting to the infra
	startupCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.WorkerTimeOutInSeconds)*time.Second)
	defer cancel()

	storage, closeStorage, err := bootstrap.OpenStorage(startupCtx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStorage()

	queue, err := bootstrap.OpenNotificationQueue(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer queue.Close()

	sweepLock, closeLock, err := bootstrap.OpenLock(startupCtx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLock()

	checks := []bootstrap.HealthCheck{{Name: "storage", Check: storage.Ping}}
	checks = append(checks, queue.Checks...)
	if sweepLock != nil {
		checks = append(checks, bootstrap.HealthCheck{Name: "redis", Check: sweepLock.Ping})
	}

	if queue.Broker != nil {
		deliverer, err := bootstrap.NewDeliverer(cfg)
		if err != nil {
			log.Fatal(err)
		}

		// The consumer name must be unique for each worker
		consumerName := "notifications:" + workerName
		slog.Info("Creating consumer for RabbitMQ", "queue_name", cfg.RabbitMQ.NotificationsQueueName, "consumer_name", consumerName)
		err = queue.Broker.ConsumeMessages(ctx, consumerName, cfg.RabbitMQ.NotificationsQueueName, deliverer.HandleMessage(ctx))
		if err != nil {
			log.Fatalf("Failed to start consuming messages: %v", err)
		}
		slog.Info("Consumer is created successfully", "queue_name", cfg.RabbitMQ.NotificationsQueueName, "consumer_name", consumerName)
	}

	loc := cfg.Sweep.Location()
	dispatcher := notification.NewDispatcher(queue.Queue, storage)
	scheduler := notification.NewScheduler(cfg.Sweep.Hour, cfg.Sweep.Minute, loc, dispatcher.DailySweepEntryPoint(ctx, time.Now, loc, sweepLock), slog.Default())
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Start(ctx)
	}()

	// Running HTTP Server in order to have liveness and readiness HTTP APIs
	srv := setUpHealthCheckerAPIs(cfg, checks)
	isReady.Store(true)

	slog.Info("Worker is running. To exit press CTRL+C", "worker_name", workerName)
	<-ctx.Done()
	slog.Info("Worker is shutting down...", "worker_name", workerName)
	isReady.Store(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.WorkerTimeOutInSeconds)*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Health server forced to shutdown", "error", err.Error())
	}
	<-schedulerDone
}

func setUpHealthCheckerAPIs(cfg *configs.Config, checks []bootstrap.HealthCheck) *http.Server {
	r := gin.Default()
	bootstrap.RegisterHealthRoutes(r, isReady.Load, checks)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: time.Duration(cfg.WorkerTimeOutInSeconds) * time.Second,
	}

	// Initializing the server in a goroutine so that
	// it won't block the graceful shutdown handling
	go func() {
		slog.Info("Starting health server", "port", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen", "error", err.Error())
		}
	}()

	return srv
}
