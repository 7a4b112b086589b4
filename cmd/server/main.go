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

	"github.com/sf7293/tmanager/configs"
	"github.com/sf7293/tmanager/internal/audit"
	"github.com/sf7293/tmanager/internal/bootstrap"
	"github.com/sf7293/tmanager/internal/notification"
	"github.com/sf7293/tmanager/internal/server"
)

var isReady atomic.Bool

func main() {
	cfg := configs.InitConfig()
	cfg.InitLogger()

	// Setting up a context with cfg.ServerTimeOutInSeconds seconds time out, which limits the time spent on connecting to the infra
	startupCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerTimeOutInSeconds)*time.Second)
	defer cancel()

	if cfg.StorageBackend == configs.StorageBackendPostgres {
		if err := bootstrap.MigrateUp(cfg.Database.ToMigrationUri()); err != nil {
			log.Fatal(err)
		}
	}

	storage, closeStorage, err := bootstrap.OpenStorage(startupCtx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStorage()

	queue, err := bootstrap.OpenNotificationQueue(context.Background(), cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer queue.Close()

	taskLock, closeLock, err := bootstrap.OpenLock(startupCtx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLock()

	checks := []bootstrap.HealthCheck{{Name: "storage", Check: storage.Ping}}
	checks = append(checks, queue.Checks...)
	if taskLock != nil {
		checks = append(checks, bootstrap.HealthCheck{Name: "redis", Check: taskLock.Ping})
	}

	serverLogic := server.NewServerLogic(
		storage,
		audit.NewRecorder(),
		notification.NewDispatcher(queue.Queue, storage),
		taskLock,
		cfg.TaskLockTTL(),
		cfg.Notification.EnqueueTimeout(),
	)

	router := setupHTTPServer(serverLogic, isReady.Load, checks)
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: time.Duration(cfg.ServerTimeOutInSeconds) * time.Second,
	}

	// Initializing the server in a goroutine so that
	// it won't block the graceful shutdown handling below
	go func() {
		slog.Info("Starting server", "port", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()
	isReady.Store(true)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")
	isReady.Store(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerTimeOutInSeconds)*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err.Error())
	}

	// Pending notification hand-offs finish before the queue is closed by the deferred calls.
	serverLogic.Wait()
	slog.Info("Server exiting")
}
