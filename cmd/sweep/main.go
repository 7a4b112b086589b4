package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/sf7293/tmanager/configs"
	"github.com/sf7293/tmanager/internal/bootstrap"
	"github.com/sf7293/tmanager/internal/notification"
)

// sweep runs the daily overdue sweep once, for an external cron.
// Usage: sweep [YYYY-MM-DD]
// With a date the reminders are built for that day and the once-per-day lock is skipped.
func main() {
	cfg := configs.InitConfig()
	cfg.InitLogger()
	loc := cfg.Sweep.Location()

	var day time.Time
	if len(os.Args) > 1 {
		parsed, err := time.ParseInLocation("2006-01-02", os.Args[1], loc)
		if err != nil {
			log.Fatalf("Invalid day argument %q, it must be formatted as YYYY-MM-DD: %v", os.Args[1], err)
		}
		day = parsed
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.WorkerTimeOutInSeconds)*time.Second)
	defer cancel()

	storage, closeStorage, err := bootstrap.OpenStorage(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStorage()

	queue, err := bootstrap.OpenNotificationQueue(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	// The local backend drains its workers here before exiting.
	defer queue.Close()

	dispatcher := notification.NewDispatcher(queue.Queue, storage)
	if !day.IsZero() {
		slog.Info("Running the sweep for the given day", "day", day.Format("2006-01-02"))
		if _, err := dispatcher.RunDailySweep(ctx, day); err != nil {
			slog.Error("Daily sweep failed", "error", err.Error())
		}
		return
	}

	sweepLock, closeLock, err := bootstrap.OpenLock(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLock()

	dispatcher.DailySweepEntryPoint(ctx, time.Now, loc, sweepLock)()
}
