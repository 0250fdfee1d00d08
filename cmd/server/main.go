/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the POS day-close server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load POS_* configuration, apply command-line overrides
  2. Initialize SQLite store
  3. Create the day-close ledger
  4. Run the boot check for yesterday (closes it when auto-close is on)
  5. Configure HTTP router, start the periodic boot check
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (override environment):
  -port        HTTP server port
  -db          SQLite database path; ":memory:" for an in-memory database
  -auto-close  Close yesterday automatically when it was left open

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the boot check scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/pos.db"

  # Report yesterday as pending instead of closing it, re-check every hour
  POS_BOOT_CHECK_INTERVAL=1h ./server -auto-close=false

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - dayclose/boot.go: Boot check
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/pos-engine/api"
	"github.com/warp/pos-engine/config"
	"github.com/warp/pos-engine/dayclose"
	"github.com/warp/pos-engine/pos"
	"github.com/warp/pos-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	autoClose := flag.Bool("auto-close", cfg.AutoClose, "close yesterday automatically at boot")
	flag.Parse()
	cfg.Port, cfg.DBPath, cfg.AutoClose = *port, *dbPath, *autoClose

	logger := config.NewLogger(cfg)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	ledger := dayclose.NewLedger(store, logger)

	// Boot check: yesterday only
	scheduler := api.NewBootCheckScheduler(ledger, cfg.AutoClose, cfg.BootCheckInterval, logger)
	report, err := scheduler.RunNow(context.Background())
	switch {
	case errors.Is(err, pos.ErrNoStores):
		logger.Warn("no stores configured; create one via POST /api/stores")
	case err != nil:
		logger.WithError(err).Error("boot check failed")
	case !report.Complete():
		logger.WithField("pending", report.Pending).Warn("previous day is not closed for every store")
	}

	if ok, message := ledger.IsOperational(context.Background()); !ok {
		logger.WithField("today", ledger.Today().String()).Warn(message)
	}

	handler := api.NewHandler(store, ledger, logger)
	handler.AutoClose = cfg.AutoClose
	handler.Scheduler = scheduler

	router := api.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler.Start()

	// Start server in goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"port": cfg.Port,
			"db":   cfg.DBPath,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
		return
	}

	logger.Info("server stopped")
}
