package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sesm/sesm/internal/journal"
	"github.com/sesm/sesm/internal/logger"
	"github.com/sesm/sesm/internal/memory"
	"github.com/sesm/sesm/internal/metrics"
	"github.com/sesm/sesm/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:  logger.LogLevel(cfg.Log.Level),
		Output: os.Stderr,
		JSON:   cfg.Log.JSON,
	})

	mem := memory.New(
		memory.WithDefaultTTL(cfg.Memory.DefaultTTL),
		memory.WithPromotionWindow(cfg.Memory.PromotionWindow),
		memory.WithLogger(log.With("component", "memory")),
	)

	opts := server.Options{
		Logger:     log.With("component", "http"),
		DefaultTTL: cfg.Memory.DefaultTTL,
	}

	if cfg.Server.Journal {
		db, err := journal.Open(log.With("component", "journal"))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer db.Close()
		mem.AddObserver(db)
		opts.Journal = db
	}

	m := metrics.New(mem)
	mem.AddObserver(m)
	opts.Metrics = m

	mem.StartSweeper(cfg.Memory.SweepInterval)
	defer mem.Stop()

	srv := server.New(mem, VersionString(), opts)
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(done)

	errCh := make(chan error, 1)
	go func() {
		log.Info("sesm serving", "addr", addr, "version", VersionString(),
			"ttl", cfg.Memory.DefaultTTL, "window", cfg.Memory.PromotionWindow, "journal", cfg.Server.Journal)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-done:
	}
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
