// cmd/server/main.go
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

	"golang.org/x/sync/errgroup"

	"github.com/hexamarkco/kifersaude-sub002/internal/app"
	"github.com/hexamarkco/kifersaude-sub002/internal/config"
	"github.com/hexamarkco/kifersaude-sub002/internal/jobs"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	if !cfg.EnvFileLoaded {
		log.Warn("No .env file found, relying on OS environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Startup failed", "error", err)
	}
	defer a.Close()

	var ticker *jobs.Ticker
	queued := make(chan string, 4)
	if cfg.CronEnabled {
		ticker, err = jobs.NewTicker(cfg.CronSpec, queued, log, service.JobProcessScheduled, service.JobProcessCampaigns)
		if err != nil {
			a.Close()
			log.Fatal("Invalid cron spec", "spec", cfg.CronSpec, "error", err)
		}
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server running", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if ticker != nil {
		worker := a.NewWorker(queued)
		ticker.Start()
		g.Go(func() error {
			defer ticker.Stop()
			worker.Start(gctx)
			return nil
		})
		log.Info("In-process scheduler enabled", "spec", cfg.CronSpec)
	}

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", "error", err)
		return
	}
	log.Info("Server stopped")
}
