package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrestor94/pliegos-ai/internal/api"
	"github.com/andrestor94/pliegos-ai/internal/app"
	"github.com/andrestor94/pliegos-ai/internal/config"
	"github.com/andrestor94/pliegos-ai/internal/pipeline"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}

	// Initialize pipeline.
	dispatcher := pipeline.NewDispatcher(a.Worker, cfg.WorkerCount, cfg.MaxQueueSize, cfg.JobTTL, log)
	dispatcher.Start(ctx)

	// Initialize HTTP server.
	var reports api.ReportStore
	if a.History != nil {
		reports = a.History
	}
	srv := api.NewServer(dispatcher, reports, a.Stats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		dispatcher.Stop()
		a.Close()
	}()

	log.Info("starting pliegos-ai",
		"port", cfg.Port,
		"provider", cfg.Provider,
		"model", cfg.AnalysisModel,
		"workers", cfg.WorkerCount,
		"output_dir", cfg.OutputDir)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}
