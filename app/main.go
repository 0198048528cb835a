package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/lysyi3m/forum-comb/app/api"
	"github.com/lysyi3m/forum-comb/app/cfg"
	"github.com/lysyi3m/forum-comb/app/fetch"
	"github.com/lysyi3m/forum-comb/app/forum"
	"github.com/lysyi3m/forum-comb/app/sources"
	"github.com/lysyi3m/forum-comb/app/store"
	"github.com/lysyi3m/forum-comb/app/tasks"
)

func main() {
	// .env is optional; real environment variables win either way
	_ = godotenv.Load()

	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Forum Comb", "version", appCfg.Version)

	configCache := sources.NewConfigCache(appCfg.SourcesDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load source configurations", "error", err)
		os.Exit(1)
	}
	slog.Info("Source configurations loaded", "count", configCache.GetConfigCount(), "dir", appCfg.SourcesDir)

	st := store.New(afero.NewOsFs(), appCfg.DataDir)
	client := fetch.NewClient(appCfg.UserAgent)
	filterer := sources.NewFilterer()
	contentExtractor := forum.NewContentExtractor()

	scheduler := tasks.NewScheduler(configCache, st, client, filterer, contentExtractor)

	if appCfg.RunOnce {
		if err := scheduler.RunOnce(context.Background()); err != nil {
			slog.Error("Batch run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval_seconds", appCfg.SchedulerInterval)
	scheduler.Start()
	defer scheduler.Stop()

	apiHandler := api.NewHandler(configCache, st, client, filterer, scheduler)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}
