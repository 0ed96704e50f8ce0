package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/missing-persons/internal/api"
	"github.com/example/missing-persons/internal/bootstrap"
	"github.com/example/missing-persons/internal/command"
	"github.com/example/missing-persons/internal/config"
	"github.com/example/missing-persons/internal/logging"
	"github.com/example/missing-persons/internal/roster"
)

func main() {
	log := logging.Component("api")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("[API] Invalid configuration")
	}
	if err := logging.Configure(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("[API] Unknown LOG_LEVEL, keeping info")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Println("[API] ========================================")
	log.Println("[API] Missing Persons Roster")
	log.Println("[API] ========================================")
	log.Printf("[API] Store: %s", cfg.StoreBackend)
	log.Printf("[API] Media: %s", cfg.MediaBackend)

	remote, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("[API] Failed to open store")
	}
	defer closeStore()

	pipeline, closeMedia, err := bootstrap.OpenMedia(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("[API] Failed to open media store")
	}
	defer closeMedia()

	syncer := roster.NewSynchronizer(remote)
	if err := syncer.Activate(ctx); err != nil {
		log.WithError(err).Fatal("[API] Failed to load roster")
	}
	log.Printf("[API] Roster live with %d records", len(syncer.Snapshot()))

	cmdHandler := command.NewHandler(pipeline, remote, syncer)
	router := api.NewRouter(api.NewHandlers(cmdHandler, syncer, cfg.MediaMaxBytes))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Fatal("[API] Server error")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("[API] Server shutdown")
	}

	if err := syncer.Deactivate(); err != nil {
		log.WithError(err).Warn("[API] Roster deactivate")
	}
	cancel()
}
