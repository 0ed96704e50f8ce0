package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/missing-persons/internal/bootstrap"
	"github.com/example/missing-persons/internal/config"
	"github.com/example/missing-persons/internal/domain/person"
	"github.com/example/missing-persons/internal/logging"
	"github.com/example/missing-persons/internal/roster"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logging.Component("watcher")

	cfg, err := config.LoadStore()
	if err != nil {
		log.WithError(err).Fatal("[Watcher] Invalid configuration")
	}
	if err := logging.Configure(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("[Watcher] Unknown LOG_LEVEL, keeping info")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Println("[Watcher] ========================================")
	log.Println("[Watcher] Missing Persons Roster Watcher")
	log.Println("[Watcher] ========================================")
	log.Printf("[Watcher] Store: %s", cfg.StoreBackend)

	remote, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("[Watcher] Failed to open store")
	}
	defer closeStore()

	syncer := roster.NewSynchronizer(remote)
	if err := syncer.Activate(ctx); err != nil {
		log.WithError(err).Fatal("[Watcher] Failed to load roster")
	}

	updates, stopWatching := syncer.Watch()
	defer stopWatching()

	go func() {
		var previous []person.Record
		for {
			select {
			case <-ctx.Done():
				return
			case current := <-updates:
				logChanges(log, previous, current)
				previous = current
			}
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Watcher] Shutting down...")
	cancel()
	if err := syncer.Deactivate(); err != nil {
		log.WithError(err).Warn("[Watcher] Roster deactivate")
	}
}

func logChanges(log *logrus.Entry, previous, current []person.Record) {
	before := make(map[string]person.Record, len(previous))
	for _, rec := range previous {
		before[rec.ID] = rec
	}
	found := 0
	for _, rec := range current {
		if rec.IsFound() {
			found++
		}
		old, ok := before[rec.ID]
		delete(before, rec.ID)
		switch {
		case !ok:
			log.WithFields(logrus.Fields{"id": rec.ID, "name": rec.Name}).Info("[Watcher] Reported missing")
		case rec.IsFound() && !old.IsFound():
			log.WithFields(logrus.Fields{"id": rec.ID, "name": rec.Name}).Info("[Watcher] Marked found")
		case !rec.IsFound() && old.IsFound():
			log.WithFields(logrus.Fields{"id": rec.ID, "name": rec.Name}).Info("[Watcher] Found mark reverted")
		}
	}
	for id := range before {
		log.WithField("id", id).Info("[Watcher] Removed")
	}
	log.WithFields(logrus.Fields{"records": len(current), "found": found}).Debug("[Watcher] Roster updated")
}
