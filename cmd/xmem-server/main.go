package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/scrypster/xmem/internal/config"
	"github.com/scrypster/xmem/internal/embedding"
	"github.com/scrypster/xmem/internal/engine"
	"github.com/scrypster/xmem/internal/server"
	"github.com/scrypster/xmem/internal/sources"
	"github.com/scrypster/xmem/internal/storage/sqlite"
)

func main() {
	sourcesPath := flag.String("sources", "", "Path to sources config file (default: {data}/sources.yaml)")
	flag.Parse()

	cfg := config.Load()
	if *sourcesPath != "" {
		cfg.Storage.SourcesPath = *sourcesPath
	}

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	store, err := sqlite.Open(filepath.Join(cfg.Storage.DataPath, "xmem.db"))
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Embedding stack: remote model with a deterministic fallback when a
	// model URL is configured, deterministic-only otherwise.
	var generator embedding.Generator = embedding.NewDeterministic()
	if cfg.Embedding.ModelURL != "" {
		model := embedding.NewModelGenerator(embedding.ModelConfig{
			URL:       cfg.Embedding.ModelURL,
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.ModelName,
			Dimension: cfg.Embedding.Dimension,
		})
		generator = embedding.NewFallback(model, embedding.NewDeterministic())
	}
	cache := embedding.NewCache(generator)

	manager := sources.NewManager(store, cfg.Embedding.Dimension)
	defer manager.Close()
	if _, err := os.Stat(cfg.Storage.SourcesPath); err == nil {
		if err := manager.LoadFromFile(ctx, cfg.Storage.SourcesPath); err != nil {
			log.Fatalf("Failed to load sources config: %v", err)
		}
		watcher := sources.NewWatcher(cfg.Storage.SourcesPath, manager)
		if err := watcher.Start(); err != nil {
			log.Printf("main: sources watcher disabled: %v", err)
		} else {
			defer watcher.Stop()
		}
	} else {
		log.Printf("main: no sources config at %s, sources must be registered via storage", cfg.Storage.SourcesPath)
	}

	coordinator := engine.NewCoordinator(store, cache, manager, engine.CoordinatorConfig{
		MaxAttempts: cfg.Sync.MaxAttempts,
		Workers:     cfg.Sync.Workers,
		RateLimit:   cfg.Sync.RateLimit,
	})

	importer := engine.NewImporter(coordinator, cfg.Sync.Workers)
	aggregator := engine.NewStatsAggregator(store, manager)

	addr, wsHub, err := server.Start(ctx, cfg, server.Deps{
		Coordinator: coordinator,
		Importer:    importer,
		Stats:       aggregator,
		Sources:     manager,
	})
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	coordinator.OnSyncComplete(wsHub.BroadcastSyncComplete)
	coordinator.Start(ctx)
	defer coordinator.Stop()

	// Started after the coordinator so the deferred Stops shut the
	// reconciler down first; its passes enqueue onto the coordinator.
	reconciler := engine.NewReconciler(store, manager, coordinator, 0)
	if err := reconciler.Start(cfg.Sync.ReconcileInterval); err != nil {
		log.Fatalf("Failed to start reconciler: %v", err)
	}
	defer reconciler.Stop()

	log.Printf("xmem server running at http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}
