package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/shelfmatch/backend/config"
	httpDelivery "github.com/shelfmatch/backend/internal/delivery/http"
	"github.com/shelfmatch/backend/internal/domain"
	"github.com/shelfmatch/backend/internal/infrastructure/audit"
	"github.com/shelfmatch/backend/internal/infrastructure/cache"
	"github.com/shelfmatch/backend/internal/infrastructure/catalog"
	"github.com/shelfmatch/backend/internal/infrastructure/classifier"
	"github.com/shelfmatch/backend/internal/infrastructure/storage"
	"github.com/shelfmatch/backend/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debug := cfg.Server.Environment == "development"

	log.Printf("Starting ShelfMatch Backend v1.0.0")
	log.Printf("Environment: %s", cfg.Server.Environment)
	log.Printf("Port: %s", cfg.Server.Port)
	log.Printf("Cache Type: %s", cfg.Cache.Type)
	log.Printf("Classifier Mode: %s", cfg.Classifier.Mode)

	// Initialize infrastructure dependencies
	cacheRepo, closeCache, err := buildCache(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer closeCache()

	catalogClient := catalog.NewClient(cfg.Catalog.APIKey, cfg.Catalog.BaseURL, cfg.Catalog.RequestsPerMinute)
	catalogClient.SetDebug(debug)
	log.Printf("Catalog API configured: %s (%d req/min)", cfg.Catalog.BaseURL, cfg.Catalog.RequestsPerMinute)

	candidateClassifier, err := buildClassifier(cfg, debug)
	if err != nil {
		log.Fatalf("Failed to initialize classifier: %v", err)
	}

	sink := audit.NewMemorySink()

	// Initialize usecase layer
	pipeline := usecase.NewItemPipeline(
		catalogClient,
		candidateClassifier,
		sink,
		cacheRepo,
		usecase.PipelineConfig{
			PreFilterThreshold:      cfg.Matching.PreFilterThreshold,
			CandidateCap:            cfg.Matching.CandidateCap,
			VisualTieBreakThreshold: cfg.Matching.VisualTieBreakThreshold,
			CacheTTL:                cfg.Cache.TTL,
			EnableDebugLogging:      debug,
		},
	)

	scheduler := usecase.NewScheduler(usecase.SchedulerConfig{
		Concurrency:        cfg.Scheduler.Concurrency,
		AdmissionBatch:     cfg.Scheduler.AdmissionBatch,
		AdmissionDelay:     cfg.Scheduler.AdmissionDelay,
		ItemTimeout:        cfg.Scheduler.ItemTimeout,
		EnableDebugLogging: debug,
	})

	runs := usecase.NewBatchService(pipeline, scheduler)

	log.Printf("Matching: threshold=%.2f, cap=%d, tiebreak=%.2f",
		cfg.Matching.PreFilterThreshold,
		cfg.Matching.CandidateCap,
		cfg.Matching.VisualTieBreakThreshold)
	log.Printf("Scheduler: concurrency=%d, batch=%d, delay=%s, timeout=%s",
		cfg.Scheduler.Concurrency,
		cfg.Scheduler.AdmissionBatch,
		cfg.Scheduler.AdmissionDelay,
		cfg.Scheduler.ItemTimeout)

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(runs, pipeline)

	// Setup router
	router := httpDelivery.SetupRouter(cfg, handler)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Server listening on %s", addr)

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// buildCache constructs the configured retrieval cache and returns a
// cleanup func for the sqlite variant.
func buildCache(cfg *config.Config) (domain.CacheRepository, func(), error) {
	switch cfg.Cache.Type {
	case "sqlite":
		sqliteCache, err := cache.NewSQLiteCache(cfg.Cache.Path)
		if err != nil {
			return nil, nil, err
		}
		return sqliteCache, func() { sqliteCache.Close() }, nil
	default:
		return cache.NewMemoryCache(), func() {}, nil
	}
}

// buildClassifier constructs either the remote classification client or
// the local perceptual hash classifier backed by object storage.
func buildClassifier(cfg *config.Config, debug bool) (domain.CandidateClassifier, error) {
	if cfg.Classifier.Mode == "remote" {
		client := classifier.NewClient(cfg.Classifier.APIKey, cfg.Classifier.BaseURL, cfg.Classifier.RequestsPerMinute)
		client.SetDebug(debug)
		return client, nil
	}

	store, err := storage.NewImageStore(
		cfg.Storage.Endpoint,
		cfg.Storage.AccessKey,
		cfg.Storage.SecretKey,
		cfg.Storage.Bucket,
		cfg.Storage.Region,
		cfg.Storage.UseSSL,
	)
	if err != nil {
		return nil, err
	}

	phash := classifier.NewPHashClassifier(store)
	phash.SetDebug(debug)
	return phash, nil
}

func init() {
	// Set log flags for better debugging
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)

	// .env is optional; real deployments configure via the environment
	_ = godotenv.Load()
}
