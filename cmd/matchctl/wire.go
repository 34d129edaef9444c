package main

import (
	"github.com/shelfmatch/backend/config"
	"github.com/shelfmatch/backend/internal/domain"
	"github.com/shelfmatch/backend/internal/infrastructure/audit"
	"github.com/shelfmatch/backend/internal/infrastructure/cache"
	"github.com/shelfmatch/backend/internal/infrastructure/catalog"
	"github.com/shelfmatch/backend/internal/infrastructure/classifier"
	"github.com/shelfmatch/backend/internal/infrastructure/storage"
	"github.com/shelfmatch/backend/internal/usecase"
)

// buildPipeline wires a full item pipeline from configuration. The
// returned cleanup func closes the sqlite cache when one is in use.
func buildPipeline(cfg *config.Config, debug bool) (*usecase.ItemPipeline, *audit.MemorySink, func(), error) {
	var cacheRepo domain.CacheRepository
	cleanup := func() {}
	if cfg.Cache.Type == "sqlite" {
		sqliteCache, err := cache.NewSQLiteCache(cfg.Cache.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		cacheRepo = sqliteCache
		cleanup = func() { sqliteCache.Close() }
	} else {
		cacheRepo = cache.NewMemoryCache()
	}

	catalogClient := catalog.NewClient(cfg.Catalog.APIKey, cfg.Catalog.BaseURL, cfg.Catalog.RequestsPerMinute)
	catalogClient.SetDebug(debug)

	candidateClassifier, err := buildClassifier(cfg, debug)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	sink := audit.NewMemorySink()

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

	return pipeline, sink, cleanup, nil
}

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
