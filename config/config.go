package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Catalog    CatalogConfig
	Classifier ClassifierConfig
	Storage    StorageConfig
	Cache      CacheConfig
	Matching   MatchingConfig
	Scheduler  SchedulerConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// CatalogConfig holds catalog search API configuration
type CatalogConfig struct {
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// ClassifierConfig selects and configures the visual classifier.
// Mode "remote" calls the hosted classification API; mode "local"
// compares perceptual hashes in-process.
type ClassifierConfig struct {
	Mode              string `mapstructure:"mode"` // "remote" or "local"
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// StorageConfig holds object storage configuration for detection crops
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// CacheConfig holds retrieval cache configuration
type CacheConfig struct {
	Type string        `mapstructure:"type"` // "memory" or "sqlite"
	Path string        `mapstructure:"path"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// MatchingConfig holds pre-filter and decision thresholds
type MatchingConfig struct {
	PreFilterThreshold      float64 `mapstructure:"prefilter_threshold"`
	CandidateCap            int     `mapstructure:"candidate_cap"`
	VisualTieBreakThreshold float64 `mapstructure:"visual_tiebreak_threshold"`
}

// SchedulerConfig holds batch scheduler configuration
type SchedulerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	AdmissionBatch int           `mapstructure:"admission_batch"`
	AdmissionDelay time.Duration `mapstructure:"admission_delay"`
	ItemTimeout    time.Duration `mapstructure:"item_timeout"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/shelfmatch/")

	// Environment variable settings, e.g. SHELFMATCH_CATALOG_API_KEY
	v.SetEnvPrefix("SHELFMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Catalog defaults. API keys default to empty so viper binds
	// their environment variables during Unmarshal.
	v.SetDefault("catalog.api_key", "")
	v.SetDefault("catalog.base_url", "https://catalog.shelfmatch.io")
	v.SetDefault("catalog.requests_per_minute", 300)

	// Classifier defaults
	v.SetDefault("classifier.mode", "remote")
	v.SetDefault("classifier.api_key", "")
	v.SetDefault("classifier.base_url", "https://classify.shelfmatch.io")
	v.SetDefault("classifier.requests_per_minute", 60)

	// Storage defaults
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", "detection-crops")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.use_ssl", false)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.path", "shelfmatch-cache.db")
	v.SetDefault("cache.ttl", "24h")

	// Matching defaults
	v.SetDefault("matching.prefilter_threshold", 0.85)
	v.SetDefault("matching.candidate_cap", 10)
	v.SetDefault("matching.visual_tiebreak_threshold", 0.70)

	// Scheduler defaults
	v.SetDefault("scheduler.concurrency", 50)
	v.SetDefault("scheduler.admission_batch", 10)
	v.SetDefault("scheduler.admission_delay", "2s")
	v.SetDefault("scheduler.item_timeout", "2m")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Catalog.APIKey == "" {
		return fmt.Errorf("catalog API key is required (set SHELFMATCH_CATALOG_API_KEY)")
	}

	if config.Classifier.Mode != "remote" && config.Classifier.Mode != "local" {
		return fmt.Errorf("classifier mode must be 'remote' or 'local', got: %s", config.Classifier.Mode)
	}

	if config.Classifier.Mode == "remote" && config.Classifier.APIKey == "" {
		return fmt.Errorf("classifier API key is required when mode is 'remote' (set SHELFMATCH_CLASSIFIER_API_KEY)")
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "sqlite" {
		return fmt.Errorf("cache type must be 'memory' or 'sqlite', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "sqlite" && config.Cache.Path == "" {
		return fmt.Errorf("cache path is required when cache type is 'sqlite'")
	}

	if config.Matching.PreFilterThreshold < 0 || config.Matching.PreFilterThreshold > 1 {
		return fmt.Errorf("prefilter threshold must be in [0,1], got: %f", config.Matching.PreFilterThreshold)
	}

	if config.Scheduler.AdmissionBatch > config.Scheduler.Concurrency {
		return fmt.Errorf("admission batch (%d) must not exceed concurrency (%d)",
			config.Scheduler.AdmissionBatch, config.Scheduler.Concurrency)
	}

	return nil
}
