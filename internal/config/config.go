package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// SNIH web service.
	SNIHBaseURL   string
	SNIHTimeout   time.Duration
	SNIHCacheSize int
	SNIHCacheTTL  time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	SkipMalformedRecords bool

	// Constants stamped on every synthesized facility record.
	FacilityRegion    string
	FacilityTerritory string
	FacilitySet       string

	// Optional publication; empty KafkaBrokers disables it.
	KafkaBrokers []string
	KafkaTopic   string
	BatchSize    int

	MetadataRefreshInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	timeout, err := parsePositiveDuration("SNIH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parsePositiveDuration("SNIH_CACHE_TTL", "15m")
	if err != nil {
		return nil, err
	}
	refresh, err := parsePositiveDuration("METADATA_REFRESH_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseCacheSize()
	if err != nil {
		return nil, err
	}

	skip, err := parseBool("SKIP_MALFORMED_RECORDS", false)
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		SNIHBaseURL:   sharedcfg.EnvOrDefault("SNIH_BASE_URL", "https://snih.hidricosargentina.gob.ar/"),
		SNIHTimeout:   timeout,
		SNIHCacheSize: cacheSize,
		SNIHCacheTTL:  cacheTTL,

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		SkipMalformedRecords: skip,

		FacilityRegion:    sharedcfg.EnvOrDefault("FACILITY_REGION", "South America"),
		FacilityTerritory: sharedcfg.EnvOrDefault("FACILITY_TERRITORY", "Argentina"),
		FacilitySet:       sharedcfg.EnvOrDefault("FACILITY_SET", "SNIH"),

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "snih-records"),
		BatchSize:    batchSize,

		MetadataRefreshInterval: refresh,
	}

	if cfg.SNIHBaseURL == "" {
		return nil, errors.New("SNIH_BASE_URL is required")
	}
	if cfg.SNIHCacheTTL >= cfg.MetadataRefreshInterval {
		return nil, errors.New("SNIH_CACHE_TTL must be shorter than METADATA_REFRESH_INTERVAL")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// PublishEnabled reports whether a Kafka destination is configured.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseCacheSize() (int, error) {
	s := os.Getenv("SNIH_CACHE_SIZE")
	if s == "" {
		return 256, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid SNIH_CACHE_SIZE")
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}
