package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application's infrastructure configuration,
// loaded from environment variables. Per-source crawl settings live in
// the sources file instead.
type Config struct {
	// Store configuration
	StoreBackend      string // "xlsx" or "redis"
	XLSXPath          string
	RedisAddr         string
	RedisDB           int
	RedisKeyPrefix    string
	RedisStreamMaxLen int64

	// Memcache configuration; empty means in-process cooldown only
	MemcacheAddr string
	CooldownTTL  time.Duration

	// Crawl pacing
	HumanDelayMin    time.Duration
	HumanDelayMax    time.Duration
	RecoveryDelayMin time.Duration
	RecoveryDelayMax time.Duration
	// MinRequestInterval is the hard floor between any two requests to
	// the same source
	MinRequestInterval time.Duration

	// CrawlInterval between full runs; zero means a single run
	CrawlInterval time.Duration

	// SourcesPath points at the per-source YAML table
	SourcesPath string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamMaxLen, _ := strconv.ParseInt(getEnv("REDIS_STREAM_MAXLEN", "10000"), 10, 64)

	return &Config{
		StoreBackend:       getEnv("STORE_BACKEND", "xlsx"),
		XLSXPath:           getEnv("XLSX_PATH", "deals.xlsx"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:            redisDB,
		RedisKeyPrefix:     getEnv("REDIS_KEY_PREFIX", "madeals"),
		RedisStreamMaxLen:  streamMaxLen,
		MemcacheAddr:       getEnv("MEMCACHE_ADDR", ""),
		CooldownTTL:        durationEnv("COOLDOWN_TTL_SECONDS", 3600),
		HumanDelayMin:      durationEnv("HUMAN_DELAY_MIN_SECONDS", 3),
		HumanDelayMax:      durationEnv("HUMAN_DELAY_MAX_SECONDS", 8),
		RecoveryDelayMin:   durationEnv("RECOVERY_DELAY_MIN_SECONDS", 15),
		RecoveryDelayMax:   durationEnv("RECOVERY_DELAY_MAX_SECONDS", 30),
		MinRequestInterval: durationEnv("REQUEST_MIN_INTERVAL_SECONDS", 1),
		CrawlInterval:      durationEnv("CRAWL_INTERVAL_SECONDS", 0),
		SourcesPath:        getEnv("SOURCES_PATH", "sources.yaml"),
		Environment:        getEnv("MADEAL_ENVIRONMENT", "development"),
	}
}

// Validate checks settings that would otherwise fail mid-run
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "xlsx", "redis":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want xlsx or redis)", c.StoreBackend)
	}

	if c.StoreBackend == "xlsx" && c.XLSXPath == "" {
		return fmt.Errorf("XLSX_PATH must not be empty")
	}
	if c.HumanDelayMax < c.HumanDelayMin {
		return fmt.Errorf("HUMAN_DELAY_MAX_SECONDS is below HUMAN_DELAY_MIN_SECONDS")
	}
	if c.RecoveryDelayMax < c.RecoveryDelayMin {
		return fmt.Errorf("RECOVERY_DELAY_MAX_SECONDS is below RECOVERY_DELAY_MIN_SECONDS")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// durationEnv reads a whole-second environment variable
func durationEnv(key string, defaultSeconds int) time.Duration {
	seconds, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultSeconds)))
	if err != nil {
		seconds = defaultSeconds
	}
	return time.Duration(seconds) * time.Second
}
