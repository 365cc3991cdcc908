package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds process settings read from the environment. The engine
// document (campaigns, sources, prompts) lives in Document.
type Config struct {
	DatabaseURL      string
	RedisURL         string
	ConfigPath       string
	DBPath           string
	LogPath          string
	AdminAddr        string
	CloudAPIKey      string
	ApifyAPIKey      string
	PhantomBusterKey string
	HealthcheckMins  int
	Proxy            ProxyConfig
	Archive          ArchiveConfig
}

type ProxyConfig struct {
	URL string
}

// ArchiveConfig points at an S3-compatible bucket for raw scraper batches.
type ArchiveConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		ConfigPath:       getEnv("CONFIG_PATH", "config.yaml"),
		DBPath:           getEnv("DB_PATH", "engine.db"),
		LogPath:          getEnv("LOG_PATH", "engine.log"),
		AdminAddr:        getEnv("ADMIN_ADDR", ":8090"),
		CloudAPIKey:      os.Getenv("CLOUD_API_KEY"),
		ApifyAPIKey:      os.Getenv("APIFY_API_KEY"),
		PhantomBusterKey: os.Getenv("PHANTOMBUSTER_API_KEY"),
		HealthcheckMins:  getEnvInt("HEALTHCHECK_INTERVAL_MINUTES", 10),
		Proxy: ProxyConfig{
			URL: os.Getenv("SCRAPE_PROXY_URL"),
		},
		Archive: ArchiveConfig{
			Bucket:          os.Getenv("ARCHIVE_S3_BUCKET"),
			Region:          getEnv("ARCHIVE_S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("ARCHIVE_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("ARCHIVE_S3_ACCESS_KEY"),
			SecretAccessKey: os.Getenv("ARCHIVE_S3_SECRET_KEY"),
		},
	}

	if cfg.Proxy.URL != "" {
		if _, err := url.Parse(cfg.Proxy.URL); err != nil {
			return nil, fmt.Errorf("invalid SCRAPE_PROXY_URL: %w", err)
		}
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
