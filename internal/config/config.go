package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/playergen/playergen/internal/publish"
)

// Config carries everything a run needs that is not a CLI flag.
type Config struct {
	SourceDBPath   string
	TrackingDBPath string
	OutputDir      string
	GeneratorPath  string
	SessionPath    string
	MaxRetries     int
	Spaces         publish.SpacesConfig
}

// PublishEnabled reports whether object-storage publishing is configured.
// Without a bucket the run is local-only and result URLs stay empty.
func (c *Config) PublishEnabled() bool {
	return c.Spaces.Bucket != ""
}

func Load() (*Config, error) {
	cfg := &Config{
		SourceDBPath:   getEnv("PLAYERGEN_SOURCE_DB", "players.db"),
		TrackingDBPath: getEnv("PLAYERGEN_TRACKING_DB", "tracking.db"),
		OutputDir:      getEnv("PLAYERGEN_OUTPUT_DIR", "./output"),
		GeneratorPath:  getEnv("PLAYERGEN_GENERATOR_PATH", ""),
		SessionPath:    getEnv("PLAYERGEN_SESSION_PATH", ""),
		Spaces: publish.SpacesConfig{
			OriginEndpoint: getEnv("PLAYERGEN_DO_ORIGIN_ENDPOINT", ""),
			CDNEndpoint:    getEnv("PLAYERGEN_DO_CDN_ENDPOINT", ""),
			Bucket:         getEnv("PLAYERGEN_DO_BUCKET", ""),
			AccessKey:      getEnv("PLAYERGEN_DO_ACCESS_KEY", ""),
			SecretKey:      getEnv("PLAYERGEN_DO_SECRET_KEY", ""),
		},
	}

	if cfg.GeneratorPath == "" {
		return nil, errors.New("PLAYERGEN_GENERATOR_PATH must not be empty")
	}

	var err error
	cfg.MaxRetries, err = getEnvInt("PLAYERGEN_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("PLAYERGEN_MAX_RETRIES: %w", err)
	}
	if cfg.MaxRetries < 1 {
		return nil, errors.New("PLAYERGEN_MAX_RETRIES must be > 0")
	}

	if cfg.Spaces.Bucket != "" {
		if cfg.Spaces.AccessKey == "" || cfg.Spaces.SecretKey == "" {
			return nil, errors.New("PLAYERGEN_DO_BUCKET is set but access credentials are missing")
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}
