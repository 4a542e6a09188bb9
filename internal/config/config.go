package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Get returns the environment value for key, or fallback when unset or empty.
func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Config is the server configuration read from the environment.
type Config struct {
	Port             string
	DatabaseURL      string
	DBPath           string
	SeedPath         string
	BaseLocation     string
	RoutingProvider  string
	GoogleMapsAPIKey string
	ORSAPIKey        string
	RedisURL         string
	RouteLockTTL     time.Duration
	WriteConcurrency int
	ProviderTimeout  time.Duration
	GeocodeCacheTTL  time.Duration
}

// Load reads Config from the environment and validates it.
// Callers load .env files beforehand.
func Load() (Config, error) {
	cfg := Config{
		Port:             Get("PORT", "8080"),
		DatabaseURL:      Get("DATABASE_URL", ""),
		DBPath:           Get("DB_PATH", "data/app.db"),
		SeedPath:         Get("SEED_PATH", "data/seeds/routes.json"),
		BaseLocation:     Get("BASE_LOCATION", "1901 W Madison St, Phoenix, AZ 85009"),
		RoutingProvider:  strings.ToLower(Get("ROUTING_PROVIDER", "google")),
		GoogleMapsAPIKey: Get("GOOGLE_MAPS_API_KEY", ""),
		ORSAPIKey:        Get("ORS_API_KEY", ""),
		RedisURL:         Get("REDIS_URL", ""),
	}

	var err error
	if cfg.RouteLockTTL, err = getDuration("ROUTE_LOCK_TTL", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.ProviderTimeout, err = getDuration("PROVIDER_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.GeocodeCacheTTL, err = getDuration("GEOCODE_CACHE_TTL", 30*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.WriteConcurrency, err = getInt("WRITE_CONCURRENCY", 8); err != nil {
		return Config{}, err
	}
	if cfg.WriteConcurrency < 1 {
		return Config{}, errors.New("config: WRITE_CONCURRENCY must be at least 1")
	}

	switch cfg.RoutingProvider {
	case "google":
		if cfg.GoogleMapsAPIKey == "" {
			return Config{}, errors.New("config: GOOGLE_MAPS_API_KEY is required for the google routing provider")
		}
	case "ors":
		if cfg.ORSAPIKey == "" {
			return Config{}, errors.New("config: ORS_API_KEY is required for the ors routing provider")
		}
	case "stub":
		// Local runs without a provider account.
	default:
		return Config{}, fmt.Errorf("config: unknown ROUTING_PROVIDER %q", cfg.RoutingProvider)
	}

	return cfg, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := Get(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := Get(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
