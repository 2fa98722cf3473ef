// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string

	RefreshInterval time.Duration
	UserAgent       string

	MaxConcurrentDownloads int
	RequestTimeout         time.Duration

	// ConditionalGetMaxAge is how long stored conditional-GET validators
	// stay usable before a full unconditional fetch is forced.
	ConditionalGetMaxAge time.Duration
	// TrustedHosts are exempt from the conditional-GET age limit.
	TrustedHosts []string

	// CacheControlHosts are the hosts whose Cache-Control max-age is
	// honored between fetches.
	CacheControlHosts []string

	// DisallowedHosts are never fetched.
	DisallowedHosts []string

	// ThrottledHosts get at most one fetch per ThrottleCooldown.
	ThrottledHosts   []string
	ThrottleCooldown time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:           "./data/feedsync.db",
		LogLevel:               "info",
		RefreshInterval:        30 * time.Minute,
		UserAgent:              "feedsync/1.0",
		MaxConcurrentDownloads: 500,
		RequestTimeout:         15 * time.Second,
		ConditionalGetMaxAge:   8 * 24 * time.Hour,
		CacheControlHosts:      []string{"openrss.org"},
		DisallowedHosts:        []string{"twitter.com", "www.twitter.com", "x.com", "www.x.com"},
		ThrottledHosts:         []string{"openrss.org"},
		ThrottleCooldown:       time.Hour,
	}

	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}

	var err error
	if cfg.RefreshInterval, err = durationEnv("REFRESH_INTERVAL_MINUTES", time.Minute, cfg.RefreshInterval); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT_SECONDS", time.Second, cfg.RequestTimeout); err != nil {
		return nil, err
	}
	if cfg.ConditionalGetMaxAge, err = durationEnv("CONDITIONAL_GET_MAX_AGE_DAYS", 24*time.Hour, cfg.ConditionalGetMaxAge); err != nil {
		return nil, err
	}
	if cfg.ThrottleCooldown, err = durationEnv("THROTTLE_COOLDOWN_MINUTES", time.Minute, cfg.ThrottleCooldown); err != nil {
		return nil, err
	}

	if v := os.Getenv("MAX_CONCURRENT_DOWNLOADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_CONCURRENT_DOWNLOADS %q", v)
		}
		cfg.MaxConcurrentDownloads = n
	}

	if v, ok := os.LookupEnv("TRUSTED_HOSTS"); ok {
		cfg.TrustedHosts = splitHosts(v)
	}
	if v, ok := os.LookupEnv("CACHE_CONTROL_HOSTS"); ok {
		cfg.CacheControlHosts = splitHosts(v)
	}
	if v, ok := os.LookupEnv("DISALLOWED_HOSTS"); ok {
		cfg.DisallowedHosts = splitHosts(v)
	}
	if v, ok := os.LookupEnv("THROTTLED_HOSTS"); ok {
		cfg.ThrottledHosts = splitHosts(v)
	}

	return cfg, nil
}

func durationEnv(name string, unit time.Duration, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return time.Duration(n) * unit, nil
}

func splitHosts(raw string) []string {
	var hosts []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		hosts = append(hosts, strings.ToLower(s))
	}
	return hosts
}
