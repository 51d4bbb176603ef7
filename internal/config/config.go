// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the alert service.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// DigestCron is the cron spec for the digest runs. Defaults to the
	// morning/evening pair "0 8,18 * * *".
	DigestCron string

	// MatchWindow caps how many recent listings one alert check scans.
	MatchWindow int

	// ScoringAPIURL points at the external relevance-scoring service.
	// Empty means scoring is disabled; everything else keeps working.
	ScoringAPIURL  string
	ScoringTimeout time.Duration
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	port := os.Getenv("ALERT_PORT")
	if port == "" {
		port = "8083"
	}

	digestCron := os.Getenv("DIGEST_CRON")
	if digestCron == "" {
		digestCron = "0 8,18 * * *"
	}

	window := 100
	if s := os.Getenv("MATCH_WINDOW"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("MATCH_WINDOW must be a positive integer, got %q", s)
		}
		window = v
	}

	scoringTimeout := 15 * time.Second
	if s := os.Getenv("SCORING_TIMEOUT_SECONDS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("SCORING_TIMEOUT_SECONDS must be a positive integer, got %q", s)
		}
		scoringTimeout = time.Duration(v) * time.Second
	}

	return &Config{
		Port:           port,
		DatabaseURL:    dbURL,
		RedisURL:       redisURL,
		DigestCron:     digestCron,
		MatchWindow:    window,
		ScoringAPIURL:  os.Getenv("SCORING_API_URL"),
		ScoringTimeout: scoringTimeout,
	}, nil
}
