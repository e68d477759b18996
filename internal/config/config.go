package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	FallbackScoreTime = "score_time"
	FallbackFull      = "full"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Exam struct {
		PoolTTL             string   `yaml:"pool_ttl"`
		LockTTL             string   `yaml:"lock_ttl"`
		TieBreak            []string `yaml:"tie_break"`
		LeaderboardFallback string   `yaml:"leaderboard_fallback"`
	} `yaml:"exam"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Parse(data)
}

// Parse decodes YAML config and applies defaults.
func Parse(data []byte) (Config, error) {
	cfg := Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	switch cfg.Exam.LeaderboardFallback {
	case "":
		cfg.Exam.LeaderboardFallback = FallbackScoreTime
	case FallbackScoreTime, FallbackFull:
	default:
		return cfg, fmt.Errorf("exam.leaderboard_fallback: unknown mode %q", cfg.Exam.LeaderboardFallback)
	}
	seen := make(map[string]bool, len(cfg.Exam.TieBreak))
	for _, slug := range cfg.Exam.TieBreak {
		if slug == "" || seen[slug] {
			return cfg, fmt.Errorf("exam.tie_break: empty or repeated slug %q", slug)
		}
		seen[slug] = true
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
