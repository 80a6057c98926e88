package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Defaults used when a variable is unset
const (
	DefaultElasticsearchURL = "http://localhost:9200"
	DefaultListingsIndex    = "listings"
	DefaultRedisAddr        = "localhost:6379"
	DefaultSearchTimeout    = 10 * time.Second
	DefaultIndexTimeout     = 10 * time.Second
	DefaultRateTimeout      = 2 * time.Second
	DefaultLogLevel         = "info"
	DefaultScoringCacheSize = 10000
)

// Environment variable names
const (
	EnvElasticsearchURLs     = "ELASTICSEARCH_URLS"
	EnvElasticsearchUsername = "ELASTICSEARCH_USERNAME"
	EnvElasticsearchPassword = "ELASTICSEARCH_PASSWORD"
	EnvListingsIndex         = "LISTINGS_INDEX"
	EnvRedisAddr             = "REDIS_ADDR"
	EnvRedisPassword         = "REDIS_PASSWORD"
	EnvRedisDB               = "REDIS_DB"
	EnvSearchTimeout         = "SEARCH_TIMEOUT"
	EnvIndexTimeout          = "INDEX_TIMEOUT"
	EnvRateTimeout           = "RATE_TIMEOUT"
	EnvLogLevel              = "LOG_LEVEL"
	EnvScoringCacheSize      = "SCORING_CACHE_SIZE"
)

// Config holds the service configuration read from the environment
type Config struct {
	ElasticsearchURLs     []string `validate:"min=1,dive,url"`
	ElasticsearchUsername string
	ElasticsearchPassword string
	ListingsIndex         string `validate:"required,lowercase,excludesall=/*?<>"`

	RedisAddr     string `validate:"required,hostname_port"`
	RedisPassword string
	RedisDB       int `validate:"gte=0,lte=15"`

	SearchTimeout time.Duration `validate:"gt=0"`
	IndexTimeout  time.Duration `validate:"gt=0"`
	RateTimeout   time.Duration `validate:"gt=0"`

	LogLevel         string `validate:"oneof=debug info warn error"`
	ScoringCacheSize int    `validate:"gt=0"`
}

// Load reads the given .env files, or ./.env when none are named, into the
// process environment and builds a validated Config. Variables already set
// in the environment win over file values. A missing default .env is fine; a
// missing named file is an error.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("failed to read env files: %w", err)
	}

	return FromEnv()
}

// FromEnv builds a validated Config from the process environment only
func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		ElasticsearchURLs:     getList(EnvElasticsearchURLs, DefaultElasticsearchURL),
		ElasticsearchUsername: os.Getenv(EnvElasticsearchUsername),
		ElasticsearchPassword: os.Getenv(EnvElasticsearchPassword),
		ListingsIndex:         getEnv(EnvListingsIndex, DefaultListingsIndex),
		RedisAddr:             getEnv(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword:         os.Getenv(EnvRedisPassword),
		RedisDB:               getInt(EnvRedisDB, 0, &errs),
		SearchTimeout:         getDuration(EnvSearchTimeout, DefaultSearchTimeout, &errs),
		IndexTimeout:          getDuration(EnvIndexTimeout, DefaultIndexTimeout, &errs),
		RateTimeout:           getDuration(EnvRateTimeout, DefaultRateTimeout, &errs),
		LogLevel:              strings.ToLower(getEnv(EnvLogLevel, DefaultLogLevel)),
		ScoringCacheSize:      getInt(EnvScoringCacheSize, DefaultScoringCacheSize, &errs),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// getList splits a comma-separated variable, dropping empty entries
func getList(key, fallback string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, fallback), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getInt(key string, fallback int, errs *[]error) int {
	val := getEnv(key, "")
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

// getDuration accepts Go durations ("750ms", "5s") or a bare number of seconds
func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	val := getEnv(key, "")
	if val == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
