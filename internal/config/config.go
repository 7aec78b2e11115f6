// Package config carrega a configuração do gatekeeper a partir de variáveis de ambiente
// (com .env opcional).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"

	StatsNone       = "none"
	StatsMemory     = "memory"
	StatsRedis      = "redis"
	StatsPrometheus = "prometheus"
)

type Config struct {
	ListenAddr string

	EngineURL      string
	ForwardTimeout time.Duration
	HealthTimeout  time.Duration

	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	TokenTTL        time.Duration
	ClientSecret    string
	DefaultClientID string

	RateBackend      string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RateKeyPrefix    string
	RateStoreTimeout time.Duration

	SustainedLimit  int
	SustainedWindow time.Duration
	BurstLimit      int
	BurstWindow     time.Duration

	TrustXFF bool

	// RateKeyHeader vem do cliente: só use atrás de proxy que o sobrescreve,
	// senão cada valor novo é uma identidade nova para o limiter.
	RateKeyHeader string

	ConcurrencyMax     int
	ConcurrencyTimeout time.Duration

	StatsBackend string
	StatsPrefix  string
	StatsTTL     time.Duration

	MaxBodyBytes int64

	LogLevel  string
	LogFormat string
}

// Load lê .env (se existir) e as variáveis de ambiente, e valida o resultado.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv monta a Config sem validar.
func FromEnv() Config {
	cfg := Config{}
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", ":5005")

	cfg.EngineURL = getenvDefault("ENGINE_URL", "http://localhost:5006")
	cfg.ForwardTimeout = getenvDurationDefault("FORWARD_TIMEOUT", 30*time.Second)
	cfg.HealthTimeout = getenvDurationDefault("HEALTH_TIMEOUT", 5*time.Second)

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.JWTIssuer = getenvDefault("JWT_ISSUER", "beautycita-rasa")
	cfg.JWTAudience = getenvDefault("JWT_AUDIENCE", "beautycita-api")
	cfg.TokenTTL = getenvDurationDefault("TOKEN_TTL", 24*time.Hour)
	cfg.ClientSecret = os.Getenv("CLIENT_SECRET")
	cfg.DefaultClientID = getenvDefault("DEFAULT_CLIENT_ID", "beautycita_frontend")

	cfg.RateBackend = strings.ToLower(getenvDefault("RATE_BACKEND", BackendRedis))
	cfg.RedisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getenvIntDefault("REDIS_DB", 1)
	cfg.RateKeyPrefix = os.Getenv("RATE_KEY_PREFIX")
	cfg.RateStoreTimeout = getenvDurationDefault("RATE_STORE_TIMEOUT", 250*time.Millisecond)

	cfg.SustainedLimit = getenvIntDefault("RATE_SUSTAINED_LIMIT", 100)
	cfg.SustainedWindow = getenvDurationDefault("RATE_SUSTAINED_WINDOW", time.Hour)
	cfg.BurstLimit = getenvIntDefault("RATE_BURST_LIMIT", 10)
	cfg.BurstWindow = getenvDurationDefault("RATE_BURST_WINDOW", time.Minute)

	cfg.TrustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.RateKeyHeader = os.Getenv("RATE_KEY_HEADER")

	cfg.ConcurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 0)
	cfg.ConcurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.StatsBackend = strings.ToLower(getenvDefault("RATE_STATS_BACKEND", StatsPrometheus))
	cfg.StatsPrefix = getenvDefault("RATE_STATS_PREFIX", "gatekeeper:stats")
	cfg.StatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)

	cfg.MaxBodyBytes = int64(getenvIntDefault("MAX_BODY_BYTES", 64<<10))

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "json")
	return cfg
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return errors.New("CLIENT_SECRET is required")
	}
	u, err := url.Parse(c.EngineURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ENGINE_URL must be an absolute URL, got %q", c.EngineURL)
	}
	switch c.RateBackend {
	case BackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("REDIS_ADDR is required when RATE_BACKEND=redis")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("RATE_BACKEND must be redis or memory, got %q", c.RateBackend)
	}
	switch c.StatsBackend {
	case StatsNone, StatsMemory, StatsPrometheus:
	case StatsRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("REDIS_ADDR is required when RATE_STATS_BACKEND=redis")
		}
	default:
		return fmt.Errorf("RATE_STATS_BACKEND must be none, memory, redis or prometheus, got %q", c.StatsBackend)
	}
	if c.SustainedLimit <= 0 || c.BurstLimit <= 0 {
		return errors.New("RATE_SUSTAINED_LIMIT and RATE_BURST_LIMIT must be > 0")
	}
	if c.SustainedWindow <= 0 || c.BurstWindow <= 0 {
		return errors.New("RATE_SUSTAINED_WINDOW and RATE_BURST_WINDOW must be > 0")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be > 0")
	}
	if c.ConcurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("MAX_BODY_BYTES must be > 0")
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
