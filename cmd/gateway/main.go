package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"booking-gatekeeper/internal/api"
	"booking-gatekeeper/internal/config"
	"booking-gatekeeper/internal/forwarder"
	"booking-gatekeeper/internal/metrics"
	"booking-gatekeeper/middleware/auth"
	"booking-gatekeeper/middleware/gatekeeper"
	"booking-gatekeeper/middleware/identity"
	"booking-gatekeeper/middleware/ratelimit"
	"booking-gatekeeper/middleware/ratelimit/application"
	"booking-gatekeeper/middleware/ratelimit/domain"
	"booking-gatekeeper/middleware/ratelimit/infra"
	"booking-gatekeeper/middleware/validate"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()

	var rdb *redis.Client
	if cfg.RateBackend == config.BackendRedis || cfg.StatsBackend == config.StatsRedis {
		// ContextTimeoutEnabled faz os prazos de contexto (store, stats, health) valerem no socket.
		rdb = redis.NewClient(&redis.Options{
			Addr:                  cfg.RedisAddr,
			Password:              cfg.RedisPassword,
			DB:                    cfg.RedisDB,
			ContextTimeoutEnabled: true,
		})
		defer func() { _ = rdb.Close() }()
	}

	store, storeStatus := buildWindowStore(ctx, cfg, rdb, logger)

	stats, err := buildStatsStore(cfg, rdb, m)
	if err != nil {
		logger.Error("rate stats setup failed", "error", err)
		os.Exit(1)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		logger.Error("token service setup failed", "error", err)
		os.Exit(1)
	}

	engine, err := forwarder.New(cfg.EngineURL,
		forwarder.WithHTTPClient(&http.Client{Transport: engineTransport()}),
		forwarder.WithForwardTimeout(cfg.ForwardTimeout),
		forwarder.WithHealthTimeout(cfg.HealthTimeout),
		forwarder.WithLogger(logger),
		forwarder.WithErrorHook(m.EngineError),
	)
	if err != nil {
		logger.Error("invalid ENGINE_URL", "error", err)
		os.Exit(1)
	}

	var pool domain.SlotPool
	if cfg.ConcurrencyMax > 0 {
		pool = infra.NewChanPool(cfg.ConcurrencyMax)
		m.WatchPool(pool)
	}

	pipeline := gatekeeper.New(gatekeeper.Config{
		Validator: validate.New(validate.WithMaxBodyBytes(cfg.MaxBodyBytes)),
		Identity: identity.Resolver{
			Tokens: tokens,
			Origin: ratelimit.DefaultKeyFunc(cfg.RateKeyHeader, cfg.TrustXFF),
		},
		Limiter: ratelimit.Options{
			Service: &application.Service{
				Store: store,
				Windows: []domain.Window{
					{Name: domain.Sustained, Size: cfg.SustainedWindow, Limit: cfg.SustainedLimit},
					{Name: domain.Burst, Size: cfg.BurstWindow, Limit: cfg.BurstLimit},
				},
				StoreTimeout: cfg.RateStoreTimeout,
				Logger:       logger,
			},
			Stats:  stats,
			Logger: logger,
		},
		Tokens: tokens,
		Concurrency: ratelimit.ConcurrencyOptions{
			Pool:           pool,
			AcquireTimeout: cfg.ConcurrencyTimeout,
		},
		Logger: logger,
	})

	srvAPI := &api.Server{
		Engine: engine,
		Tokens: tokens,
		Credentials: auth.ClientCredentials{
			Secret:          cfg.ClientSecret,
			DefaultClientID: cfg.DefaultClientID,
		},
		TokenTTL: cfg.TokenTTL,
		Store:    storeStatus,
		Metrics:  m,
		Logger:   logger,

		HealthTimeout: cfg.HealthTimeout,
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srvAPI.Router(pipeline),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.ForwardTimeout + 5*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gatekeeper listening",
		"addr", cfg.ListenAddr,
		"engine", cfg.EngineURL,
		"rate_backend", storeStatus.Backend,
		"sustained", cfg.SustainedLimit, "sustained_window", cfg.SustainedWindow,
		"burst", cfg.BurstLimit, "burst_window", cfg.BurstWindow,
		"stats_backend", cfg.StatsBackend,
		"concurrency_max", cfg.ConcurrencyMax,
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// engineTransport mantém conexões ociosas com o motor entre requisições.
func engineTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 32
	t.IdleConnTimeout = 90 * time.Second
	return t
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// buildWindowStore escolhe o store de janelas. Redis que não responde no boot cai para
// memória pelo resto da vida do processo.
func buildWindowStore(ctx context.Context, cfg config.Config, rdb *redis.Client, logger *slog.Logger) (domain.WindowStore, api.StoreStatus) {
	if cfg.RateBackend == config.BackendRedis && rdb != nil {
		rs := infra.NewRedisStore(rdb, infra.WithKeyPrefix(cfg.RateKeyPrefix))

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rs.Ping(pingCtx)
		cancel()
		if err == nil {
			logger.Info("redis connection established for rate limiting", "addr", cfg.RedisAddr)
			return rs, api.StoreStatus{Backend: config.BackendRedis, Ping: rs.Ping}
		}
		logger.Warn("redis connection failed, rate limiting will use in-memory fallback",
			"addr", cfg.RedisAddr, "error", err)
	}

	ms := infra.NewMemoryStore()
	ms.StartJanitor(ctx)
	return ms, api.StoreStatus{Backend: config.BackendMemory}
}

func buildStatsStore(cfg config.Config, rdb *redis.Client, m *metrics.Metrics) (domain.StatsStore, error) {
	switch cfg.StatsBackend {
	case config.StatsMemory:
		return infra.NewMemoryStatsStore(), nil
	case config.StatsRedis:
		return infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.StatsPrefix),
			infra.WithStatsTTL(cfg.StatsTTL),
		), nil
	case config.StatsPrometheus:
		ps, err := infra.NewPrometheusStatsStore(m.Registry)
		if err != nil {
			return nil, err
		}
		return ps, nil
	default:
		return nil, nil
	}
}
