package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/meditrack/meditrack/internal/config"
	"github.com/meditrack/meditrack/internal/domain/patient"
	"github.com/meditrack/meditrack/internal/platform/auth"
	"github.com/meditrack/meditrack/internal/platform/db"
	"github.com/meditrack/meditrack/internal/platform/middleware"
	"github.com/meditrack/meditrack/internal/platform/storage"
	"github.com/meditrack/meditrack/internal/platform/telemetry"
)

func runServer(ctx context.Context) error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	tel, err := telemetry.New(ctx, telemetry.Config{
		ServiceName:    "meditrack-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		TracingEnabled: cfg.TracingEnabled,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start telemetry")
	}

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StorageBackend).Msg("failed to open storage backend")
	}
	defer backend.Close(context.Background())
	logger.Info().Str("backend", backend.health.Name()).Msg("storage backend ready")

	svc := newService(backend.backend, logger, tel)
	if records, err := svc.List(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial patient load failed")
	} else {
		logger.Info().Int("records", len(records)).Msg("patient records loaded")
	}

	revoked := auth.NewRevocations(5 * time.Minute)
	gate, err := newGate(cfg, revoked, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure doctor login")
	}

	e := newServer(cfg, logger, tel, svc, gate, backend.health)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("telemetry shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newService(backend patient.Backend, logger zerolog.Logger, tel *telemetry.Provider) *patient.Service {
	store := patient.NewStore(backend, logger, patient.WithObserver(tel))
	return patient.NewService(patient.NewSchema(), patient.NewNormalizer(), store, logger, patient.WithIntakeObserver(tel))
}

func newGate(cfg *config.Config, revoked *auth.Revocations, logger zerolog.Logger) (*auth.Gate, error) {
	key, generated, err := resolveSessionKey(cfg.SessionSigningKey)
	if err != nil {
		return nil, err
	}
	if generated {
		logger.Warn().Msg("SESSION_SIGNING_KEY not set; generated a random key, sessions end on restart")
	}

	hash := cfg.DoctorPasswordHash
	if hash == "" {
		if hash, err = auth.HashPassword(cfg.DoctorPassword); err != nil {
			return nil, err
		}
		logger.Warn().Msg("using plaintext DOCTOR_PASSWORD; set DOCTOR_PASSWORD_HASH outside development")
	}

	return auth.NewGate(auth.GateConfig{
		Username:     cfg.DoctorUsername,
		PasswordHash: hash,
		SigningKey:   key,
		TTL:          cfg.SessionTTL,
	}, revoked, logger)
}

// newServer builds the echo instance with every route and middleware.
func newServer(cfg *config.Config, logger zerolog.Logger, tel *telemetry.Provider, svc *patient.Service, gate *auth.Gate, health storage.Pinger) *echo.Echo {
	bodyLimit, err := cfg.BodyLimitBytes()
	if err != nil {
		logger.Warn().Err(err).Msg("using 1MB body limit")
		bodyLimit = 1 << 20
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(tel.MetricsMiddleware())
	e.Use(tel.TracingMiddleware())
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{HSTS: cfg.IsProduction()}))
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{echo.HeaderContentDisposition, middleware.RequestIDHeader},
		AllowCredentials: true,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/storage", storage.HealthHandler(health))
	e.GET("/metrics", tel.PrometheusHandler())

	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}

	api := e.Group("/api/v1")
	auth.NewHandler(gate, cfg.IsProduction()).RegisterRoutes(api, middleware.RateLimit(rl))
	patient.NewHandler(svc).RegisterRoutes(api, gate.RequireSession(), middleware.RateLimit(rl))

	return e
}

// openedBackend is the storage selected by STORAGE_BACKEND. health is the
// raw storage client, which can report pool statistics.
type openedBackend struct {
	backend patient.Backend
	health  storage.Pinger
	closer  storage.Closer
}

func (o *openedBackend) Close(ctx context.Context) {
	if o.closer != nil {
		_ = o.closer.Close(ctx)
	}
}

func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*openedBackend, error) {
	key, err := cfg.EncryptionKey()
	if err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var snap storage.Snapshot
	var docs storage.Documents
	switch cfg.StorageBackend {
	case config.BackendFile:
		if snap, err = storage.NewFileSnapshot(cfg.StorageDir, cfg.StorageKey); err != nil {
			return nil, err
		}
	case config.BackendRedis:
		rc, err := storage.DialRedis(dialCtx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		snap = storage.NewRedisSnapshot(rc, cfg.StorageKey)
	case config.BackendPostgres:
		pool, err := db.NewPool(dialCtx, poolConfig(cfg))
		if err != nil {
			return nil, err
		}
		docs = storage.NewPostgresDocuments(pool)
	case config.BackendMongo:
		if docs, err = storage.DialMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.DocumentCollection); err != nil {
			return nil, err
		}
	case config.BackendFirestore:
		if docs, err = storage.DialFirestore(ctx, cfg.FirestoreProjectID, cfg.DocumentCollection); err != nil {
			return nil, err
		}
	case config.BackendMemory:
		docs = storage.NewMemoryDocuments()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	if snap != nil {
		out := &openedBackend{health: snap}
		out.closer, _ = snap.(storage.Closer)
		if key != nil {
			enc, err := storage.NewEncryptedSnapshot(snap, key)
			if err != nil {
				return nil, err
			}
			snap = enc
			out.health = enc
		}
		out.backend = patient.NewSnapshotBackend(snap)
		return out, nil
	}

	if key != nil {
		logger.Warn().Str("backend", docs.Name()).Msg("STORAGE_ENCRYPTION_KEY applies to snapshot backends only; documents are stored unencrypted")
	}
	out := &openedBackend{backend: patient.NewDocumentBackend(docs), health: docs}
	out.closer, _ = docs.(storage.Closer)
	return out, nil
}

// resolveSessionKey returns SESSION_SIGNING_KEY as bytes, or a random
// 32-byte key when it is unset. The second return value is true when a key
// was generated.
func resolveSessionKey(envValue string) ([]byte, bool, error) {
	if envValue != "" {
		return []byte(envValue), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate session signing key: %w", err)
	}
	return key, true, nil
}
