package config

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends selectable with STORAGE_BACKEND.
const (
	BackendFile      = "file"
	BackendRedis     = "redis"
	BackendPostgres  = "postgres"
	BackendMongo     = "mongo"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

const minSigningKeyLen = 32

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	StorageBackend       string `mapstructure:"STORAGE_BACKEND"`
	StorageDir           string `mapstructure:"STORAGE_DIR"`
	StorageKey           string `mapstructure:"STORAGE_KEY"`
	StorageEncryptionKey string `mapstructure:"STORAGE_ENCRYPTION_KEY"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32  `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir        string `mapstructure:"MIGRATIONS_DIR"`
	MongoURI             string `mapstructure:"MONGODB_URI"`
	MongoDatabase        string `mapstructure:"MONGODB_DATABASE"`
	FirestoreProjectID   string `mapstructure:"FIRESTORE_PROJECT_ID"`
	DocumentCollection   string `mapstructure:"DOCUMENT_COLLECTION"`

	DoctorUsername     string        `mapstructure:"DOCTOR_USERNAME"`
	DoctorPassword     string        `mapstructure:"DOCTOR_PASSWORD"`
	DoctorPasswordHash string        `mapstructure:"DOCTOR_PASSWORD_HASH"`
	SessionSigningKey  string        `mapstructure:"SESSION_SIGNING_KEY"`
	SessionTTL         time.Duration `mapstructure:"SESSION_TTL"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string   `mapstructure:"BODY_LIMIT"`

	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TraceSampleRate float64 `mapstructure:"TRACE_SAMPLE_RATE"`
}

var keys = []string{
	"PORT", "ENV",
	"STORAGE_BACKEND", "STORAGE_DIR", "STORAGE_KEY", "STORAGE_ENCRYPTION_KEY",
	"REDIS_URL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"MONGODB_URI", "MONGODB_DATABASE", "FIRESTORE_PROJECT_ID", "DOCUMENT_COLLECTION",
	"DOCTOR_USERNAME", "DOCTOR_PASSWORD", "DOCTOR_PASSWORD_HASH", "SESSION_SIGNING_KEY", "SESSION_TTL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"TRACING_ENABLED", "OTLP_ENDPOINT", "TRACE_SAMPLE_RATE",
}

// Load reads configuration from the environment and an optional .env file
// in the working directory. Environment variables win over .env values.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORAGE_BACKEND", BackendFile)
	v.SetDefault("STORAGE_DIR", "./data")
	v.SetDefault("STORAGE_KEY", "mediTrackPatients")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("MONGODB_DATABASE", "meditrack")
	v.SetDefault("DOCUMENT_COLLECTION", "patients")
	v.SetDefault("DOCTOR_USERNAME", "doctor")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("BODY_LIMIT", "256K")
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACE_SAMPLE_RATE", 1.0)

	// Bind explicitly so Unmarshal sees variables without defaults.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// EncryptionKey decodes STORAGE_ENCRYPTION_KEY. It returns nil when at-rest
// encryption is not configured.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.StorageEncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.StorageEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("STORAGE_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("STORAGE_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

// Validate checks that the configuration is safe to run: the selected
// backend has its connection settings, and production deployments carry a
// hashed doctor password and a strong session signing key.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendFile:
		if c.StorageDir == "" {
			return fmt.Errorf("STORAGE_DIR is required for the file backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
		if c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo backend")
		}
	case BackendFirestore:
		if c.FirestoreProjectID == "" {
			return fmt.Errorf("FIRESTORE_PROJECT_ID is required for the firestore backend")
		}
	case BackendMemory:
		if c.IsProduction() {
			return fmt.Errorf("the memory backend loses all records on restart and is refused in production")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of file, redis, postgres, mongo, firestore, memory; got %q", c.StorageBackend)
	}

	if c.StorageKey == "" {
		return fmt.Errorf("STORAGE_KEY must not be empty")
	}
	if _, err := c.EncryptionKey(); err != nil {
		return err
	}

	if c.DoctorUsername == "" {
		return fmt.Errorf("DOCTOR_USERNAME must not be empty")
	}
	if c.IsProduction() {
		if c.DoctorPasswordHash == "" {
			return fmt.Errorf("DOCTOR_PASSWORD_HASH is required in production")
		}
		if c.DoctorPassword != "" {
			return fmt.Errorf("DOCTOR_PASSWORD is for development only; use DOCTOR_PASSWORD_HASH in production")
		}
		if len(c.SessionSigningKey) < minSigningKeyLen {
			return fmt.Errorf("SESSION_SIGNING_KEY must be at least %d bytes in production", minSigningKeyLen)
		}
	} else if c.DoctorPasswordHash == "" && c.DoctorPassword == "" {
		return fmt.Errorf("one of DOCTOR_PASSWORD_HASH or DOCTOR_PASSWORD is required")
	}
	if c.SessionSigningKey != "" && len(c.SessionSigningKey) < minSigningKeyLen {
		return fmt.Errorf("SESSION_SIGNING_KEY must be at least %d bytes", minSigningKeyLen)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if _, err := c.BodyLimitBytes(); err != nil {
		return err
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATE must be between 0 and 1, got %v", c.TraceSampleRate)
	}
	return nil
}

var sizeUnits = []struct {
	suffix string
	mult   int64
}{
	{"GB", 1 << 30}, {"G", 1 << 30},
	{"MB", 1 << 20}, {"M", 1 << 20},
	{"KB", 1 << 10}, {"K", 1 << 10},
	{"B", 1},
}

// BodyLimitBytes parses BODY_LIMIT, a byte count with an optional K, M or G
// suffix ("256K", "1MB", "4096").
func (c *Config) BodyLimitBytes() (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(c.BodyLimit))
	mult := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			s, mult = strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), u.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("BODY_LIMIT must be a positive size such as 256K, got %q", c.BodyLimit)
	}
	return n * mult, nil
}
