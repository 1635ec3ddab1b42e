package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DOCTOR_PASSWORD", "password123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.StorageBackend != BackendFile || cfg.StorageDir != "./data" {
		t.Errorf("expected file backend in ./data, got %s %s", cfg.StorageBackend, cfg.StorageDir)
	}
	if cfg.StorageKey != "mediTrackPatients" {
		t.Errorf("expected storage key mediTrackPatients, got %s", cfg.StorageKey)
	}
	if cfg.SessionTTL != 12*time.Hour {
		t.Errorf("expected 12h session TTL, got %v", cfg.SessionTTL)
	}
	if cfg.DBMaxConns != 10 || cfg.DBMinConns != 2 {
		t.Errorf("expected pool 2..10, got %d..%d", cfg.DBMinConns, cfg.DBMaxConns)
	}
	if cfg.RateLimitRPS != 5 || cfg.RateLimitBurst != 10 {
		t.Errorf("expected rate limit 5/10, got %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("unexpected CORS origins %v", cfg.CORSOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", " Redis ")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StorageBackend != BackendRedis {
		t.Errorf("expected redis backend, got %q", cfg.StorageBackend)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("expected 30m TTL, got %v", cfg.SessionTTL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("unexpected CORS origins %v", cfg.CORSOrigins)
	}
	if !cfg.TracingEnabled {
		t.Error("expected tracing enabled")
	}
}

func validConfig() *Config {
	return &Config{
		Env:            "development",
		StorageBackend: BackendFile,
		StorageDir:     "./data",
		StorageKey:     "mediTrackPatients",
		DoctorUsername: "doctor",
		DoctorPassword: "password123",
		SessionTTL:     time.Hour,
		RateLimitRPS:   5,
		RateLimitBurst: 10,
		DBMaxConns:     10,
		DBMinConns:     2,
		BodyLimit:      "256K",
	}
}

func TestValidate(t *testing.T) {
	strongKey := strings.Repeat("k", 32)
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown backend", func(c *Config) { c.StorageBackend = "sqlite" }, "STORAGE_BACKEND"},
		{"redis without url", func(c *Config) { c.StorageBackend = BackendRedis }, "REDIS_URL"},
		{"postgres without url", func(c *Config) { c.StorageBackend = BackendPostgres }, "DATABASE_URL"},
		{"postgres pool inverted", func(c *Config) {
			c.StorageBackend = BackendPostgres
			c.DatabaseURL = "postgres://x"
			c.DBMinConns = 20
		}, "DB_MIN_CONNS"},
		{"mongo without uri", func(c *Config) { c.StorageBackend = BackendMongo }, "MONGODB_URI"},
		{"firestore without project", func(c *Config) { c.StorageBackend = BackendFirestore }, "FIRESTORE_PROJECT_ID"},
		{"memory in production", func(c *Config) {
			c.Env = "production"
			c.StorageBackend = BackendMemory
		}, "memory"},
		{"encryption key not hex", func(c *Config) { c.StorageEncryptionKey = "zz" }, "not valid hex"},
		{"encryption key short", func(c *Config) { c.StorageEncryptionKey = "abcd" }, "32 bytes"},
		{"encryption key ok", func(c *Config) { c.StorageEncryptionKey = strings.Repeat("ab", 32) }, ""},
		{"no credentials", func(c *Config) { c.DoctorPassword = "" }, "DOCTOR_PASSWORD"},
		{"production needs hash", func(c *Config) {
			c.Env = "production"
			c.DoctorPassword = ""
			c.SessionSigningKey = strongKey
		}, "DOCTOR_PASSWORD_HASH"},
		{"production refuses plaintext", func(c *Config) {
			c.Env = "production"
			c.DoctorPasswordHash = "$2a$10$abc"
			c.SessionSigningKey = strongKey
		}, "development only"},
		{"production needs signing key", func(c *Config) {
			c.Env = "production"
			c.DoctorPassword = ""
			c.DoctorPasswordHash = "$2a$10$abc"
		}, "SESSION_SIGNING_KEY"},
		{"production ok", func(c *Config) {
			c.Env = "production"
			c.DoctorPassword = ""
			c.DoctorPasswordHash = "$2a$10$abc"
			c.SessionSigningKey = strongKey
		}, ""},
		{"short signing key", func(c *Config) { c.SessionSigningKey = "short" }, "at least 32"},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }, "SESSION_TTL"},
		{"zero rate", func(c *Config) { c.RateLimitRPS = 0 }, "RATE_LIMIT"},
		{"sample rate", func(c *Config) { c.TraceSampleRate = 1.5 }, "TRACE_SAMPLE_RATE"},
		{"bad body limit", func(c *Config) { c.BodyLimit = "lots" }, "BODY_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBodyLimitBytes(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"256K", 256 << 10},
		{"256kb", 256 << 10},
		{"1M", 1 << 20},
		{" 2 MB ", 2 << 20},
		{"1G", 1 << 30},
		{"4096", 4096},
		{"512B", 512},
	}
	for _, tt := range tests {
		got, err := (&Config{BodyLimit: tt.in}).BodyLimitBytes()
		if err != nil || got != tt.want {
			t.Errorf("BodyLimitBytes(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}

	for _, bad := range []string{"", "K", "-1M", "1T", "abc"} {
		if _, err := (&Config{BodyLimit: bad}).BodyLimitBytes(); err == nil {
			t.Errorf("BodyLimitBytes(%q): expected error", bad)
		}
	}
}

func TestEncryptionKey(t *testing.T) {
	c := validConfig()
	key, err := c.EncryptionKey()
	if err != nil || key != nil {
		t.Errorf("expected no key, got %v %v", key, err)
	}

	c.StorageEncryptionKey = strings.Repeat("01", 32)
	key, err = c.EncryptionKey()
	if err != nil || len(key) != 32 {
		t.Errorf("expected 32-byte key, got %d %v", len(key), err)
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() || !c.IsProduction() {
		t.Error("expected production mode")
	}
}
