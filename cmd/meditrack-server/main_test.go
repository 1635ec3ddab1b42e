package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/meditrack/meditrack/internal/config"
	"github.com/meditrack/meditrack/internal/domain/patient"
	"github.com/meditrack/meditrack/internal/platform/auth"
	"github.com/meditrack/meditrack/internal/platform/storage"
	"github.com/meditrack/meditrack/internal/platform/telemetry"
	"github.com/meditrack/meditrack/migrations"
)

const intakeJSON = `{
	"firstName": "John", "lastName": "Doe", "dateOfBirth": "1985-03-12", "sex": "male",
	"mobileNo": "09171234567", "email": "j@d.com", "address": "123 St, City",
	"reasonForVisit": "Toothache", "consentGiven": true, "signature": "John Doe"
}`

func TestResolveSessionKey_FromEnv(t *testing.T) {
	key, generated, err := resolveSessionKey("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if generated {
		t.Error("expected configured key to be used")
	}
	if string(key) != "0123456789abcdef0123456789abcdef" {
		t.Errorf("unexpected key %q", key)
	}
}

func TestResolveSessionKey_Generated(t *testing.T) {
	a, generated, err := resolveSessionKey("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !generated || len(a) != 32 {
		t.Fatalf("expected generated 32-byte key, got %d bytes (generated=%v)", len(a), generated)
	}
	b, _, _ := resolveSessionKey("")
	if bytes.Equal(a, b) {
		t.Error("expected generated keys to differ")
	}
}

func TestValidateForm(t *testing.T) {
	var out bytes.Buffer
	if err := validateForm([]byte(intakeJSON), &out); err != nil {
		t.Fatalf("expected valid form, got %v", err)
	}
	if !strings.Contains(out.String(), `"dateOfBirth": "1985-03-12"`) {
		t.Errorf("expected normalized form printed, got %s", out.String())
	}

	out.Reset()
	err := validateForm([]byte(`{"firstName":"John"}`), &out)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) < 2 || !strings.HasPrefix(lines[0], "address: ") {
		t.Errorf("expected sorted field errors, got %q", out.String())
	}

	if err := validateForm([]byte(`{`), &out); err == nil || !strings.Contains(err.Error(), "parse form") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestMigrationSource(t *testing.T) {
	if got := migrationSource(filepath.Join(t.TempDir(), "missing")); got != fs.FS(migrations.FS) {
		t.Error("expected embedded migrations when the directory is missing")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_x.sql"), []byte("SELECT 1;"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Stat(migrationSource(dir), "001_x.sql"); err != nil {
		t.Errorf("expected directory on disk to be used: %v", err)
	}
}

func TestHashPasswordCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("s3cret\n"))
	cmd.SetArgs([]string{"hash-password"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")) != nil {
		t.Errorf("printed hash %q does not verify", hash)
	}
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	mem, err := openBackend(ctx, &config.Config{StorageBackend: config.BackendMemory}, zerolog.Nop())
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if mem.health.Name() != "memory" {
		t.Errorf("expected memory backend, got %s", mem.health.Name())
	}

	cfg := &config.Config{
		StorageBackend:       config.BackendFile,
		StorageDir:           t.TempDir(),
		StorageKey:           storage.DefaultKey,
		StorageEncryptionKey: strings.Repeat("ab", 32),
	}
	enc, err := openBackend(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if enc.backend.Name() != "file+aes-gcm" {
		t.Errorf("expected encrypted file backend, got %s", enc.backend.Name())
	}

	if _, err := openBackend(ctx, &config.Config{StorageBackend: "floppy"}, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestPrintSummaries(t *testing.T) {
	dob := "1985-03-12"
	rec := &patient.Record{ID: "p1", FullName: "John Doe", SubmissionDate: "2024-06-15T10:30:00.000Z"}
	rec.DateOfBirth = &dob
	rec.ReasonForVisit = strings.Repeat("x", 60)

	var out bytes.Buffer
	if err := printSummaries(&out, []*patient.Record{rec}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "John Doe") || !strings.Contains(out.String(), "1 record(s)") {
		t.Errorf("unexpected table:\n%s", out.String())
	}
	if strings.Contains(out.String(), strings.Repeat("x", 60)) {
		t.Error("expected long reason to be truncated")
	}
}

// testServer wires the full HTTP stack over an in-memory backend.
func testServer(t *testing.T) *echo.Echo {
	t.Helper()
	ctx := context.Background()
	cfg := &config.Config{
		Env:            "test",
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   100,
		RateLimitBurst: 100,
		BodyLimit:      "256K",
	}
	tel, err := telemetry.New(ctx, telemetry.Config{})
	if err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	docs := storage.NewMemoryDocuments()
	svc := newService(patient.NewDocumentBackend(docs), zerolog.Nop(), tel)

	hash, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	revoked := auth.NewRevocations(time.Minute)
	gate, err := auth.NewGate(auth.GateConfig{
		Username:     "doctor",
		PasswordHash: string(hash),
		SigningKey:   []byte(strings.Repeat("k", 32)),
	}, revoked, zerolog.Nop())
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	return newServer(cfg, zerolog.Nop(), tel, svc, gate, docs)
}

func serve(e *echo.Echo, method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestServer_IntakeToExport(t *testing.T) {
	e := testServer(t)

	if rec := serve(e, http.MethodPost, "/api/v1/intake", intakeJSON, ""); rec.Code != http.StatusCreated {
		t.Fatalf("intake: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := serve(e, http.MethodGet, "/api/v1/patients", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("patients without session: expected 401, got %d", rec.Code)
	}

	login := serve(e, http.MethodPost, "/api/v1/auth/login", `{"username":"doctor","password":"pw"}`, "")
	if login.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", login.Code)
	}
	var sess auth.Session
	if err := json.Unmarshal(login.Body.Bytes(), &sess); err != nil {
		t.Fatal(err)
	}

	list := serve(e, http.MethodGet, "/api/v1/patients", "", sess.Token)
	if list.Code != http.StatusOK || !strings.Contains(list.Body.String(), `"fullName":"John Doe"`) {
		t.Errorf("list: unexpected %d %s", list.Code, list.Body.String())
	}
	if list.Header().Get("Cache-Control") != "no-store" || list.Header().Get("X-Request-ID") == "" {
		t.Error("expected global middleware headers on the response")
	}

	export := serve(e, http.MethodGet, "/api/v1/patients/export", "", sess.Token)
	if export.Code != http.StatusOK || !bytes.HasPrefix(export.Body.Bytes(), []byte("PK")) {
		t.Errorf("export: unexpected %d", export.Code)
	}

	if rec := serve(e, http.MethodPost, "/api/v1/auth/logout", "", sess.Token); rec.Code != http.StatusNoContent {
		t.Errorf("logout: expected 204, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/api/v1/patients", "", sess.Token); rec.Code != http.StatusUnauthorized {
		t.Errorf("after logout: expected 401, got %d", rec.Code)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	e := testServer(t)

	if rec := serve(e, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", rec.Code)
	}
	storageHealth := serve(e, http.MethodGet, "/health/storage", "", "")
	if storageHealth.Code != http.StatusOK || !strings.Contains(storageHealth.Body.String(), `"backend":"memory"`) {
		t.Errorf("storage health: unexpected %d %s", storageHealth.Code, storageHealth.Body.String())
	}

	serve(e, http.MethodPost, "/api/v1/intake", `{}`, "")
	metrics := serve(e, http.MethodGet, "/metrics", "", "")
	if !strings.Contains(metrics.Body.String(), `meditrack_intake_submissions_total{outcome="invalid"} 1`) {
		t.Errorf("expected intake counter in metrics output")
	}
}

func TestServer_BodyLimit(t *testing.T) {
	e := testServer(t)
	big := `{"firstName":"` + strings.Repeat("a", 300<<10) + `"}`
	if rec := serve(e, http.MethodPost, "/api/v1/intake", big, ""); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}
