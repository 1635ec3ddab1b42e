package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrLocked             = errors.New("too many failed login attempts, try again later")
	ErrInvalidSession     = errors.New("invalid or expired session")
)

const (
	issuer            = "meditrack"
	maxFailedAttempts = 5
	lockDuration      = 15 * time.Minute
)

// Claims are carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
}

// Session is an issued doctor session.
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GateConfig configures the single doctor account and session signing.
type GateConfig struct {
	Username     string
	PasswordHash string
	SigningKey   []byte
	TTL          time.Duration
}

// Gate authenticates the doctor and issues signed session tokens. One Gate
// is created at startup and shared by every handler that needs it.
type Gate struct {
	username     []byte
	passwordHash []byte
	signingKey   []byte
	ttl          time.Duration
	revoked      *Revocations
	logger       zerolog.Logger
	now          func() time.Time

	mu          sync.Mutex
	failures    int
	lockedUntil time.Time
}

// NewGate validates cfg and returns a Gate. Sessions logged out early are
// recorded in revoked.
func NewGate(cfg GateConfig, revoked *Revocations, logger zerolog.Logger) (*Gate, error) {
	if cfg.Username == "" {
		return nil, fmt.Errorf("doctor username is required")
	}
	if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
		return nil, fmt.Errorf("doctor password hash: %w", err)
	}
	if len(cfg.SigningKey) == 0 {
		return nil, fmt.Errorf("session signing key is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Gate{
		username:     []byte(cfg.Username),
		passwordHash: []byte(cfg.PasswordHash),
		signingKey:   cfg.SigningKey,
		ttl:          ttl,
		revoked:      revoked,
		logger:       logger.With().Str("component", "auth_gate").Logger(),
		now:          time.Now,
	}, nil
}

// HashPassword returns a bcrypt hash suitable for GateConfig.PasswordHash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Login checks the credentials and issues a session. After
// maxFailedAttempts consecutive failures further attempts are refused with
// ErrLocked for lockDuration.
func (g *Gate) Login(ctx context.Context, username, password string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	if g.now().Before(g.lockedUntil) {
		g.mu.Unlock()
		return nil, ErrLocked
	}
	g.mu.Unlock()

	userOK := subtle.ConstantTimeCompare([]byte(username), g.username) == 1
	passErr := bcrypt.CompareHashAndPassword(g.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		g.recordFailure()
		return nil, ErrInvalidCredentials
	}

	g.mu.Lock()
	g.failures = 0
	g.mu.Unlock()

	now := g.now()
	expiresAt := now.Add(g.ttl)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Subject:   username,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.signingKey)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}

	g.logger.Info().Str("jti", claims.ID).Time("expires_at", expiresAt).Msg("doctor logged in")
	return &Session{Token: token, Username: username, ExpiresAt: expiresAt}, nil
}

func (g *Gate) recordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	if g.failures >= maxFailedAttempts {
		g.lockedUntil = g.now().Add(lockDuration)
		g.failures = 0
		g.logger.Warn().Time("locked_until", g.lockedUntil).Msg("doctor login locked after repeated failures")
		return
	}
	g.logger.Warn().Int("failures", g.failures).Msg("failed doctor login")
}

// Authenticate verifies token and returns its claims.
func (g *Gate) Authenticate(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return g.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	if claims.ID == "" || g.revoked.IsRevoked(claims.ID) {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// IsAuthenticated reports whether token is a live session.
func (g *Gate) IsAuthenticated(token string) bool {
	_, err := g.Authenticate(token)
	return err == nil
}

// Logout ends the session carried by token. Logging out an already invalid
// session is not an error.
func (g *Gate) Logout(token string) error {
	claims, err := g.Authenticate(token)
	if err != nil {
		return nil
	}
	g.revoked.Revoke(claims.ID, claims.ExpiresAt.Time)
	g.logger.Info().Str("jti", claims.ID).Msg("doctor logged out")
	return nil
}
