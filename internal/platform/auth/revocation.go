package auth

import (
	"sync"
	"time"
)

// Revocations holds the session ids (JWT jti) of doctors who logged out
// before their token expired. An entry is only meaningful until that expiry,
// after which the token fails validation on its own and the entry is swept.
type Revocations struct {
	mu         sync.Mutex
	expires    map[string]time.Time
	sweepEvery time.Duration
	lastSweep  time.Time
	now        func() time.Time
}

// NewRevocations returns an empty list that drops expired entries at most
// once per sweepEvery, piggybacking on Revoke calls.
func NewRevocations(sweepEvery time.Duration) *Revocations {
	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Minute
	}
	return &Revocations{
		expires:    make(map[string]time.Time),
		sweepEvery: sweepEvery,
		now:        time.Now,
	}
}

// Revoke marks jti as logged out until expiresAt.
func (r *Revocations) Revoke(jti string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) >= r.sweepEvery {
		r.sweepLocked(now)
	}
	if expiresAt.After(now) {
		r.expires[jti] = expiresAt
	}
}

// IsRevoked reports whether jti was logged out and has not yet expired.
func (r *Revocations) IsRevoked(jti string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.expires[jti]
	return ok && r.now().Before(exp)
}

// Len is the number of entries held, including expired ones not yet swept.
func (r *Revocations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.expires)
}

func (r *Revocations) sweepLocked(now time.Time) {
	for jti, exp := range r.expires {
		if !now.Before(exp) {
			delete(r.expires, jti)
		}
	}
	r.lastSweep = now
}
