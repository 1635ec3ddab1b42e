package auth

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRevocations(sweepEvery time.Duration) (*Revocations, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)}
	r := NewRevocations(sweepEvery)
	r.now = clock.now
	return r, clock
}

func TestRevocations_RevokeUntilExpiry(t *testing.T) {
	r, clock := newTestRevocations(time.Hour)
	r.Revoke("sess-1", clock.t.Add(30*time.Minute))

	if !r.IsRevoked("sess-1") {
		t.Fatal("expected session revoked")
	}
	if r.IsRevoked("sess-2") {
		t.Error("expected unknown session not revoked")
	}

	clock.advance(31 * time.Minute)
	if r.IsRevoked("sess-1") {
		t.Error("expected revocation to lapse with the token")
	}
}

func TestRevocations_IgnoresAlreadyExpired(t *testing.T) {
	r, clock := newTestRevocations(time.Hour)
	r.Revoke("old", clock.t.Add(-time.Second))
	if r.Len() != 0 {
		t.Errorf("expected expired token not stored, got %d entries", r.Len())
	}
}

func TestRevocations_SweepsOnRevoke(t *testing.T) {
	r, clock := newTestRevocations(10 * time.Minute)
	r.Revoke("a", clock.t.Add(5*time.Minute))
	r.Revoke("b", clock.t.Add(time.Hour))

	clock.advance(6 * time.Minute)
	r.Revoke("c", clock.t.Add(time.Hour))
	if r.Len() != 3 {
		t.Fatalf("expected no sweep before interval, got %d entries", r.Len())
	}

	clock.advance(5 * time.Minute)
	r.Revoke("d", clock.t.Add(time.Hour))
	if r.Len() != 3 {
		t.Errorf("expected expired entry swept, got %d entries", r.Len())
	}
	if !r.IsRevoked("b") || !r.IsRevoked("d") {
		t.Error("expected live entries kept")
	}
}

func TestRevocations_Concurrent(t *testing.T) {
	r := NewRevocations(time.Minute)
	exp := time.Now().Add(time.Hour)

	var wg sync.WaitGroup
	const n = 100
	wg.Add(n * 2)
	for i := 0; i < n; i++ {
		jti := fmt.Sprintf("sess-%d", i)
		go func() {
			defer wg.Done()
			r.Revoke(jti, exp)
		}()
		go func() {
			defer wg.Done()
			_ = r.IsRevoked(jti)
		}()
	}
	wg.Wait()

	if r.Len() != n {
		t.Errorf("expected %d entries, got %d", n, r.Len())
	}
}
