package patient

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/meditrack/meditrack/internal/platform/dates"
)

// Observer receives store operation outcomes. telemetry.Provider satisfies it.
type Observer interface {
	ObserveStoreOp(op, outcome string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveStoreOp(string, string, time.Duration) {}

// Store is the patient collection seen by the rest of the service. Reads are
// served from a cache that is refreshed on first use, on Refetch, and
// synchronously after every successful write. A failed write leaves the cache
// untouched.
//
// Concurrent updates to the same record from separate sessions are
// last-write-wins.
type Store struct {
	backend  Backend
	logger   zerolog.Logger
	observer Observer
	tracer   trace.Tracer

	mu     sync.Mutex
	cache  []*Record
	loaded bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithObserver reports operation metrics to o.
func WithObserver(o Observer) StoreOption {
	return func(s *Store) { s.observer = o }
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, logger zerolog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		backend:  backend,
		logger:   logger.With().Str("component", "patient_store").Str("backend", backend.Name()).Logger(),
		observer: nopObserver{},
		tracer:   otel.Tracer("github.com/meditrack/meditrack/internal/domain/patient"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// BackendName names the storage backend in use.
func (s *Store) BackendName() string { return s.backend.Name() }

// List returns every record, newest submission first.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	ctx, done := s.begin(ctx, "list")
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		done(nil)
		return cloneAll(s.cache), nil
	}
	err := s.load(ctx)
	done(err)
	return cloneAll(s.cache), err
}

// Refetch re-reads the backend, bypassing the cache.
func (s *Store) Refetch(ctx context.Context) ([]*Record, error) {
	ctx, done := s.begin(ctx, "refetch")
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.load(ctx)
	done(err)
	return cloneAll(s.cache), err
}

// Get returns the record with id from the cached list.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

// Create persists rec and returns it as stored, carrying the backend's id
// when the backend assigns its own.
func (s *Store) Create(ctx context.Context, rec *Record) (*Record, error) {
	ctx, done := s.begin(ctx, "create")
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := rec.clone()
	id, err := s.backend.Create(ctx, stored)
	if err != nil {
		err = s.fail("create", stored.ID, err)
		done(err)
		return nil, err
	}
	stored.ID = id

	if s.loaded {
		s.cache = append([]*Record{stored}, s.cache...)
		sortNewestFirst(s.cache)
	}
	done(nil)
	return stored.clone(), nil
}

// Update fully replaces the stored record with rec.ID.
func (s *Store) Update(ctx context.Context, rec *Record) error {
	ctx, done := s.begin(ctx, "update")
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := rec.clone()
	if err := s.backend.Replace(ctx, stored); err != nil {
		err = s.fail("update", stored.ID, err)
		done(err)
		return err
	}

	if s.loaded {
		replaced := false
		for i, r := range s.cache {
			if r.ID == stored.ID {
				s.cache[i] = stored
				replaced = true
				break
			}
		}
		if !replaced {
			s.cache = append(s.cache, stored)
		}
		sortNewestFirst(s.cache)
	}
	done(nil)
	return nil
}

// Delete permanently removes the record with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, done := s.begin(ctx, "delete")
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Remove(ctx, id); err != nil {
		err = s.fail("delete", id, err)
		done(err)
		return err
	}

	if s.loaded {
		for i, r := range s.cache {
			if r.ID == id {
				s.cache = append(s.cache[:i:i], s.cache[i+1:]...)
				break
			}
		}
	}
	done(nil)
	return nil
}

// Ping checks the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// load replaces the cache from the backend. Corrupt data keeps the last
// known good list and is not reported to the caller. Any other read failure
// also keeps the last known good list but is returned as a *StorageError.
func (s *Store) load(ctx context.Context) error {
	raw, err := s.backend.Load(ctx)
	if err != nil {
		var corrupt *CorruptDataError
		if errors.As(err, &corrupt) {
			s.logger.Warn().Err(err).Int("fallback_records", len(s.cache)).
				Msg("stored patient data is unreadable, serving last known good list")
			s.loaded = true
			return nil
		}
		s.logger.Error().Err(err).Int("fallback_records", len(s.cache)).Msg("failed to read patient records")
		return &StorageError{Op: "read", Backend: s.backend.Name(), Err: err}
	}

	records := make([]*Record, 0, len(raw))
	for _, entry := range raw {
		records = append(records, Repair(entry))
	}
	sortNewestFirst(records)
	s.cache = records
	s.loaded = true
	return nil
}

func (s *Store) fail(op, id string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateID) {
		return err
	}
	s.logger.Error().Err(err).Str("op", op).Str("record_id", id).Msg("patient store write failed")
	var corrupt *CorruptDataError
	if errors.As(err, &corrupt) {
		err = corrupt
	}
	return &StorageError{Op: op, Backend: s.backend.Name(), Err: err}
}

// begin opens a span for op and returns a func that closes it and records
// the outcome.
func (s *Store) begin(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "patient.store."+op,
		trace.WithAttributes(attribute.String("store.backend", s.backend.Name())))
	return ctx, func(err error) {
		outcome := "ok"
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			outcome = "not_found"
		case errors.Is(err, ErrDuplicateID):
			outcome = "conflict"
		default:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.observer.ObserveStoreOp(op, outcome, time.Since(start))
	}
}

// sortNewestFirst orders by submission timestamp, descending. Records with
// no parseable timestamp sort last.
func sortNewestFirst(records []*Record) {
	keys := make(map[*Record]time.Time, len(records))
	for _, r := range records {
		if ts, ok := dates.ParseTimestamp(r.SubmissionDate); ok {
			keys[r] = ts
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, aok := keys[records[i]]
		b, bok := keys[records[j]]
		if aok != bok {
			return aok
		}
		return a.After(b)
	})
}

func (r *Record) clone() *Record {
	c := *r
	c.DateOfBirth = cloneString(r.DateOfBirth)
	c.EffectiveDate = cloneString(r.EffectiveDate)
	c.LastDentalVisit = cloneString(r.LastDentalVisit)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneAll(records []*Record) []*Record {
	out := make([]*Record, len(records))
	for i, r := range records {
		out[i] = r.clone()
	}
	return out
}
