package patient

import (
	"context"

	"github.com/rs/zerolog"
)

// IntakeObserver counts public intake submissions by outcome.
type IntakeObserver interface {
	ObserveIntake(outcome string)
}

type nopIntakeObserver struct{}

func (nopIntakeObserver) ObserveIntake(string) {}

// Service ties validation, normalization and storage together.
type Service struct {
	schema     *Schema
	normalizer *Normalizer
	store      *Store
	intake     IntakeObserver
	logger     zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithIntakeObserver reports submission outcomes to o.
func WithIntakeObserver(o IntakeObserver) ServiceOption {
	return func(s *Service) { s.intake = o }
}

func NewService(schema *Schema, normalizer *Normalizer, store *Store, logger zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		schema:     schema,
		normalizer: normalizer,
		store:      store,
		intake:     nopIntakeObserver{},
		logger:     logger.With().Str("component", "patient_service").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit validates a public intake form and stores it as a new record.
func (s *Service) Submit(ctx context.Context, f Form) (*Record, error) {
	valid, err := s.schema.Validate(f)
	if err != nil {
		if _, ok := IsValidation(err); ok {
			s.intake.ObserveIntake("invalid")
		} else {
			s.intake.ObserveIntake("error")
		}
		return nil, err
	}
	rec, err := s.store.Create(ctx, s.normalizer.BuildNew(*valid))
	if err != nil {
		s.intake.ObserveIntake("error")
		return nil, err
	}
	s.intake.ObserveIntake("accepted")
	s.logger.Info().Str("record_id", rec.ID).Msg("intake form submitted")
	return rec, nil
}

// Validate checks f without storing anything.
func (s *Service) Validate(f Form) (*Form, error) {
	return s.schema.Validate(f)
}

func (s *Service) List(ctx context.Context) ([]*Record, error) {
	return s.store.List(ctx)
}

func (s *Service) Refetch(ctx context.Context) ([]*Record, error) {
	return s.store.Refetch(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.store.Get(ctx, id)
}

// Edit fully replaces the record with id by f. The id and submission date
// are kept unless opts say otherwise.
func (s *Service) Edit(ctx context.Context, id string, f Form, opts ...UpdateOption) (*Record, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	valid, err := s.schema.Validate(f)
	if err != nil {
		return nil, err
	}
	rec := s.normalizer.BuildUpdated(existing, *valid, opts...)
	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info().Str("record_id", rec.ID).Msg("patient record updated")
	return rec, nil
}

// Delete permanently removes the record with id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("record_id", id).Msg("patient record deleted")
	return nil
}

// Ping checks the storage backend.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// BackendName names the storage backend in use.
func (s *Service) BackendName() string {
	return s.store.BackendName()
}
