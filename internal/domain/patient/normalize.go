package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meditrack/meditrack/internal/platform/dates"
)

// Normalizer turns validated forms into stored records.
type Normalizer struct {
	now   func() time.Time
	newID func() string
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithClock sets the clock used for submission timestamps.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) { n.now = now }
}

// WithIDGenerator sets the record id generator.
func WithIDGenerator(fn func() string) NormalizerOption {
	return func(n *Normalizer) { n.newID = fn }
}

// NewNormalizer creates a Normalizer backed by the wall clock and random UUIDs.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// BuildNew creates a record for a freshly validated form.
func (n *Normalizer) BuildNew(f Form) *Record {
	rec := &Record{
		ID:             n.newID(),
		SubmissionDate: dates.FormatTimestamp(n.now()),
		Form:           f,
	}
	derive(rec)
	return rec
}

type updateOptions struct {
	restamp        bool
	submissionDate string
}

// UpdateOption adjusts BuildUpdated.
type UpdateOption func(*updateOptions)

// Restamp sets the submission date of the updated record to now.
func Restamp() UpdateOption {
	return func(o *updateOptions) { o.restamp = true }
}

// WithSubmissionDate overrides the submission date of the updated record.
func WithSubmissionDate(ts string) UpdateOption {
	return func(o *updateOptions) { o.submissionDate = ts }
}

// BuildUpdated replaces every form field of existing with f. The id and
// submission date are carried over unless an option says otherwise.
func (n *Normalizer) BuildUpdated(existing *Record, f Form, opts ...UpdateOption) *Record {
	var o updateOptions
	for _, fn := range opts {
		fn(&o)
	}

	rec := &Record{
		ID:             existing.ID,
		SubmissionDate: existing.SubmissionDate,
		Form:           f,
	}
	switch {
	case o.submissionDate != "":
		rec.SubmissionDate = o.submissionDate
	case o.restamp:
		rec.SubmissionDate = dates.FormatTimestamp(n.now())
	}
	derive(rec)
	return rec
}

func derive(rec *Record) {
	rec.SchemaVersion = CurrentSchemaVersion
	rec.FullName = BuildFullName(rec.FirstName, rec.MiddleName, rec.LastName)
	if rec.PhysicianSpecialty != OtherOption {
		rec.PhysicianSpecialtyOther = ""
	}
	if rec.BloodType != OtherOption {
		rec.BloodTypeOther = ""
	}
	rec.DateOfBirth = canonicalOrNil(rec.DateOfBirth)
	rec.EffectiveDate = canonicalOrNil(rec.EffectiveDate)
	rec.LastDentalVisit = canonicalOrNil(rec.LastDentalVisit)
}

func canonicalOrNil(s *string) *string {
	out, ok := dates.NormalizePtr(s)
	if !ok {
		return nil
	}
	return out
}

// BuildFullName joins the name parts with single spaces, skipping an empty
// middle name.
func BuildFullName(first, middle, last string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{first, middle, last} {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
