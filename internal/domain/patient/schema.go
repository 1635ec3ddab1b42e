package patient

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/meditrack/meditrack/internal/platform/dates"
)

// AdultAge is the age from which guardian details are no longer required.
const AdultAge = 18

// Schema validates intake forms. Per-field rules come from the validate
// struct tags on Form plus the date checks below; cross-field rules only run
// once every per-field rule has passed.
type Schema struct {
	validate *validator.Validate
	now      func() time.Time
}

// SchemaOption configures a Schema.
type SchemaOption func(*Schema)

// WithSchemaClock sets the clock used for "today" and for the minor check.
func WithSchemaClock(now func() time.Time) SchemaOption {
	return func(s *Schema) { s.now = now }
}

// NewSchema creates a Schema.
func NewSchema(opts ...SchemaOption) *Schema {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	s := &Schema{validate: v, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// Validate trims and checks in. On success it returns the normalized form,
// with every date field either nil or canonical YYYY-MM-DD. On failure it
// returns a *ValidationError.
func (s *Schema) Validate(in Form) (*Form, error) {
	f := in
	trimStrings(reflect.ValueOf(&f).Elem())

	errs := FieldErrors{}
	if err := s.validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("validate form: %w", err)
		}
		for _, fe := range verrs {
			if _, seen := errs[fe.Field()]; !seen {
				errs[fe.Field()] = message(fe)
			}
		}
	}

	today := dates.Truncate(s.now())
	f.DateOfBirth = s.checkDate(errs, "dateOfBirth", f.DateOfBirth, true, dates.MinDate, today)
	f.EffectiveDate = s.checkDate(errs, "effectiveDate", f.EffectiveDate, false, dates.MinDate, time.Time{})
	f.LastDentalVisit = s.checkDate(errs, "lastDentalVisit", f.LastDentalVisit, false, dates.MinDate, today)

	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	s.crossField(errs, &f)
	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return &f, nil
}

func (s *Schema) checkDate(errs FieldErrors, field string, v *string, required bool, min, max time.Time) *string {
	if dates.IsBlank(v) {
		if required {
			errs[field] = "This field is required"
		}
		return nil
	}
	d, ok := dates.ParseCanonical(*v)
	if !ok {
		errs[field] = "Invalid date"
		return v
	}
	if !min.IsZero() && d.Before(min) {
		errs[field] = "Date must be on or after " + dates.ToCanonicalString(min)
		return v
	}
	if !max.IsZero() && d.After(max) {
		errs[field] = "Date cannot be in the future"
		return v
	}
	canon := dates.ToCanonicalString(d)
	return &canon
}

func (s *Schema) crossField(errs FieldErrors, f *Form) {
	if f.PhysicianSpecialty == OtherOption && f.PhysicianSpecialtyOther == "" {
		errs["physicianSpecialtyOther"] = "Please specify the physician's specialty"
	}
	if f.BloodType == OtherOption && f.BloodTypeOther == "" {
		errs["bloodTypeOther"] = "Please specify the blood type"
	}
	if !SignatureMatches(f.Signature, BuildFullName(f.FirstName, f.MiddleName, f.LastName)) {
		errs["signature"] = "Signature must match your full name"
	}
	if f.DateOfBirth != nil {
		dob, _ := dates.ParseCanonical(*f.DateOfBirth)
		if dates.AgeOn(dob, s.now()) < AdultAge {
			if f.ParentOrGuardianName == "" {
				errs["parentOrGuardianName"] = "Parent or guardian name is required for patients under 18"
			}
			if f.GuardianEmail == "" {
				errs["guardianEmail"] = "Guardian email is required for patients under 18"
			}
		}
	}
}

// SignatureMatches compares a typed signature against the constructed full
// name, ignoring case and whitespace runs.
func SignatureMatches(signature, fullName string) bool {
	fold := func(s string) string { return strings.ToLower(strings.Join(strings.Fields(s), " ")) }
	return fold(signature) == fold(fullName)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	case "email":
		return "Invalid email address"
	case "oneof":
		return "Must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "eq":
		if fe.Field() == "consentGiven" {
			return "You must give consent to proceed"
		}
	}
	return "Invalid value"
}

func trimStrings(v reflect.Value) {
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		switch f.Kind() {
		case reflect.String:
			f.SetString(strings.TrimSpace(f.String()))
		case reflect.Ptr:
			if !f.IsNil() && f.Elem().Kind() == reflect.String {
				s := strings.TrimSpace(f.Elem().String())
				f.Set(reflect.ValueOf(&s))
			}
		case reflect.Struct:
			trimStrings(f)
		}
	}
}
