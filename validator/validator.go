package validator

import (
	"regexp"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/infinityplans/portal/internal"
)

// regIDRegex matches registration ids such as INF001 or INF1234.
var regIDRegex = regexp.MustCompile(`^[A-Z]{3}\d{3,}$`)

// Validator is a wrapper around the go-playground/validator package.
type Validator struct {
	validator *validator.Validate
}

// New creates a new Validator instance.
func New() *Validator {
	v := validator.New()

	// Register custom validation functions
	_ = v.RegisterValidation("phone", validatePhone)
	_ = v.RegisterValidation("isodate", validateISODate)
	_ = v.RegisterValidation("regid", validateRegID)

	return &Validator{
		validator: v,
	}
}

var (
	defaultValidator *Validator
	defaultOnce      sync.Once
)

// Default returns a shared Validator.
func Default() *Validator {
	defaultOnce.Do(func() { defaultValidator = New() })
	return defaultValidator
}

// Validate validates a struct using the validator package. Failures are
// returned as ValidationErrors.
func (v *Validator) Validate(s any) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	validationErrors := make(ValidationErrors, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		validationErrors = append(validationErrors, ValidationError{
			Field:   fieldErr.Namespace(),
			Message: getErrorMessage(fieldErr),
		})
	}
	return validationErrors
}

// validatePhone validates a phone number.
func validatePhone(fl validator.FieldLevel) bool {
	// If the field is empty, it's valid (use required tag if it's required)
	if fl.Field().String() == "" {
		return true
	}
	_, err := internal.SanitizeAndVerifyPhoneNumber(fl.Field().String())
	return err == nil
}

// isoLayouts are the extended ISO-8601 forms accepted for dates. Local
// date-times come from HTML date and datetime-local inputs.
var isoLayouts = []string{
	time.DateOnly,
	"2006-01",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	time.RFC3339Nano,
}

// validateISODate accepts blank values and the isoLayouts forms.
func validateISODate(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	for _, layout := range isoLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func validateRegID(fl validator.FieldLevel) bool {
	return regIDRegex.MatchString(fl.Field().String())
}
