package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/infinityplans/portal/errors"
	"go.vocdoni.io/dvote/log"
)

// ValidatedModelKey is the context key of the validated request body.
type ValidatedModelKey struct{}

// ValidationError represents an individual validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a slice of ValidationError.
type ValidationErrors []ValidationError

// Error returns a string representation of the validation errors.
func (ve ValidationErrors) Error() string {
	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return sb.String()
}

// ValidateMiddleware decodes the JSON request body into a new instance of
// the model type and validates it. The validated instance is stored in the
// request context, and the body is restored for downstream handlers.
func (v *Validator) ValidateMiddleware(model any) func(next http.Handler) http.Handler {
	modelType := reflect.TypeOf(model)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			instance := reflect.New(modelType).Interface()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				errors.ErrMalformedBody.Write(w)
				return
			}
			if err := json.Unmarshal(body, instance); err != nil {
				errors.ErrMalformedBody.WithErr(err).Write(w)
				return
			}
			if err := v.Validate(instance); err != nil {
				log.Debugw("validation errors", "errors", err.Error())
				errors.ErrMalformedBody.WithErr(err).WithData(err).Write(w)
				return
			}
			ctx := context.WithValue(r.Context(), ValidatedModelKey{}, instance)
			r.Body = io.NopCloser(bytes.NewBuffer(body))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetValidatedModel retrieves the validated model from the context.
func GetValidatedModel(ctx context.Context) (any, bool) {
	model := ctx.Value(ValidatedModelKey{})
	return model, model != nil
}

// getErrorMessage returns a human-readable error message for a validation error.
func getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		return fmt.Sprintf("Must be at least %s characters long", err.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters long", err.Param())
	case "url":
		return "Invalid URL format"
	case "phone":
		return "Invalid phone number format"
	case "isodate":
		return "Invalid date, expected an ISO-8601 date such as 2024-01-15 or 2024-01-15T10:30"
	case "regid":
		return "Invalid registration id, expected something like INF001"
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", err.Param())
	default:
		return fmt.Sprintf("Invalid value: %s", err.Tag())
	}
}
