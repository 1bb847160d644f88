// internal/form/validate.go
//
// Server-side validation of posted auth forms.
//
// Context
//   Handlers bind posted values into small structs tagged for
//   go-playground/validator (`validate:"required,email"`), then call
//   Validate.  Failures come back as Errors keyed by the `form` tag so the
//   template can show a message beside the offending input.  A nil Errors
//   means the struct is clean.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Errors maps input name to a user-facing message.  The empty key holds a
// form-level message.
type Errors map[string]string

// Add records msg for field unless it already has one.
func (e Errors) Add(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return val
}

// Validate checks dst's `validate` tags.  It returns nil when dst is valid.
func Validate(dst any) Errors {
	err := v.Struct(dst)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return Errors{"": "Something went wrong.  Please try again."}
	}
	out := Errors{}
	for _, fe := range ves {
		out.Add(fe.Field(), message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return fmt.Sprintf("Must be at least %s characters.", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters.", fe.Param())
	case "eqfield":
		return "Passwords do not match."
	default:
		return "Invalid input."
	}
}
