// Package validation turns raw request input into checked values.
//
// Field-level checks run through a shared go-playground/validator instance whose
// field names come from the `form` struct tag, so error keys match the request
// parameter names. Failures are reported as FieldErrors, a field → messages map
// that is written as-is as a 400 response body.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/HanTheDev/chem-render-api/internal/render"
	"github.com/go-playground/validator/v10"
)

// NonFieldErrors holds messages that concern the request as a whole.
const NonFieldErrors = "non_field_errors"

type FieldErrors map[string][]string

func (fe FieldErrors) Add(field, message string) {
	fe[field] = append(fe[field], message)
}

func (fe FieldErrors) Merge(other FieldErrors) {
	for field, messages := range other {
		fe[field] = append(fe[field], messages...)
	}
}

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for field, messages := range fe {
		parts = append(parts, field+": "+strings.Join(messages, " "))
	}
	return strings.Join(parts, "; ")
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})

		validate.RegisterValidation("imageformat", func(fl validator.FieldLevel) bool {
			return render.IsSupportedFormat(fl.Field().String())
		})
	})

	return validate
}

// Struct validates s and returns nil when every rule passes.
func Struct(s interface{}) FieldErrors {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	errs := FieldErrors{}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		errs.Add(NonFieldErrors, err.Error())
		return errs
	}

	for _, fe := range validationErrs {
		errs.Add(fe.Field(), translateError(fe))
	}
	return errs
}

var errorMessages = map[string]string{
	"required":    "This field is required.",
	"email":       "Enter a valid email address.",
	"imageformat": "\"%v\" is not a valid choice.",
	"eqfield":     "Passwords do not match.",
}

func translateError(fe validator.FieldError) string {
	if template, ok := errorMessages[fe.Tag()]; ok {
		if strings.Contains(template, "%v") {
			return fmt.Sprintf(template, fe.Value())
		}
		return template
	}

	isString := fe.Kind() == reflect.String

	switch fe.Tag() {
	case "min":
		if isString {
			return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	default:
		return fmt.Sprintf("Failed %s validation.", fe.Tag())
	}
}
