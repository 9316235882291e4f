// Package validation adapts go-playground/validator failures to
// apperr.Validation with JSON field names.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"hradmin/internal/domain/apperr"
)

var Validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Struct validates v and returns an *apperr.Error of kind validation listing
// each failing field, or nil.
func Struct(v any, message string) error {
	err := Validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(message, apperr.FieldIssue{Field: "", Reason: err.Error()})
	}
	return apperr.Validation(message, Issues(verrs)...)
}

func Issues(verrs validator.ValidationErrors) []apperr.FieldIssue {
	out := make([]apperr.FieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, apperr.FieldIssue{Field: fe.Field(), Reason: reason(fe)})
	}
	return out
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required when " + fe.Param() + " is empty"
	case "email":
		return "must be a valid email address"
	case "datetime":
		return fmt.Sprintf("must match layout %s", fe.Param())
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "failed " + fe.Tag() + " validation"
}
