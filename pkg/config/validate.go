package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/openfroyo/deckhand/pkg/engine"
)

// NewValidator returns a validator that reports fields by their
// declaration (json) names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks decl's struct tags. Problems are reported as one
// ValidationError; the code is REQUIRED_ATTRIBUTE when a required field is
// missing.
func (l *Loader) Validate(decl *Declaration) error {
	return ValidateStruct(l.validate, decl)
}

// ValidateStruct runs v over s and translates the result.
func ValidateStruct(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return engine.NewValidationError("invalid declaration", err).WithCode(engine.ErrCodeValidation)
	}

	code := engine.ErrCodeValidation
	problems := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			code = engine.ErrCodeRequired
		}
		problems = append(problems, ValidationError{
			Path:    fieldPath(fe.Namespace()),
			Message: describe(fe),
		})
	}

	lines := make([]string, len(problems))
	for i, p := range problems {
		lines[i] = p.String()
	}
	return engine.NewValidationError(
		fmt.Sprintf("invalid declaration: %s", strings.Join(lines, "; ")),
		nil,
	).WithCode(code).WithDetail("problems", problems)
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}
