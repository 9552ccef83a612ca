package service

import (
	"errors"
	"reflect"
	"strings"

	"blogdraft-server/internal/domain"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the struct's validate tags and reports the first
// failure as a *domain.ValidationError.
func validateStruct(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domain.NewValidationError("", "invalid request: %v", err)
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return domain.NewValidationError(fe.Field(), "is required")
	case "min":
		return domain.NewValidationError(fe.Field(), "must be at least %s characters", fe.Param())
	case "max":
		return domain.NewValidationError(fe.Field(), "must be at most %s characters", fe.Param())
	default:
		return domain.NewValidationError(fe.Field(), "failed %q validation", fe.Tag())
	}
}
