package order

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"storefront-be/internal/apperr"

	"github.com/go-playground/validator/v10"
)

var inMobile = regexp.MustCompile(`^[6-9][0-9]{9}$`)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("in_mobile", func(fl validator.FieldLevel) bool {
		return inMobile.MatchString(fl.Field().String())
	})
	return v
}

// validateCustomer reports the first failing field as a validation error.
func validateCustomer(v *validator.Validate, c CustomerInfo) error {
	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return apperr.Validation("invalid customer info")
	}

	fe := ves[0]
	field := strings.TrimPrefix(fe.Namespace(), "CustomerInfo.")
	switch fe.Tag() {
	case "required":
		return apperr.Validation("customer %s is required", field)
	case "email":
		return apperr.Validation("customer email is invalid")
	case "in_mobile":
		return apperr.Validation("customer phone must be a 10-digit Indian mobile number")
	default:
		return apperr.Validation("customer %s is invalid", field)
	}
}
