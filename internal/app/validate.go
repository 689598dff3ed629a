package app

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
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
	_ = v.RegisterValidation("singleline", func(fl validator.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), unicode.IsControl) < 0
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		return field.Interface().(NullableString).String()
	}, NullableString{})
	return v
}

// checkInput validates input and returns violations keyed by JSON path,
// e.g. "approvers[0].name": "required". extra violations are merged in.
func checkInput(input any, extra map[string]string) error {
	details := map[string]string{}
	if err := validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			details[fieldPath(fe.Namespace())] = fe.Tag()
		}
	}
	for field, tag := range extra {
		if _, exists := details[field]; !exists {
			details[field] = tag
		}
	}
	if len(details) > 0 {
		return validationError(details)
	}
	return nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
