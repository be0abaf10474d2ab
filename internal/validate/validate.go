package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON name, which is also what the forms show.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(fld.Name)
		}
		return name
	})

	return &Validator{validate: v}
}

// Struct validates i and joins every failure into one readable message.
func (v *Validator) Struct(i any) error {
	if err := v.validate.Struct(i); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatErrors(verrs)
		}
		return err
	}
	return nil
}

func formatErrors(errs validator.ValidationErrors) error {
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		field := strings.ReplaceAll(err.Field(), "_", " ")
		var msg string
		switch err.Tag() {
		case "required":
			msg = fmt.Sprintf("%s is required", field)
		case "email":
			msg = fmt.Sprintf("%s must be a valid email address", field)
		case "gte":
			msg = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "lte":
			msg = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "oneof":
			msg = fmt.Sprintf("%s must be one of %s", field, err.Param())
		default:
			msg = fmt.Sprintf("%s failed validation for %s", field, err.Tag())
		}
		messages = append(messages, msg)
	}
	return errors.New(strings.Join(messages, "; "))
}
