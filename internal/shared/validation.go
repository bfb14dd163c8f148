package shared

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FormValidator checks tagged form structs and converts failures to user
// facing messages.
type FormValidator struct {
	validate *validator.Validate
}

// NewFormValidator builds a validator that reports fields by their `form` tag.
func NewFormValidator() *FormValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &FormValidator{validate: v}
}

// Messages maps "<field>.<tag>" (or just "<field>") to the text shown to users.
type Messages map[string]string

// Struct validates form and returns a *ValidationError, or nil when valid.
// Only the first failure per field is reported.
func (f *FormValidator) Struct(form any, messages Messages) *ValidationError {
	err := f.validate.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return NewValidationError(GeneralField, err.Error())
	}
	out := &ValidationError{}
	for _, fe := range fieldErrs {
		field := fe.Field()
		msg, ok := messages[field+"."+fe.Tag()]
		if !ok {
			msg, ok = messages[field]
		}
		if !ok {
			msg = fe.Error()
		}
		out.Add(field, msg)
	}
	return out
}

// Var validates a single value against a tag such as "email".
func (f *FormValidator) Var(value any, tag string) bool {
	return f.validate.Var(value, tag) == nil
}
