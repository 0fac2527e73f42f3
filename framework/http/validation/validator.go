package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ── Types ────────────────────────────────────────────────────────────────────

// Errors holds validation errors per field.
// JSON output: {"errors": {"field": ["msg1", "msg2"]}}
type Errors struct {
	Bag map[string][]string `json:"errors"`
}

func (e *Errors) add(field, msg string) {
	if e.Bag == nil {
		e.Bag = make(map[string][]string)
	}
	e.Bag[field] = append(e.Bag[field], msg)
}

// Has returns true if there are any errors.
func (e *Errors) Has() bool { return len(e.Bag) > 0 }

// First returns the first error for a field.
func (e *Errors) First(field string) string {
	if msgs, ok := e.Bag[field]; ok && len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func (e *Errors) Error() string {
	parts := make([]string, 0, len(e.Bag))
	for field, msgs := range e.Bag {
		parts = append(parts, field+": "+strings.Join(msgs, ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ── Validator ────────────────────────────────────────────────────────────────

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
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

// Struct validates s against its `validate` tags. It returns nil or an
// *Errors bag.
//
//	type body struct {
//	    To string `json:"to" validate:"required,max=64"`
//	}
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	bag := &Errors{}
	for _, f := range fields {
		bag.add(f.Field(), message(f))
	}
	return bag
}

func message(f validator.FieldError) string {
	field := f.Field()
	switch f.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "min":
		return fmt.Sprintf("The %s field must be at least %s characters.", field, f.Param())
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", field, f.Param())
	case "oneof":
		return fmt.Sprintf("The %s field must be one of: %s.", field, f.Param())
	case "printascii":
		return fmt.Sprintf("The %s field must only contain printable characters.", field)
	default:
		return fmt.Sprintf("The %s field is invalid.", field)
	}
}
