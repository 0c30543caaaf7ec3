package apierr

import (
	"fmt"
	"strings"
)

// ValidationErrors aggregates per-field validation failures across a single
// request so a handler can report all of them at once instead of failing
// fast on the first bad field.
type ValidationErrors struct {
	byField map[string][]string
	order   []string
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{byField: make(map[string][]string)}
}

func (v *ValidationErrors) Add(field, message string) {
	if _, seen := v.byField[field]; !seen {
		v.order = append(v.order, field)
	}
	v.byField[field] = append(v.byField[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.byField) > 0
}

func (v *ValidationErrors) Error() string {
	var parts []string
	for _, field := range v.order {
		for _, msg := range v.byField[field] {
			parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
		}
	}
	return strings.Join(parts, " | ")
}

// AsApiError converts the aggregated failures into a single ValidationFailed
// ApiError with one FieldError per field/message pair, field order preserved.
func (v *ValidationErrors) AsApiError() *ApiError {
	if !v.HasErrors() {
		return nil
	}
	var fields []FieldError
	for _, field := range v.order {
		for _, msg := range v.byField[field] {
			fields = append(fields, FieldError{Field: field, Message: msg})
		}
	}
	return New(KindValidationFailed, "validation failed").WithDetails(&Details{ValidationErrors: fields})
}
