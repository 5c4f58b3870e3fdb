package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is matched by every error returned from Validate
var ErrValidation = errors.New("validation failed")

// ValidationError describes a single invalid field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrValidation) true for any ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

var allowedMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"PATCH":  true,
	"DELETE": true,
}

// NormalizeMethod upper-cases an HTTP method name
func NormalizeMethod(method string) string {
	return strings.ToUpper(strings.TrimSpace(method))
}

// Validate checks a create body. The method is normalized in place.
func (r *CreateDataRequest) Validate() error {
	if r.DatasetID <= 0 {
		return &ValidationError{Field: "dataset_id", Message: "must be a positive id"}
	}
	r.Method = NormalizeMethod(r.Method)
	if err := validateMethod(r.Method); err != nil {
		return err
	}
	if err := validateRoute(r.Route); err != nil {
		return err
	}
	if r.ItemsLimit < 0 {
		return &ValidationError{Field: "itemsLimit", Message: "must not be negative"}
	}
	return nil
}

// Validate checks an update body. The method is normalized in place.
func (u *UpdateDataRequest) Validate() error {
	if u.Method != nil {
		m := NormalizeMethod(*u.Method)
		u.Method = &m
		if err := validateMethod(m); err != nil {
			return err
		}
	}
	if u.Route != nil {
		if err := validateRoute(*u.Route); err != nil {
			return err
		}
	}
	if u.ItemsLimit != nil && *u.ItemsLimit < 0 {
		return &ValidationError{Field: "itemsLimit", Message: "must not be negative"}
	}
	return nil
}

func validateMethod(method string) error {
	if method == "" || allowedMethods[method] {
		return nil
	}
	return &ValidationError{Field: "method", Message: fmt.Sprintf("unsupported method %q", method)}
}

// Routes are relative to the configured source, so absolute URLs are rejected.
func validateRoute(route string) error {
	if strings.ContainsAny(route, " \t\r\n") {
		return &ValidationError{Field: "route", Message: "must not contain whitespace"}
	}
	if strings.Contains(route, "://") {
		return &ValidationError{Field: "route", Message: "must be relative to the source"}
	}
	return nil
}
