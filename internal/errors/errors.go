// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned when a looked-up row does not exist
type ErrNotFound struct {
	Entity string
	ID     string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// ErrValidation marks a rejected request field
type ErrValidation struct {
	Field  string
	Reason string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ErrGateway wraps a non-2xx answer from the messaging gateway
type ErrGateway struct {
	Status int
	Body   string
}

func (e *ErrGateway) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway responded with status %d", e.Status)
	}
	return fmt.Sprintf("gateway responded with status %d: %s", e.Status, e.Body)
}

// Helper constructors
func NewNotFound(entity, id string) error {
	return &ErrNotFound{Entity: entity, ID: id}
}

func NewValidation(field, reason string) error {
	return &ErrValidation{Field: field, Reason: reason}
}

func NewGatewayError(status int, body string) error {
	return &ErrGateway{Status: status, Body: body}
}

func IsNotFound(err error) bool {
	var target *ErrNotFound
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ErrValidation
	return errors.As(err, &target)
}

func IsGateway(err error) bool {
	var target *ErrGateway
	return errors.As(err, &target)
}

// HTTPStatus maps an error to the status code a controller should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case IsGateway(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
