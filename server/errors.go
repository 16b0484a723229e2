package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidInput      = errors.New("invalid payload")
	ErrInvalidTarget     = errors.New("invalid move target")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("not authorized to access this board")
	ErrUnauthenticated   = errors.New("unauthorized")
	ErrConflict          = errors.New("conflict")
)

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	return id, nil
}

// errorStatus maps an error to the HTTP status and client message. Anything
// not recognised is a persistence failure and is reported without detail.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidIdentifier):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidTarget):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, ErrUnauthenticated.Error()
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, ErrForbidden.Error()
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func invalidInput(msg string) error { return fmt.Errorf("%w: %s", ErrInvalidInput, msg) }
