package errval

import (
	"errors"
	"net/http"
)

var (
	ErrInternal        = errors.New("internal server error")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrConflict is a transient failure: another mutation of the same row won the race.
	ErrConflict    = errors.New("concurrent modification")
	ErrPersistence = errors.New("persistence failure")
	// ErrDelivery never leaves the notification path.
	ErrDelivery = errors.New("notification delivery failed")
)

// IsKnown reports whether err already carries one of the sentinels of the task logic
func IsKnown(err error) bool {
	for _, known := range []error{
		ErrValidation,
		ErrForbidden,
		ErrNotFound,
		ErrConflict,
		ErrPersistence,
		ErrInternal,
		ErrUnauthenticated,
	} {
		if errors.Is(err, known) {
			return true
		}
	}

	return false
}

// HTTPStatus maps an error returned by the task logic to the status code of the HTTP boundary
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsTransient reports whether the caller may retry the same request
func IsTransient(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrPersistence)
}
