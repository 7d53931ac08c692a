package apperr

import (
	"errors"
	"fmt"
)

// MapError classifies an arbitrary error returned by a phase handler into the
// AppError shape the dispatcher turns into an Immediate response. Domain
// errors named in this package map to their documented status; anything else
// — a genuinely unexpected error, a panic value wrapped by the recoverer —
// becomes a 500 ServerError, matching the error handling design's catch-all.
func MapError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrNoCredentials):
		return Unauthenticated("NoCredentials", err.Error())
	case errors.Is(err, ErrMalformedCredentials):
		return Unauthenticated("MalformedCredentials", err.Error())
	case errors.Is(err, ErrUnauthenticated):
		return Unauthenticated("Unauthenticated", err.Error())
	case errors.Is(err, ErrMalformedURL):
		return New(400, "MalformedURL", err.Error())
	default:
		return ServerError(fmt.Sprintf("%T", err), err.Error())
	}
}
