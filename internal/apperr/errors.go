// Package apperr defines the domain error taxonomy shared by every processor
// and the single mapper that turns a domain error into an ext_proc Immediate
// response. There is no HTTP surface and no gRPC status surface for domain
// failures in this service: every client-visible error is an ImmediateResponse
// carried inside a successful gRPC stream.
package apperr

import "errors"

// Sentinel errors for the taxonomy named in the error handling design.
var (
	// ErrNoCredentials is returned when a request supplies neither a bearer
	// token, basic credentials, nor an API key.
	ErrNoCredentials = errors.New("no credentials supplied")

	// ErrMalformedCredentials is returned when supplied credentials fail
	// basic shape validation (e.g. identity is not a UUID).
	ErrMalformedCredentials = errors.New("malformed credentials")

	// ErrUnauthenticated is returned when credentials were supplied but
	// rejected by the auth service or failed JWT verification.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrMalformedURL is returned when a request path cannot be parsed.
	ErrMalformedURL = errors.New("malformed url")

	// ErrStoreError marks an idempotency store failure. Never returned to a
	// caller that acts on it directly — the store wrapper logs and swallows
	// it, converting it to "not cached".
	ErrStoreError = errors.New("idempotency store error")

	// ErrBusError marks a message-bus buffer-full condition that should
	// trigger a synchronous flush and retry.
	ErrBusError = errors.New("message bus buffer full")

	// ErrBusValidationError marks a schema validation failure on a log
	// record about to be published. Logged and dropped, never retried.
	ErrBusValidationError = errors.New("log record failed schema validation")
)

// AsUnauthenticated reports whether err is, or wraps, one of the three
// credential-rejection sentinels that all map to Immediate(401, ...).
func AsUnauthenticated(err error) bool {
	return errors.Is(err, ErrNoCredentials) ||
		errors.Is(err, ErrMalformedCredentials) ||
		errors.Is(err, ErrUnauthenticated)
}
