package apperr

import "fmt"

// AppError is a domain error carrying the phase-response shape a handler
// wants surfaced as an Immediate response, without depending on the
// ext_proc proto types — that translation happens in internal/extproc,
// which is the only package that knows about ProcessingResponse wire
// shapes.
//
// The wire body has three parts, per the documented Immediate shape
// (json{"status":…, "message":…, "details":…}): Label is the fixed
// category word that goes in "message" (e.g. "Unauthenticated",
// "ServerError"), Code is the specific kind that prefixes "details"
// (e.g. "NoCredentials"), and Message is the human-readable text that
// follows it.
type AppError struct {
	Status  int    // the synthesized HTTP-style status carried in Immediate.status
	Label   string // fixed category word surfaced as the wire "message"
	Code    string // machine-readable kind, e.g. "NoCredentials"
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%d %s] %s: %s", e.Status, e.Label, e.Code, e.Message)
}

// New builds an AppError whose category label equals its kind — the shape
// used for kinds that have no named subtypes, such as MalformedURL.
func New(status int, code, message string) *AppError {
	return &AppError{Status: status, Label: code, Code: code, Message: message}
}

// Unauthenticated builds the 401 shape used throughout the auth engine.
// kind distinguishes NoCredentials/MalformedCredentials/Unauthenticated in
// the wire "details" field, but the "message" field is always the fixed
// "Unauthenticated" category per the error handling design.
func Unauthenticated(kind, message string) *AppError {
	return &AppError{Status: 401, Label: "Unauthenticated", Code: kind, Message: message}
}

// ServerError builds the catch-all 500 shape for any error that is not one
// of the named domain kinds. kind is the underlying Go error type or
// recovered-panic label, surfaced only in "details", never in "message".
func ServerError(kind, message string) *AppError {
	return &AppError{Status: 500, Label: "ServerError", Code: kind, Message: message}
}
