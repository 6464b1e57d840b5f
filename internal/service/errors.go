package service

import "errors"

// Sentinel errors returned by the services. Callers wrap them with context
// using fmt.Errorf("%w: ...") and the HTTP layer maps them with errors.Is.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFoundOrRevoked = errors.New("api key not found or revoked")
	ErrBadRequest        = errors.New("bad request")
	ErrTooManyRequests   = errors.New("too many requests")
	ErrInternal          = errors.New("internal error")
)
