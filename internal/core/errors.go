package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeInvalidTarget = "invalid_target"
	ErrCodeForbidden     = "forbidden"
	ErrCodeNotFound      = "not_found"
	ErrCodeNotJoined     = "not_joined"
	ErrCodePersistFailed = "persist_failed"
	ErrCodeRateLimited   = "rate_limited"
	ErrCodeInternal      = "internal"
)

var (
	ErrBadRequest    = errors.New("bad request")
	ErrInvalidTarget = errors.New("invalid target")
	ErrForbidden     = errors.New("not a participant of this conversation")
	ErrNotFound      = errors.New("not found")
	ErrNotJoined     = errors.New("conversation not joined")
	ErrPersist       = errors.New("message could not be persisted")
	ErrRateLimited   = errors.New("too many messages")

	// ErrNotApplicable signals a group target with no eligible members.
	// Callers treat it as an empty result, not a failure.
	ErrNotApplicable = errors.New("no eligible members")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// AsCoreError maps a domain error to its wire representation.
// Unknown errors become ErrCodeInternal without leaking details.
func AsCoreError(err error) *CoreError {
	var ce *CoreError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrBadRequest):
		return coreError(ErrCodeBadRequest, err.Error())
	case errors.Is(err, ErrInvalidTarget), errors.Is(err, ErrNotApplicable):
		return coreError(ErrCodeInvalidTarget, err.Error())
	case errors.Is(err, ErrForbidden):
		return coreError(ErrCodeForbidden, ErrForbidden.Error())
	case errors.Is(err, ErrNotFound):
		return coreError(ErrCodeNotFound, err.Error())
	case errors.Is(err, ErrNotJoined):
		return coreError(ErrCodeNotJoined, ErrNotJoined.Error())
	case errors.Is(err, ErrPersist):
		return coreError(ErrCodePersistFailed, ErrPersist.Error())
	case errors.Is(err, ErrRateLimited):
		return coreError(ErrCodeRateLimited, ErrRateLimited.Error())
	default:
		return coreError(ErrCodeInternal, "internal error")
	}
}
