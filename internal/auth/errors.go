// Package auth implements the two privileged-access guards: a rate-limited
// API key and a single-session password login.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrNotConfigured     = errors.New("auth: password not configured")
	ErrAlreadyConfigured = errors.New("auth: password already configured")
	ErrPasswordTooShort  = fmt.Errorf("auth: password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong   = fmt.Errorf("auth: password must be at most %d characters", MaxPasswordLength)
	ErrPasswordMismatch  = errors.New("auth: passwords do not match")
	ErrInvalidPassword   = errors.New("auth: invalid password")
)

// Error is an authentication denial with an HTTP status code.
type Error struct {
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %ds)", e.Message, e.RetryAfterSeconds())
	}
	return e.Message
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds; zero when unset.
func (e *Error) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int((e.RetryAfter + time.Second - 1) / time.Second)
}

func unauthorized(msg string) *Error {
	return &Error{Code: http.StatusUnauthorized, Message: msg}
}

func tooManyRequests(msg string, retry time.Duration) *Error {
	return &Error{Code: http.StatusTooManyRequests, Message: msg, RetryAfter: retry}
}
