package service

import "fmt"

// AuthenticationError means the broker rejected our credentials, or a
// nominally successful login came back without both session tokens.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("capital: authentication failed: %s", e.Reason)
}

// RequestError is any non-2xx broker response other than a recoverable
// session expiry. Carries the raw status and body for the caller.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("capital: request failed: http %d: %s", e.Status, e.Body)
}

// PositionFetchError wraps a failed open-positions listing. A position that
// simply is not in the list is not an error.
type PositionFetchError struct {
	Err error
}

func (e *PositionFetchError) Error() string {
	return fmt.Sprintf("capital: fetch positions: %v", e.Err)
}

func (e *PositionFetchError) Unwrap() error { return e.Err }
