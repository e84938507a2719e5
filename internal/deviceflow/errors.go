package deviceflow

import (
	"errors"
	"fmt"
)

var (
	// ErrAccessDenied is returned when the user declines the authorization.
	ErrAccessDenied = errors.New("access denied by user")

	// ErrExpiredToken is returned when the device code expired before approval.
	ErrExpiredToken = errors.New("device code expired, start the authorization again")

	// ErrTimedOut is returned when the attempt budget is exhausted without an outcome.
	ErrTimedOut = errors.New("timed out waiting for user authorization")
)

// Transient poll outcomes. These never leave Poll.
var (
	errAuthorizationPending = errors.New("authorization pending")
	errSlowDown             = errors.New("slow down")
)

// OAuthError is an unrecognized error code returned by the token endpoint.
type OAuthError struct {
	Code        string
	Description string
}

// Error implements the error interface.
func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("oauth error: %s: %s", e.Code, e.Description)
	}
	return "oauth error: " + e.Code
}

// IsAuthorizationError reports whether err is a terminal authorization
// outcome: denied, expired, or an unrecognized OAuth error.
func IsAuthorizationError(err error) bool {
	var oauthErr *OAuthError
	return errors.Is(err, ErrAccessDenied) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.As(err, &oauthErr)
}
