// Package autherr defines the error taxonomy shared by the authentication
// core and the HTTP boundary.
package autherr

import (
	"errors"
	"net/http"
)

// Sentinel errors for the authentication core. Handlers map these to HTTP
// status codes and stable reason strings; internal detail never crosses the
// boundary.
var (
	// ErrNotFound covers unknown or inactive users. Surfaced to clients with
	// the same generic message as ErrBadCredentials.
	ErrNotFound = errors.New("user not found or inactive")
	// ErrBadCredentials covers password mismatches.
	ErrBadCredentials = errors.New("bad credentials")
	// ErrConflict covers duplicate username or email on registration.
	ErrConflict = errors.New("username or email already exists")
	// ErrRateLimited covers deterministic backoff denials.
	ErrRateLimited = errors.New("rate limited")
	// ErrAnomalyBlocked covers anomaly-scorer denials. Externally identical
	// to ErrRateLimited.
	ErrAnomalyBlocked = errors.New("anomaly blocked")
	// ErrTokenExpired covers verifiably signed but expired tokens.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers malformed or mis-signed tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrMFARequired covers tokens lacking a completed-MFA claim.
	ErrMFARequired = errors.New("mfa required")
	// ErrChallengeInvalid covers unknown, expired, or replayed MFA state
	// tokens. The three cases are deliberately indistinguishable.
	ErrChallengeInvalid = errors.New("invalid or expired challenge state")
	// ErrUpstream covers external provider failures (Duo, anomaly scorer,
	// Google). The upstream message is logged, never returned to clients.
	ErrUpstream = errors.New("upstream provider error")
)

// Reason codes reported to clients on auth failures.
const (
	ReasonNoToken     = "no_token"
	ReasonExpired     = "jwt_expired"
	ReasonInvalid     = "jwt_invalid"
	ReasonMFARequired = "mfa_required"
)

// GenericAuthFailure is returned for both unknown users and wrong passwords
// so clients cannot enumerate accounts.
const GenericAuthFailure = "invalid credentials"

// StatusFor maps a core error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBadCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTokenExpired), errors.Is(err, ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrAnomalyBlocked):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrMFARequired):
		return http.StatusForbidden
	case errors.Is(err, ErrChallengeInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
