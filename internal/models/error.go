package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login and second-factor errors
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrInvalidCode            = errors.New("invalid verification code")
	ErrCodeExpired            = errors.New("verification code expired")
	ErrCodeAlreadyUsed        = errors.New("verification code already used")
	ErrUnknownTwoFactorMethod = errors.New("two-factor method not configured for account")
	ErrDeliveryFailure        = errors.New("failed to deliver verification code")
	ErrStorageFailure         = errors.New("storage unavailable")
	ErrRateLimited            = errors.New("too many requests")

	// Login flow errors
	ErrInvalidTransition   = errors.New("operation not allowed in current login state")
	ErrFlowNotFound        = errors.New("login flow not found or expired")
	ErrNoPendingEnrollment = errors.New("no two-factor enrollment in progress")
)

// IsRecoverable reports whether err is an expected user-input failure.
// The login flow stays in its current state and the caller re-prompts.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrCodeExpired) ||
		errors.Is(err, ErrCodeAlreadyUsed)
}
