package handlers

import (
	"errors"
	"net/http"

	"github.com/BradenHooton/riskgate/internal/models"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
)

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// Ordered: the first sentinel matched by errors.Is wins
var errorMappings = []errorMapping{
	{models.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password"},
	{models.ErrInvalidCode, http.StatusUnauthorized, "invalid_code", "Invalid verification code"},
	{models.ErrCodeExpired, http.StatusUnauthorized, "code_expired", "Verification code expired"},
	{models.ErrCodeAlreadyUsed, http.StatusUnauthorized, "code_already_used", "Verification code already used"},
	{models.ErrUnknownTwoFactorMethod, http.StatusBadRequest, "unknown_method", "Two-factor method not configured"},
	{models.ErrInvalidTransition, http.StatusConflict, "invalid_transition", "Not allowed in the current login state"},
	{models.ErrFlowNotFound, http.StatusNotFound, "flow_not_found", "Login flow not found or expired"},
	{models.ErrNoPendingEnrollment, http.StatusConflict, "no_pending_enrollment", "No two-factor enrollment in progress"},
	{models.ErrRateLimited, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, try again later"},
	{models.ErrDeliveryFailure, http.StatusBadGateway, "delivery_failed", "Could not deliver the verification code"},
	{models.ErrStorageFailure, http.StatusServiceUnavailable, "service_unavailable", "Service temporarily unavailable"},
	{models.ErrBadRequest, http.StatusBadRequest, "bad_request", ""},
	{models.ErrConflict, http.StatusConflict, "conflict", ""},
	{models.ErrNotFound, http.StatusNotFound, "not_found", ""},
	{models.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", "Unauthorized"},
}

func lookupError(err error) (errorMapping, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			if m.message == "" {
				// Messages of generic sentinels are written for the caller
				m.message = err.Error()
			}
			return m, true
		}
	}
	return errorMapping{}, false
}

// writeServiceError maps a service error onto the standard error response
func writeServiceError(w http.ResponseWriter, err error) {
	if m, ok := lookupError(err); ok {
		pkghttp.WriteError(w, m.status, m.code, m.message)
		return
	}
	pkghttp.WriteInternalError(w, "Internal server error")
}
