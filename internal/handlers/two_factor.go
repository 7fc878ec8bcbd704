package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/services"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
)

// TwoFactorServiceInterface defines second-factor management for an authenticated account
type TwoFactorServiceInterface interface {
	BeginEnrollment(ctx context.Context, email string, req services.EnrollmentRequest) (*models.EnrollmentSetup, error)
	ConfirmEnrollment(ctx context.Context, email, code string) (*models.EnrollmentResult, error)
	Status(ctx context.Context, email string) (*models.TwoFactorStatus, error)
	Verify(ctx context.Context, email string, method models.TwoFactorMethod, code string) error
	Disable(ctx context.Context, email string) error
	RegenerateRecoveryCodes(ctx context.Context, email string) ([]string, error)
}

// TwoFactorHandler handles enrollment and management of second factors
type TwoFactorHandler struct {
	service TwoFactorServiceInterface
	logger  *slog.Logger
}

// NewTwoFactorHandler creates a new TwoFactorHandler
func NewTwoFactorHandler(service TwoFactorServiceInterface, logger *slog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{
		service: service,
		logger:  logger,
	}
}

// Enroll handles POST /2fa/enroll
func (h *TwoFactorHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	method, err := models.ParseTwoFactorMethod(req.Method)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	setup, err := h.service.BeginEnrollment(r.Context(), claims.Email, services.EnrollmentRequest{
		Method:      method,
		PhoneNumber: req.PhoneNumber,
		BackupEmail: req.BackupEmail,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, setup)
}

// ConfirmEnrollment handles POST /2fa/enroll/confirm
func (h *TwoFactorHandler) ConfirmEnrollment(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ConfirmEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.ConfirmEnrollment(r.Context(), claims.Email, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// Status handles GET /2fa/status
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	status, err := h.service.Status(r.Context(), claims.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// Disable handles POST /2fa/disable. A current code is required.
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if !h.stepUp(w, r, claims.Email) {
		return
	}

	if err := h.service.Disable(r.Context(), claims.Email); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RegenerateRecoveryCodes handles POST /2fa/recovery-codes. A current code is required.
func (h *TwoFactorHandler) RegenerateRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if !h.stepUp(w, r, claims.Email) {
		return
	}

	codes, err := h.service.RegenerateRecoveryCodes(r.Context(), claims.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, RecoveryCodesResponse{RecoveryCodes: codes})
}

// stepUp decodes a StepUpRequest and verifies it, writing the error response on failure
func (h *TwoFactorHandler) stepUp(w http.ResponseWriter, r *http.Request, email string) bool {
	var req StepUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}

	method, err := models.ParseTwoFactorMethod(req.Method)
	if err != nil {
		writeServiceError(w, err)
		return false
	}

	if err := h.service.Verify(r.Context(), email, method, req.Code); err != nil {
		writeServiceError(w, err)
		return false
	}
	return true
}
