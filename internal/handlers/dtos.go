package handlers

import (
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/services"
)

// Account DTOs

// RegisterRequest is the request body for account creation
type RegisterRequest struct {
	Email      string `json:"email" validate:"required,email,max=254"`
	Password   string `json:"password" validate:"required,max=72"`
	Name       string `json:"name" validate:"max=255"`
	HomeRegion string `json:"home_region" validate:"max=255"`
}

// AccountResponse is an account as exposed over HTTP. The hash never leaves the server.
type AccountResponse struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name,omitempty"`
	HomeRegion string    `json:"home_region,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Login DTOs

// LoginRequest submits credentials. FlowID resumes a flow after a failed attempt.
type LoginRequest struct {
	FlowID   string `json:"flow_id,omitempty" validate:"omitempty,uuid"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

// SecondFactorRequest submits a second-factor code
type SecondFactorRequest struct {
	Method string `json:"method" validate:"required,oneof=totp sms email recovery"`
	Code   string `json:"code" validate:"required,max=32"`
}

// VerificationRequest confirms or cancels a risk-gated login
type VerificationRequest struct {
	Confirm *bool `json:"confirm" validate:"required"`
}

// SessionResponse carries the bearer token of a new session
type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginResponse describes a login flow after an input was processed
type LoginResponse struct {
	FlowID  string                 `json:"flow_id"`
	State   services.LoginState    `json:"state"`
	Method  models.TwoFactorMethod `json:"method,omitempty"`
	Flags   *models.AnomalyFlags   `json:"flags,omitempty"`
	Session *SessionResponse       `json:"session,omitempty"`
}

// LoginErrorResponse is an error that leaves the flow usable, so the flow is echoed back
type LoginErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	FlowID  string              `json:"flow_id"`
	State   services.LoginState `json:"state"`
}

// CodeSentResponse reports the channel a one-time code went out on
type CodeSentResponse struct {
	Channel models.Channel `json:"channel"`
}

// Two-factor DTOs

// EnrollRequest starts a two-factor enrollment
type EnrollRequest struct {
	Method      string `json:"method" validate:"required,oneof=totp sms email"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,e164"`
	BackupEmail string `json:"backup_email" validate:"omitempty,email,max=254"`
}

// ConfirmEnrollmentRequest completes an enrollment with the first code
type ConfirmEnrollmentRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

// StepUpRequest proves possession of a current factor before a sensitive change
type StepUpRequest struct {
	Method string `json:"method" validate:"required,oneof=totp sms email recovery"`
	Code   string `json:"code" validate:"required,max=32"`
}

// RecoveryCodesResponse carries freshly minted recovery codes, shown once
type RecoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

func toLoginResponse(res *services.LoginResult) LoginResponse {
	resp := LoginResponse{
		FlowID: res.FlowID,
		State:  res.State,
		Method: res.Method,
		Flags:  res.Flags,
	}
	if res.Session != nil {
		resp.Session = &SessionResponse{
			Token:     res.Session.Token,
			ExpiresAt: res.Session.ExpiresAt,
		}
	}
	return resp
}

func toAccountResponse(a *models.Account) AccountResponse {
	return AccountResponse{
		ID:         a.ID,
		Email:      a.Email,
		Name:       a.Name,
		HomeRegion: a.HomeRegion,
		CreatedAt:  a.CreatedAt,
	}
}
