package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/services"
)

// WithSessionContext adds session claims to the request context for testing authenticated endpoints
func WithSessionContext(req *http.Request, sessionID, accountID, email string) *http.Request {
	claims := &models.TokenClaims{
		Type:      "session",
		SessionID: sessionID,
		AccountID: accountID,
		Email:     email,
	}
	return req.WithContext(auth.WithSessionClaims(req.Context(), claims))
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	RegisterFunc func(ctx context.Context, req services.RegisterRequest) (*models.Account, error)
}

func (m *MockAccountService) Register(ctx context.Context, req services.RegisterRequest) (*models.Account, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, req)
}

// MockSessionRevoker implements SessionRevoker for testing
type MockSessionRevoker struct {
	RevokeFunc func(ctx context.Context, sessionID string) error
}

func (m *MockSessionRevoker) Revoke(ctx context.Context, sessionID string) error {
	if m.RevokeFunc == nil {
		return nil
	}
	return m.RevokeFunc(ctx, sessionID)
}

// MockTwoFactorService implements TwoFactorServiceInterface for testing
type MockTwoFactorService struct {
	BeginEnrollmentFunc         func(ctx context.Context, email string, req services.EnrollmentRequest) (*models.EnrollmentSetup, error)
	ConfirmEnrollmentFunc       func(ctx context.Context, email, code string) (*models.EnrollmentResult, error)
	StatusFunc                  func(ctx context.Context, email string) (*models.TwoFactorStatus, error)
	VerifyFunc                  func(ctx context.Context, email string, method models.TwoFactorMethod, code string) error
	DisableFunc                 func(ctx context.Context, email string) error
	RegenerateRecoveryCodesFunc func(ctx context.Context, email string) ([]string, error)
}

func (m *MockTwoFactorService) BeginEnrollment(ctx context.Context, email string, req services.EnrollmentRequest) (*models.EnrollmentSetup, error) {
	if m.BeginEnrollmentFunc == nil {
		return nil, models.ErrConflict
	}
	return m.BeginEnrollmentFunc(ctx, email, req)
}

func (m *MockTwoFactorService) ConfirmEnrollment(ctx context.Context, email, code string) (*models.EnrollmentResult, error) {
	if m.ConfirmEnrollmentFunc == nil {
		return nil, models.ErrNoPendingEnrollment
	}
	return m.ConfirmEnrollmentFunc(ctx, email, code)
}

func (m *MockTwoFactorService) Status(ctx context.Context, email string) (*models.TwoFactorStatus, error) {
	if m.StatusFunc == nil {
		return &models.TwoFactorStatus{}, nil
	}
	return m.StatusFunc(ctx, email)
}

func (m *MockTwoFactorService) Verify(ctx context.Context, email string, method models.TwoFactorMethod, code string) error {
	if m.VerifyFunc == nil {
		return models.ErrInvalidCode
	}
	return m.VerifyFunc(ctx, email, method, code)
}

func (m *MockTwoFactorService) Disable(ctx context.Context, email string) error {
	if m.DisableFunc == nil {
		return nil
	}
	return m.DisableFunc(ctx, email)
}

func (m *MockTwoFactorService) RegenerateRecoveryCodes(ctx context.Context, email string) ([]string, error) {
	if m.RegenerateRecoveryCodesFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.RegenerateRecoveryCodesFunc(ctx, email)
}

// MockPinger implements Pinger for testing
type MockPinger struct {
	HealthCheckFunc func(ctx context.Context) error
}

func (m *MockPinger) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(ctx)
}
