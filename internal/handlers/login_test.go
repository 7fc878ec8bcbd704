package handlers_test

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/config"
	"github.com/BradenHooton/riskgate/internal/handlers"
	"github.com/BradenHooton/riskgate/internal/location"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/repositories"
	"github.com/BradenHooton/riskgate/internal/services"
	pkgauth "github.com/BradenHooton/riskgate/pkg/auth"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	loginEmail    = "alice@example.com"
	loginPassword = "SecureP@ss123"
)

// recordingNotifier keeps the last code sent to each target
type recordingNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (n *recordingNotifier) Send(ctx context.Context, channel models.Channel, target, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	if n.codes == nil {
		n.codes = make(map[string]string)
	}
	n.codes[models.OTPKey(channel, target)] = code
	return nil
}

func (n *recordingNotifier) lastCode(channel models.Channel, target string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[models.OTPKey(channel, target)]
}

type loginStack struct {
	router    http.Handler
	accounts  *services.AccountService
	twoFactor *services.TwoFactorService
	registry  *services.FlowRegistry
	notifier  *recordingNotifier
}

func newLoginStack(t *testing.T) *loginStack {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := pkglogger.NewAuditLogger(logger)

	hasher, err := pkgauth.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	accounts := services.NewAccountService(repositories.NewMemoryAccountRepository(), hasher, logger)

	resolver, err := location.NewStaticResolver(nil, "New York, US")
	require.NoError(t, err)
	ledger := services.NewLedgerService(repositories.NewMemoryAttemptRepository(), resolver, logger)

	risk := services.NewRiskService(ledger, config.RiskConfig{
		DefaultHomeRegion:      "New York",
		FailedAttemptThreshold: 3,
		FailedAttemptWindow:    time.Hour,
		RapidAttemptThreshold:  5,
		RapidAttemptWindow:     5 * time.Minute,
		LocationWindow:         24 * time.Hour,
	}, logger)

	key := make([]byte, 32)
	_, err = rand.Read(key)
	require.NoError(t, err)
	totpMgr, err := auth.NewTOTPManager(key, "Riskgate")
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	twoFactor := services.NewTwoFactorService(
		repositories.NewMemoryTwoFactorRepository(),
		repositories.NewMemoryOTPRepository(),
		totpMgr, notifier, nil, logger, audit,
	)

	tm := auth.NewTokenManager("test-secret-that-is-long-enough-123", "riskgate")
	sessions := services.NewSessionService(repositories.NewMemorySessionRepository(), tm, time.Hour, logger)

	orchestrator := services.NewLoginOrchestrator(accounts, ledger, risk, twoFactor, sessions, logger, audit)
	registry := services.NewFlowRegistry(orchestrator, 15*time.Minute)

	ipConfig, err := pkghttp.NewIPConfig(nil)
	require.NoError(t, err)
	h := handlers.NewLoginHandler(registry, nil, ipConfig, logger)

	r := chi.NewRouter()
	r.Post("/auth/login", h.Login)
	r.Get("/auth/login/{flowID}", h.GetFlow)
	r.Post("/auth/login/{flowID}/second-factor", h.SubmitSecondFactor)
	r.Post("/auth/login/{flowID}/second-factor/send", h.SendSecondFactorCode)
	r.Post("/auth/login/{flowID}/verification", h.ResolveVerification)

	_, err = accounts.Register(context.Background(), services.RegisterRequest{
		Email:    loginEmail,
		Password: loginPassword,
		Name:     "Alice",
	})
	require.NoError(t, err)

	return &loginStack{
		router:    r,
		accounts:  accounts,
		twoFactor: twoFactor,
		registry:  registry,
		notifier:  notifier,
	}
}

func (s *loginStack) do(t *testing.T, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := handlers.NewTestRequest(t, method, url, body)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/123.0")
	req.Header.Set("Accept-Language", "en-US")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *loginStack) enableTOTP(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	setup, err := s.twoFactor.BeginEnrollment(ctx, loginEmail, services.EnrollmentRequest{Method: models.MethodTOTP})
	require.NoError(t, err)

	code, err := auth.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	_, err = s.twoFactor.ConfirmEnrollment(ctx, loginEmail, code)
	require.NoError(t, err)
	return setup.Secret
}

func (s *loginStack) enableEmail(t *testing.T, backup string) []string {
	t.Helper()
	ctx := context.Background()
	_, err := s.twoFactor.BeginEnrollment(ctx, loginEmail, services.EnrollmentRequest{
		Method:      models.MethodEmail,
		BackupEmail: backup,
	})
	require.NoError(t, err)

	result, err := s.twoFactor.ConfirmEnrollment(ctx, loginEmail, s.notifier.lastCode(models.ChannelEmail, backup))
	require.NoError(t, err)
	return result.RecoveryCodes
}

// ============================================================================
// Credentials Tests
// ============================================================================

func TestLogin_Success_NoSecondFactor(t *testing.T) {
	s := newLoginStack(t)

	w := s.do(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    loginEmail,
		Password: loginPassword,
	})

	var resp handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, services.StateAuthenticated, resp.State)
	assert.NotEmpty(t, resp.FlowID)
	require.NotNil(t, resp.Session)
	assert.NotEmpty(t, resp.Session.Token)
	require.NotNil(t, resp.Flags)
	assert.True(t, resp.Flags.NewDevice)

	// Terminal flows are dropped from the registry
	_, err := s.registry.Get(resp.FlowID)
	assert.ErrorIs(t, err, models.ErrFlowNotFound)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	s := newLoginStack(t)

	tests := []struct {
		name  string
		email string
	}{
		{"wrong password", loginEmail},
		{"unknown email", "nobody@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, "POST", "/auth/login", handlers.LoginRequest{
				Email:    tt.email,
				Password: "WrongP@ss456",
			})

			var resp handlers.LoginErrorResponse
			handlers.AssertJSONResponse(t, w, http.StatusUnauthorized, &resp)
			assert.Equal(t, "invalid_credentials", resp.Error)
			assert.Equal(t, "Invalid email or password", resp.Message)
			assert.Equal(t, services.StateCollectingCredentials, resp.State)
			assert.NotEmpty(t, resp.FlowID)
		})
	}
}

func TestLogin_ValidationErrors(t *testing.T) {
	s := newLoginStack(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing email", handlers.LoginRequest{Password: loginPassword}},
		{"invalid email", handlers.LoginRequest{Email: "not-an-email", Password: loginPassword}},
		{"missing password", handlers.LoginRequest{Email: loginEmail}},
		{"invalid flow id", handlers.LoginRequest{FlowID: "abc", Email: loginEmail, Password: loginPassword}},
		{"malformed body", "not a login request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, "POST", "/auth/login", tt.body)
			handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
		})
	}
}

func TestLogin_UnknownFlowID(t *testing.T) {
	s := newLoginStack(t)

	w := s.do(t, "POST", "/auth/login", handlers.LoginRequest{
		FlowID:   "5f0c8a3e-1d2b-4c6a-9e7f-0a1b2c3d4e5f",
		Email:    loginEmail,
		Password: loginPassword,
	})

	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "flow_not_found")
}

func TestLogin_RepeatedFailuresRequireVerification(t *testing.T) {
	s := newLoginStack(t)

	w := s.do(t, "POST", "/auth/login", handlers.LoginRequest{Email: loginEmail, Password: "WrongP@ss456"})
	var failed handlers.LoginErrorResponse
	handlers.AssertJSONResponse(t, w, http.StatusUnauthorized, &failed)
	flowID := failed.FlowID

	for i := 0; i < 3; i++ {
		w = s.do(t, "POST", "/auth/login", handlers.LoginRequest{FlowID: flowID, Email: loginEmail, Password: "WrongP@ss456"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w = s.do(t, "POST", "/auth/login", handlers.LoginRequest{FlowID: flowID, Email: loginEmail, Password: loginPassword})
	var gated handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &gated)
	assert.Equal(t, flowID, gated.FlowID)
	assert.Equal(t, services.StateAwaitingAdditionalVerification, gated.State)
	require.NotNil(t, gated.Flags)
	assert.True(t, gated.Flags.MultipleFailedAttempts)
	assert.Nil(t, gated.Session)

	confirm := true
	w = s.do(t, "POST", "/auth/login/"+flowID+"/verification", handlers.VerificationRequest{Confirm: &confirm})
	var done handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &done)
	assert.Equal(t, services.StateAuthenticated, done.State)
	require.NotNil(t, done.Session)
	assert.NotEmpty(t, done.Session.Token)
}

func TestLogin_CancelVerification(t *testing.T) {
	s := newLoginStack(t)

	w := s.do(t, "POST", "/auth/login", handlers.LoginRequest{Email: loginEmail, Password: "WrongP@ss456"})
	var failed handlers.LoginErrorResponse
	handlers.AssertJSONResponse(t, w, http.StatusUnauthorized, &failed)
	for i := 0; i < 2; i++ {
		s.do(t, "POST", "/auth/login", handlers.LoginRequest{FlowID: failed.FlowID, Email: loginEmail, Password: "WrongP@ss456"})
	}
	s.do(t, "POST", "/auth/login", handlers.LoginRequest{FlowID: failed.FlowID, Email: loginEmail, Password: loginPassword})

	cancel := false
	w = s.do(t, "POST", "/auth/login/"+failed.FlowID+"/verification", handlers.VerificationRequest{Confirm: &cancel})
	var resp handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, services.StateCancelled, resp.State)
	assert.Nil(t, resp.Session)

	w = s.do(t, "GET", "/auth/login/"+failed.FlowID, nil)
	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "flow_not_found")
}

func TestResolveVerification_Validation(t *testing.T) {
	s := newLoginStack(t)
	w := s.do(t, "POST", "/auth/login", handlers.LoginRequest{Email: loginEmail, Password: "WrongP@ss456"})
	var failed handlers.LoginErrorResponse
	handlers.AssertJSONResponse(t, w, http.StatusUnauthorized, &failed)

	w = s.do(t, "POST", "/auth/login/"+failed.FlowID+"/verification", map[string]string{})
	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")

	confirm := true
	w = s.do(t, "POST", "/auth/login/"+failed.FlowID+"/verification", handlers.VerificationRequest{Confirm: &confirm})
	var resp handlers.LoginErrorResponse
	handlers.AssertJSONResponse(t, w, http.StatusConflict, &resp)
	assert.Equal(t, "invalid_transition", resp.Error)
	assert.Equal(t, services.StateCollectingCredentials, resp.State)
}

// ============================================================================
// Second Factor Tests
// ============================================================================

func TestLogin_TOTPSecondFactor(t *testing.T) {
	s := newLoginStack(t)
	secret := s.enableTOTP(t)

	w := s.do(t, "POST", "/auth/login", handlers.LoginRequest{Email: loginEmail, Password: loginPassword})
	var pending handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &pending)
	assert.Equal(t, services.StateAwaitingSecondFactor, pending.State)
	assert.Equal(t, models.MethodTOTP, pending.Method)
	assert.Nil(t, pending.Session)

	w = s.do(t, "GET", "/auth/login/"+pending.FlowID, nil)
	var current handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &current)
	assert.Equal(t, services.StateAwaitingSecondFactor, current.State)

	// A wrong code keeps the flow waiting
	w = s.do(t, "POST", "/auth/login/"+pending.FlowID+"/second-factor", handlers.SecondFactorRequest{Method: "totp", Code: "12345"})
	var failed handlers.LoginErrorResponse
	handlers.AssertJSONResponse(t, w, http.StatusUnauthorized, &failed)
	assert.Equal(t, "invalid_code", failed.Error)
	assert.Equal(t, services.StateAwaitingSecondFactor, failed.State)

	code, err := auth.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	w = s.do(t, "POST", "/auth/login/"+pending.FlowID+"/second-factor", handlers.SecondFactorRequest{Method: "totp", Code: code})
	var done handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &done)
	assert.Equal(t, services.StateAuthenticated, done.State)
	require.NotNil(t, done.Session)
}

func TestLogin_EmailCodeAndRecoveryReplay(t *testing.T) {
	s := newLoginStack(t)
	backup := "alice.backup@example.com"
	recovery := s.enableEmail(t, backup)
	require.NotEmpty(t, recovery)

	w := s.do(t, "POST", "/auth/login", handlers.LoginRequest{Email: loginEmail, Password: loginPassword})
	var pending handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &pending)
	assert.Equal(t, models.MethodEmail, pending.Method)

	w = s.do(t, "POST", "/auth/login/"+pending.FlowID+"/second-factor/send", nil)
	var sent handlers.CodeSentResponse
	handlers.AssertJSONResponse(t, w, http.StatusAccepted, &sent)
	assert.Equal(t, models.ChannelEmail, sent.Channel)

	code := s.notifier.lastCode(models.ChannelEmail, backup)
	require.NotEmpty(t, code)
	w = s.do(t, "POST", "/auth/login/"+pending.FlowID+"/second-factor", handlers.SecondFactorRequest{Method: "email", Code: code})
	var done handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &done)
	assert.Equal(t, services.StateAuthenticated, done.State)

	// A recovery code works once across flows
	w = s.do(t, "POST", "/auth/login", handlers.LoginRequest{Email: loginEmail, Password: loginPassword})
	handlers.AssertJSONResponse(t, w, http.StatusOK, &pending)
	w = s.do(t, "POST", "/auth/login/"+pending.FlowID+"/second-factor", handlers.SecondFactorRequest{Method: "recovery", Code: recovery[0]})
	handlers.AssertJSONResponse(t, w, http.StatusOK, &done)
	assert.Equal(t, services.StateAuthenticated, done.State)

	w = s.do(t, "POST", "/auth/login", handlers.LoginRequest{Email: loginEmail, Password: loginPassword})
	handlers.AssertJSONResponse(t, w, http.StatusOK, &pending)
	w = s.do(t, "POST", "/auth/login/"+pending.FlowID+"/second-factor", handlers.SecondFactorRequest{Method: "recovery", Code: recovery[0]})
	var replay handlers.LoginErrorResponse
	handlers.AssertJSONResponse(t, w, http.StatusUnauthorized, &replay)
	assert.Equal(t, "code_already_used", replay.Error)
	assert.Equal(t, services.StateAwaitingSecondFactor, replay.State)
}

func TestSendSecondFactorCode_Errors(t *testing.T) {
	s := newLoginStack(t)
	s.enableTOTP(t)

	w := s.do(t, "POST", "/auth/login", handlers.LoginRequest{Email: loginEmail, Password: loginPassword})
	var pending handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &pending)

	// TOTP has nothing to deliver
	w = s.do(t, "POST", "/auth/login/"+pending.FlowID+"/second-factor/send", nil)
	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "unknown_method")

	w = s.do(t, "POST", "/auth/login/not-a-flow/second-factor/send", nil)
	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "flow_not_found")
}

func TestSendSecondFactorCode_DeliveryFailure(t *testing.T) {
	s := newLoginStack(t)
	s.enableEmail(t, "alice.backup@example.com")

	w := s.do(t, "POST", "/auth/login", handlers.LoginRequest{Email: loginEmail, Password: loginPassword})
	var pending handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &pending)

	s.notifier.mu.Lock()
	s.notifier.err = models.ErrDeliveryFailure
	s.notifier.mu.Unlock()

	w = s.do(t, "POST", "/auth/login/"+pending.FlowID+"/second-factor/send", nil)
	handlers.AssertErrorResponse(t, w, http.StatusBadGateway, "delivery_failed")

	w = s.do(t, "GET", "/auth/login/"+pending.FlowID, nil)
	var current handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &current)
	assert.Equal(t, services.StateAwaitingSecondFactor, current.State)
}

func TestSubmitSecondFactor_Validation(t *testing.T) {
	s := newLoginStack(t)
	s.enableTOTP(t)

	w := s.do(t, "POST", "/auth/login", handlers.LoginRequest{Email: loginEmail, Password: loginPassword})
	var pending handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &pending)

	tests := []struct {
		name   string
		body   handlers.SecondFactorRequest
		status int
		code   string
	}{
		{"unsupported method", handlers.SecondFactorRequest{Method: "carrier-pigeon", Code: "123456"}, http.StatusBadRequest, "bad_request"},
		{"missing code", handlers.SecondFactorRequest{Method: "totp"}, http.StatusBadRequest, "bad_request"},
		{"method not configured", handlers.SecondFactorRequest{Method: "sms", Code: "123456"}, http.StatusBadRequest, "unknown_method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, "POST", "/auth/login/"+pending.FlowID+"/second-factor", tt.body)
			handlers.AssertErrorResponse(t, w, tt.status, tt.code)
		})
	}
}
