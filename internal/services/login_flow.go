package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/models"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
	"github.com/google/uuid"
)

// LoginState is a state of the login state machine
type LoginState string

const (
	StateCollectingCredentials          LoginState = "collecting_credentials"
	StateAwaitingSecondFactor           LoginState = "awaiting_second_factor"
	StateAwaitingAdditionalVerification LoginState = "awaiting_additional_verification"
	StateAuthenticated                  LoginState = "authenticated"
	StateCancelled                      LoginState = "cancelled"
)

// IsTerminal reports whether no further input is accepted
func (s LoginState) IsTerminal() bool {
	return s == StateAuthenticated || s == StateCancelled
}

// LoginResult describes a flow after an input was processed
type LoginResult struct {
	FlowID  string                 `json:"flow_id"`
	State   LoginState             `json:"state"`
	Method  models.TwoFactorMethod `json:"method,omitempty"`
	Flags   *models.AnomalyFlags   `json:"flags,omitempty"`
	Session *models.Session        `json:"session,omitempty"`
}

// LoginOrchestrator wires the collaborators every login flow uses
type LoginOrchestrator struct {
	accounts    AccountStore
	ledger      *LedgerService
	risk        *RiskService
	twoFactor   *TwoFactorService
	sessions    SessionStore
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewLoginOrchestrator creates a new LoginOrchestrator
func NewLoginOrchestrator(
	accounts AccountStore,
	ledger *LedgerService,
	risk *RiskService,
	twoFactor *TwoFactorService,
	sessions SessionStore,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *LoginOrchestrator {
	return &LoginOrchestrator{
		accounts:    accounts,
		ledger:      ledger,
		risk:        risk,
		twoFactor:   twoFactor,
		sessions:    sessions,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// NewFlow starts a login in StateCollectingCredentials
func (o *LoginOrchestrator) NewFlow(client models.ClientContext) *LoginFlow {
	now := o.now()
	return &LoginFlow{
		id:           uuid.New().String(),
		o:            o,
		state:        StateCollectingCredentials,
		client:       client,
		createdAt:    now,
		lastActivity: now,
	}
}

// LoginFlow is one traversal of the login state machine. Inputs are
// serialized by the flow's mutex; a terminal flow rejects every input.
type LoginFlow struct {
	mu sync.Mutex
	o  *LoginOrchestrator

	id           string
	state        LoginState
	client       models.ClientContext
	account      *models.Account
	config       *models.TwoFactorConfig
	attemptID    string
	verified     bool // second factor accepted, only the risk gate is left
	flags        *models.AnomalyFlags
	session      *models.Session
	createdAt    time.Time
	lastActivity time.Time
}

func (f *LoginFlow) ID() string { return f.id }

// State returns the current state
func (f *LoginFlow) State() LoginState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// LastActivity is when the flow last received input
func (f *LoginFlow) LastActivity() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastActivity
}

// Email returns the authenticated email once credentials matched
func (f *LoginFlow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.account == nil {
		return ""
	}
	return f.account.Email
}

func (f *LoginFlow) result() *LoginResult {
	res := &LoginResult{
		FlowID:  f.id,
		State:   f.state,
		Flags:   f.flags,
		Session: f.session,
	}
	if f.state == StateAwaitingSecondFactor && f.config != nil {
		res.Method = f.config.Method()
	}
	return res
}

func (f *LoginFlow) transition(to LoginState) {
	from := f.state
	f.state = to

	email := ""
	if f.account != nil {
		email = f.account.Email
	}
	f.o.auditLogger.LogFlowTransition(f.id, email, string(from), string(to))
}

func (f *LoginFlow) touch() {
	f.lastActivity = f.o.now()
}

// SubmitCredentials checks email and password. A mismatch records a failed
// attempt, keeps the flow collecting credentials and returns
// models.ErrInvalidCredentials whether or not the email exists.
func (f *LoginFlow) SubmitCredentials(ctx context.Context, email, password string) (*LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch()

	if f.state != StateCollectingCredentials {
		return f.result(), models.ErrInvalidTransition
	}

	email = NormalizeEmail(email)

	account, err := f.o.accounts.Verify(ctx, email, password)
	if err != nil {
		if !errors.Is(err, models.ErrInvalidCredentials) {
			return f.result(), err
		}

		if _, recErr := f.o.ledger.Record(ctx, email, false, f.client); recErr != nil {
			return f.result(), recErr
		}
		f.o.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			Email:         email,
			FlowID:        f.id,
			IPAddress:     f.client.IPAddress,
			UserAgent:     f.client.UserAgent,
			FailureReason: "invalid_credentials",
		})
		return f.result(), models.ErrInvalidCredentials
	}

	attempt, err := f.o.ledger.Record(ctx, account.Email, true, f.client)
	if err != nil {
		return f.result(), err
	}
	f.o.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "credentials_verified",
		Email:     account.Email,
		FlowID:    f.id,
		IPAddress: f.client.IPAddress,
		UserAgent: f.client.UserAgent,
		Success:   true,
	})

	cfg, err := f.o.twoFactor.EnabledConfig(ctx, account.Email)
	if err != nil {
		return f.result(), err
	}

	if cfg != nil {
		f.account = account
		f.config = cfg
		f.attemptID = attempt.ID
		f.transition(StateAwaitingSecondFactor)
		return f.result(), nil
	}

	if err := f.gate(ctx, account, attempt.ID); err != nil {
		return f.result(), err
	}
	return f.result(), nil
}

// gate evaluates risk for account and moves to additional verification or
// straight to Authenticated. Nothing is committed to the flow on error.
func (f *LoginFlow) gate(ctx context.Context, account *models.Account, attemptID string) error {
	flags, err := f.o.risk.Evaluate(ctx, RiskInput{
		Email:             account.Email,
		IPAddress:         f.client.IPAddress,
		DeviceFingerprint: auth.DeviceFingerprint(f.client.UserAgent, f.client.AcceptLanguage),
		HomeRegion:        account.HomeRegion,
		ExcludeAttemptID:  attemptID,
	})
	if err != nil {
		return err
	}

	if RequiresAdditionalVerification(flags) {
		f.account = account
		f.attemptID = attemptID
		f.flags = &flags
		f.transition(StateAwaitingAdditionalVerification)
		return nil
	}

	session, err := f.o.sessions.Save(ctx, account)
	if err != nil {
		return err
	}

	f.account = account
	f.attemptID = attemptID
	f.flags = &flags
	f.session = session
	f.transition(StateAuthenticated)
	return nil
}

// SubmitSecondFactor verifies a second-factor code. client is the request
// context at submission time and replaces the one captured at login. A bad
// code keeps the flow waiting for the second factor. An accepted code is
// never checked twice: when the risk gate or session store fails afterwards,
// the next submission on the flow only retries the gate.
func (f *LoginFlow) SubmitSecondFactor(ctx context.Context, method models.TwoFactorMethod, code string, client models.ClientContext) (*LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch()

	if f.state != StateAwaitingSecondFactor {
		return f.result(), models.ErrInvalidTransition
	}

	if f.verified {
		if err := f.gate(ctx, f.account, f.attemptID); err != nil {
			return f.result(), err
		}
		return f.result(), nil
	}

	if err := f.o.twoFactor.Verify(ctx, f.account.Email, method, code); err != nil {
		f.o.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "second_factor_failed",
			Email:         f.account.Email,
			FlowID:        f.id,
			IPAddress:     client.IPAddress,
			FailureReason: failureReason(err),
			Metadata:      map[string]string{"method": string(method)},
		})
		return f.result(), err
	}

	f.o.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "second_factor_verified",
		Email:     f.account.Email,
		FlowID:    f.id,
		IPAddress: client.IPAddress,
		Success:   true,
		Metadata:  map[string]string{"method": string(method)},
	})

	// The code is spent now, whatever happens below
	f.verified = true
	if client.IPAddress != "" {
		f.client = client
	}

	if err := f.gate(ctx, f.account, f.attemptID); err != nil {
		return f.result(), err
	}
	return f.result(), nil
}

// SendSecondFactorCode issues a one-time code to the configured sms or email
// contact point. The flow state never changes, even on delivery failure.
func (f *LoginFlow) SendSecondFactorCode(ctx context.Context) (models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch()

	if f.state != StateAwaitingSecondFactor {
		return "", models.ErrInvalidTransition
	}

	return f.o.twoFactor.SendConfiguredCode(ctx, f.config)
}

// ResolveAdditionalVerification confirms or cancels a risk-gated login.
// Confirming issues the session; cancelling discards the remembered account.
func (f *LoginFlow) ResolveAdditionalVerification(ctx context.Context, confirm bool) (*LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch()

	if f.state != StateAwaitingAdditionalVerification {
		return f.result(), models.ErrInvalidTransition
	}

	if !confirm {
		f.transition(StateCancelled)
		f.account = nil
		f.config = nil
		f.flags = nil
		f.attemptID = ""
		f.verified = false
		return f.result(), nil
	}

	session, err := f.o.sessions.Save(ctx, f.account)
	if err != nil {
		return f.result(), err
	}
	f.session = session
	f.transition(StateAuthenticated)
	return f.result(), nil
}

// failureReason turns a verification error into an audit label
func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, models.ErrCodeExpired):
		return "code_expired"
	case errors.Is(err, models.ErrCodeAlreadyUsed):
		return "code_already_used"
	case errors.Is(err, models.ErrUnknownTwoFactorMethod):
		return "unknown_method"
	case errors.Is(err, models.ErrStorageFailure):
		return "storage_failure"
	}
	return fmt.Sprintf("error: %v", err)
}
