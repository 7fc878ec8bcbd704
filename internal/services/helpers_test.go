package services

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/config"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/repositories"
	pkgauth "github.com/BradenHooton/riskgate/pkg/auth"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// testClock is a settable clock shared by the services under test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 15, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTOTPManager(t *testing.T) *auth.TOTPManager {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tm, err := auth.NewTOTPManager(key, "Riskgate")
	require.NoError(t, err)
	return tm
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		DefaultHomeRegion:      "New York",
		FailedAttemptThreshold: 3,
		FailedAttemptWindow:    time.Hour,
		RapidAttemptThreshold:  5,
		RapidAttemptWindow:     5 * time.Minute,
		LocationWindow:         24 * time.Hour,
	}
}

// testEnv wires real services over in-memory repositories
type testEnv struct {
	clock        *testClock
	attempts     *repositories.MemoryAttemptRepository
	twoFactorDB  *repositories.MemoryTwoFactorRepository
	otps         *repositories.MemoryOTPRepository
	accountsDB   *repositories.MemoryAccountRepository
	resolver     *MockLocationResolver
	notifier     *MockNotificationChannel
	sessions     *MockSessionStore
	totp         *auth.TOTPManager
	accounts     *AccountService
	ledger       *LedgerService
	risk         *RiskService
	twoFactor    *TwoFactorService
	orchestrator *LoginOrchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := discardLogger()
	audit := pkglogger.NewAuditLogger(logger)
	clock := newTestClock()

	hasher, err := pkgauth.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	env := &testEnv{
		clock:       clock,
		attempts:    repositories.NewMemoryAttemptRepository(),
		twoFactorDB: repositories.NewMemoryTwoFactorRepository(),
		otps:        repositories.NewMemoryOTPRepository(),
		accountsDB:  repositories.NewMemoryAccountRepository(),
		resolver:    &MockLocationResolver{},
		notifier:    &MockNotificationChannel{},
		sessions:    &MockSessionStore{},
		totp:        newTestTOTPManager(t),
	}

	env.accounts = NewAccountService(env.accountsDB, hasher, logger)

	env.ledger = NewLedgerService(env.attempts, env.resolver, logger)
	env.ledger.now = clock.Now

	env.risk = NewRiskService(env.ledger, testRiskConfig(), logger)
	env.risk.now = clock.Now

	env.twoFactor = NewTwoFactorService(env.twoFactorDB, env.otps, env.totp, env.notifier, nil, logger, audit)
	env.twoFactor.now = clock.Now

	env.orchestrator = NewLoginOrchestrator(env.accounts, env.ledger, env.risk, env.twoFactor, env.sessions, logger, audit)
	env.orchestrator.now = clock.Now

	return env
}

const testPassword = "SecureP@ss123"

func (e *testEnv) register(t *testing.T, email string) *models.Account {
	t.Helper()
	account, err := e.accounts.Register(context.Background(), RegisterRequest{
		Email:    email,
		Password: testPassword,
		Name:     "Test User",
	})
	require.NoError(t, err)
	return account
}

// enableTwoFactor stores an enabled configuration directly
func (e *testEnv) enableTwoFactor(t *testing.T, email string, settings models.MethodSettings, recoveryCodes ...string) {
	t.Helper()
	require.NoError(t, e.twoFactorDB.SaveConfig(context.Background(), &models.TwoFactorConfig{
		Email:         email,
		Enabled:       true,
		Settings:      settings,
		RecoveryCodes: auth.HashRecoveryCodes(recoveryCodes),
		EnrolledAt:    e.clock.Now(),
	}))
}

// enableTOTP enrolls email in TOTP and returns the base32 secret
func (e *testEnv) enableTOTP(t *testing.T, email string) string {
	t.Helper()
	enrollment, err := e.totp.GenerateEnrollment(email)
	require.NoError(t, err)
	e.enableTwoFactor(t, email, models.TOTPSettings{EncryptedSecret: enrollment.EncryptedSecret, Nonce: enrollment.Nonce})
	return enrollment.Secret
}

func (e *testEnv) seedAttempt(t *testing.T, email string, success bool, ago time.Duration, client models.ClientContext) {
	t.Helper()
	require.NoError(t, e.attempts.Append(context.Background(), &models.LoginAttempt{
		ID:                "seed-" + time.Duration(ago).String() + "-" + client.IPAddress,
		Email:             email,
		Timestamp:         e.clock.Now().Add(-ago),
		IPAddress:         client.IPAddress,
		UserAgent:         client.UserAgent,
		Success:           success,
		Location:          "New York, US",
		DeviceFingerprint: auth.DeviceFingerprint(client.UserAgent, client.AcceptLanguage),
	}, models.MaxAttemptHistory))
}

var testClient = models.ClientContext{
	IPAddress:      "203.0.113.10",
	UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) Firefox/125.0",
	AcceptLanguage: "en-US",
}
