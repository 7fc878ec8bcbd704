package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

// MockAttemptRepository implements repositories.AttemptRepository for testing
type MockAttemptRepository struct {
	AppendFunc  func(ctx context.Context, attempt *models.LoginAttempt, limit int) error
	HistoryFunc func(ctx context.Context, email string) ([]models.LoginAttempt, error)
}

func (m *MockAttemptRepository) Append(ctx context.Context, attempt *models.LoginAttempt, limit int) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, attempt, limit)
	}
	return nil
}

func (m *MockAttemptRepository) History(ctx context.Context, email string) ([]models.LoginAttempt, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, email)
	}
	return []models.LoginAttempt{}, nil
}

// MockOTPRepository implements repositories.OTPRepository for testing
type MockOTPRepository struct {
	PutFunc           func(ctx context.Context, code *models.OneTimeCode) error
	GetFunc           func(ctx context.Context, channel models.Channel, target string) (*models.OneTimeCode, error)
	MarkUsedFunc      func(ctx context.Context, channel models.Channel, target string, issuedAt time.Time) (bool, error)
	DeleteExpiredFunc func(ctx context.Context, now time.Time) (int64, error)
}

func (m *MockOTPRepository) Put(ctx context.Context, code *models.OneTimeCode) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, code)
	}
	return nil
}

func (m *MockOTPRepository) Get(ctx context.Context, channel models.Channel, target string) (*models.OneTimeCode, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, channel, target)
	}
	return nil, models.ErrNotFound
}

func (m *MockOTPRepository) MarkUsed(ctx context.Context, channel models.Channel, target string, issuedAt time.Time) (bool, error) {
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, channel, target, issuedAt)
	}
	return false, nil
}

func (m *MockOTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, now)
	}
	return 0, nil
}

// MockLocationResolver implements location.Resolver for testing
type MockLocationResolver struct {
	ResolveFunc func(ctx context.Context, ipAddress string) (string, error)
}

func (m *MockLocationResolver) Resolve(ctx context.Context, ipAddress string) (string, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, ipAddress)
	}
	return "New York, US", nil
}

// MockAccountStore implements AccountStore for testing
type MockAccountStore struct {
	VerifyFunc func(ctx context.Context, email, password string) (*models.Account, error)
}

func (m *MockAccountStore) Verify(ctx context.Context, email, password string) (*models.Account, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, email, password)
	}
	return nil, models.ErrInvalidCredentials
}

// MockSessionStore implements SessionStore for testing
type MockSessionStore struct {
	SaveFunc func(ctx context.Context, account *models.Account) (*models.Session, error)

	mu    sync.Mutex
	saved int
}

func (m *MockSessionStore) Save(ctx context.Context, account *models.Account) (*models.Session, error) {
	m.mu.Lock()
	m.saved++
	m.mu.Unlock()

	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, account)
	}
	return &models.Session{ID: "session-" + account.ID, AccountID: account.ID, Email: account.Email, Token: "token"}, nil
}

func (m *MockSessionStore) Saved() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved
}

// MockNotificationChannel implements NotificationChannel and remembers the
// last code sent to each target
type MockNotificationChannel struct {
	SendFunc func(ctx context.Context, channel models.Channel, target, code string) error

	mu    sync.Mutex
	codes map[string]string
	sends int
}

func (m *MockNotificationChannel) Send(ctx context.Context, channel models.Channel, target, code string) error {
	m.mu.Lock()
	m.sends++
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[models.OTPKey(channel, target)] = code
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, channel, target, code)
	}
	return nil
}

func (m *MockNotificationChannel) LastCode(channel models.Channel, target string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[models.OTPKey(channel, target)]
}

func (m *MockNotificationChannel) Sends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends
}

// MockSESClient implements SESAPI for testing
type MockSESClient struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESClient) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, params, optFns...)
	}
	return &ses.SendEmailOutput{}, nil
}
