package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/google/uuid"
)

// In-memory repositories back tests and single-process deployments.
// Every method copies slices on the way in and out so callers never share
// backing arrays with the store.

// MemoryAttemptRepository is an in-memory AttemptRepository
type MemoryAttemptRepository struct {
	mu       sync.RWMutex
	attempts map[string][]models.LoginAttempt
}

func NewMemoryAttemptRepository() *MemoryAttemptRepository {
	return &MemoryAttemptRepository{attempts: make(map[string][]models.LoginAttempt)}
}

func (r *MemoryAttemptRepository) Append(ctx context.Context, attempt *models.LoginAttempt, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := append(r.attempts[attempt.Email], *attempt)
	if limit > 0 && len(history) > limit {
		history = append([]models.LoginAttempt(nil), history[len(history)-limit:]...)
	}
	r.attempts[attempt.Email] = history

	return nil
}

func (r *MemoryAttemptRepository) History(ctx context.Context, email string) ([]models.LoginAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append(make([]models.LoginAttempt, 0, len(r.attempts[email])), r.attempts[email]...), nil
}

// MemoryTwoFactorRepository is an in-memory TwoFactorRepository
type MemoryTwoFactorRepository struct {
	mu      sync.Mutex
	configs map[string]models.TwoFactorConfig
	pending map[string]models.PendingEnrollment
}

func NewMemoryTwoFactorRepository() *MemoryTwoFactorRepository {
	return &MemoryTwoFactorRepository{
		configs: make(map[string]models.TwoFactorConfig),
		pending: make(map[string]models.PendingEnrollment),
	}
}

func copyStrings(s []string) []string {
	return append([]string{}, s...)
}

func (r *MemoryTwoFactorRepository) GetConfig(ctx context.Context, email string) (*models.TwoFactorConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	cfg.RecoveryCodes = copyStrings(cfg.RecoveryCodes)
	cfg.UsedRecoveryCodes = copyStrings(cfg.UsedRecoveryCodes)
	return &cfg, nil
}

func (r *MemoryTwoFactorRepository) SaveConfig(ctx context.Context, cfg *models.TwoFactorConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *cfg
	stored.RecoveryCodes = copyStrings(cfg.RecoveryCodes)
	stored.UsedRecoveryCodes = copyStrings(cfg.UsedRecoveryCodes)
	r.configs[cfg.Email] = stored
	return nil
}

func (r *MemoryTwoFactorRepository) DeleteConfig(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.configs, email)
	return nil
}

func (r *MemoryTwoFactorRepository) ConsumeRecoveryCode(ctx context.Context, email, digest string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[email]
	if !ok || !cfg.Enabled || !cfg.HasRecoveryCode(digest) || cfg.IsRecoveryCodeUsed(digest) {
		return false, nil
	}
	cfg.UsedRecoveryCodes = append(copyStrings(cfg.UsedRecoveryCodes), digest)
	r.configs[email] = cfg
	return true, nil
}

func (r *MemoryTwoFactorRepository) ReplaceRecoveryCodes(ctx context.Context, email string, digests []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[email]
	if !ok {
		return models.ErrNotFound
	}
	cfg.RecoveryCodes = copyStrings(digests)
	cfg.UsedRecoveryCodes = []string{}
	r.configs[email] = cfg
	return nil
}

func (r *MemoryTwoFactorRepository) GetPendingEnrollment(ctx context.Context, email string) (*models.PendingEnrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	p.RecoveryCodes = copyStrings(p.RecoveryCodes)
	return &p, nil
}

func (r *MemoryTwoFactorRepository) SavePendingEnrollment(ctx context.Context, pending *models.PendingEnrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *pending
	stored.RecoveryCodes = copyStrings(pending.RecoveryCodes)
	r.pending[pending.Email] = stored
	return nil
}

func (r *MemoryTwoFactorRepository) DeletePendingEnrollment(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pending, email)
	return nil
}

func (r *MemoryTwoFactorRepository) DeleteStaleEnrollments(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for email, p := range r.pending {
		if p.StartedAt.Before(before) {
			delete(r.pending, email)
			n++
		}
	}
	return n, nil
}

// MemoryOTPRepository is an in-memory OTPRepository
type MemoryOTPRepository struct {
	mu    sync.Mutex
	codes map[string]models.OneTimeCode
}

func NewMemoryOTPRepository() *MemoryOTPRepository {
	return &MemoryOTPRepository{codes: make(map[string]models.OneTimeCode)}
}

func (r *MemoryOTPRepository) Put(ctx context.Context, code *models.OneTimeCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.codes[code.Key()] = *code
	return nil
}

func (r *MemoryOTPRepository) Get(ctx context.Context, channel models.Channel, target string) (*models.OneTimeCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.codes[models.OTPKey(channel, target)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &code, nil
}

func (r *MemoryOTPRepository) MarkUsed(ctx context.Context, channel models.Channel, target string, issuedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := models.OTPKey(channel, target)
	code, ok := r.codes[key]
	if !ok || code.Used || !code.IssuedAt.Equal(issuedAt) {
		return false, nil
	}
	code.Used = true
	r.codes[key] = code
	return true, nil
}

func (r *MemoryOTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for key, code := range r.codes {
		if !now.Before(code.ExpiresAt()) {
			delete(r.codes, key)
			n++
		}
	}
	return n, nil
}

// MemoryAccountRepository is an in-memory AccountRepository
type MemoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{accounts: make(map[string]models.Account)}
}

func (r *MemoryAccountRepository) Create(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.Email]; exists {
		return models.ErrConflict
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.Status == "" {
		account.Status = "active"
	}
	now := time.Now().UTC()
	account.CreatedAt, account.UpdatedAt = now, now
	r.accounts[account.Email] = *account
	return nil
}

func (r *MemoryAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &account, nil
}

// MemorySessionRepository is an in-memory SessionRepository
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]models.Session)}
}

func (r *MemorySessionRepository) Create(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return models.ErrConflict
	}
	stored := *session
	stored.Token = ""
	r.sessions[session.ID] = stored
	return nil
}

func (r *MemorySessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func (r *MemorySessionRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

func (r *MemorySessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.sessions {
		if s.IsExpired(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

var (
	_ AttemptRepository   = (*MemoryAttemptRepository)(nil)
	_ TwoFactorRepository = (*MemoryTwoFactorRepository)(nil)
	_ OTPRepository       = (*MemoryOTPRepository)(nil)
	_ AccountRepository   = (*MemoryAccountRepository)(nil)
	_ SessionRepository   = (*MemorySessionRepository)(nil)

	_ AttemptRepository = (*LoginAttemptRepository)(nil)
	_ OTPRepository     = (*RedisOTPRepository)(nil)
	_ AccountRepository = (*AccountRepositoryImpl)(nil)
	_ SessionRepository = (*SessionRepositoryImpl)(nil)
)
