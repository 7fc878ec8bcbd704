package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/repositories"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
)

// EnrollmentRequest selects the method to enroll and its contact point
type EnrollmentRequest struct {
	Method      models.TwoFactorMethod
	PhoneNumber string // sms
	BackupEmail string // email
}

// TwoFactorService manages second-factor enrollment, verification and one-time codes
type TwoFactorService struct {
	repo        repositories.TwoFactorRepository
	otps        repositories.OTPRepository
	totp        *auth.TOTPManager
	notifier    NotificationChannel
	throttle    *OTPThrottle
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(
	repo repositories.TwoFactorRepository,
	otps repositories.OTPRepository,
	totpMgr *auth.TOTPManager,
	notifier NotificationChannel,
	throttle *OTPThrottle,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *TwoFactorService {
	return &TwoFactorService{
		repo:        repo,
		otps:        otps,
		totp:        totpMgr,
		notifier:    notifier,
		throttle:    throttle,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// EnabledConfig returns the active configuration for email, or nil when 2FA is off
func (s *TwoFactorService) EnabledConfig(ctx context.Context, email string) (*models.TwoFactorConfig, error) {
	cfg, err := s.repo.GetConfig(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		s.logger.Error("failed to load two-factor config",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return nil, storageFailure(err)
	}
	if !cfg.Enabled {
		return nil, nil
	}
	return cfg, nil
}

// BeginEnrollment starts enrolling email in req.Method. Any earlier pending
// enrollment is replaced. An account with 2FA already enabled must disable first.
func (s *TwoFactorService) BeginEnrollment(ctx context.Context, email string, req EnrollmentRequest) (*models.EnrollmentSetup, error) {
	existing, err := s.EnabledConfig(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: two-factor authentication is already enabled", models.ErrConflict)
	}

	pending := &models.PendingEnrollment{
		Email:     email,
		StartedAt: s.now().UTC(),
	}
	setup := &models.EnrollmentSetup{Method: req.Method}

	switch req.Method {
	case models.MethodTOTP:
		enrollment, err := s.totp.GenerateEnrollment(email)
		if err != nil {
			s.logger.Error("failed to generate TOTP enrollment", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		codes, err := auth.GenerateRecoveryCodes(auth.RecoveryCodeCount)
		if err != nil {
			s.logger.Error("failed to generate recovery codes", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		pending.Settings = models.TOTPSettings{EncryptedSecret: enrollment.EncryptedSecret, Nonce: enrollment.Nonce}
		pending.RecoveryCodes = codes

		setup.Secret = enrollment.Secret
		setup.ProvisioningURL = enrollment.URL
		setup.QRCode = enrollment.QRCode
		setup.RecoveryCodes = codes

	case models.MethodSMS:
		phone := strings.TrimSpace(req.PhoneNumber)
		if phone == "" {
			return nil, fmt.Errorf("%w: phone number is required", models.ErrBadRequest)
		}
		pending.Settings = models.SMSSettings{PhoneNumber: phone}
		setup.CodeSentTo = pkglogger.SanitizedPhone(phone)

	case models.MethodEmail:
		backup := strings.ToLower(strings.TrimSpace(req.BackupEmail))
		if backup == "" {
			return nil, fmt.Errorf("%w: backup email is required", models.ErrBadRequest)
		}
		pending.Settings = models.EmailSettings{BackupEmail: backup}
		setup.CodeSentTo = pkglogger.SanitizedEmail(backup)

	default:
		return nil, fmt.Errorf("%w: %q cannot be enrolled", models.ErrUnknownTwoFactorMethod, req.Method)
	}

	if err := s.repo.SavePendingEnrollment(ctx, pending); err != nil {
		s.logger.Error("failed to save pending enrollment", slog.Any("error", err))
		return nil, storageFailure(err)
	}

	if oob, ok := pending.Settings.(models.OutOfBandSettings); ok {
		channel, target := oob.Destination()
		if err := s.IssueOTP(ctx, channel, target); err != nil {
			return nil, err
		}
	}

	s.auditLogger.LogTwoFactorChange("two_factor_enrollment_started", email, string(req.Method), true)
	s.logger.Info("two-factor enrollment started",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("method", string(req.Method)))

	return setup, nil
}

// ConfirmEnrollment validates code against the pending enrollment and enables 2FA.
// A failed confirmation leaves the pending enrollment in place.
func (s *TwoFactorService) ConfirmEnrollment(ctx context.Context, email, code string) (*models.EnrollmentResult, error) {
	pending, err := s.repo.GetPendingEnrollment(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNoPendingEnrollment
		}
		s.logger.Error("failed to load pending enrollment", slog.Any("error", err))
		return nil, storageFailure(err)
	}

	// An out-of-band code is only spent once the config is stored, so a
	// storage failure leaves it valid for another attempt
	var otp *models.OneTimeCode
	if oob, ok := pending.Settings.(models.OutOfBandSettings); ok {
		channel, target := oob.Destination()
		otp, err = s.checkOTP(ctx, channel, target, code)
	} else {
		err = s.checkCode(ctx, pending.Settings, code)
	}
	if err != nil {
		s.auditLogger.LogTwoFactorChange("two_factor_enrollment_confirm_failed", email, string(pending.Settings.Method()), false)
		return nil, err
	}

	// Codes minted here are kept on the pending enrollment first, so a
	// confirmation retried after a failed save hands out the same codes
	codes := pending.RecoveryCodes
	if len(codes) == 0 {
		codes, err = auth.GenerateRecoveryCodes(auth.RecoveryCodeCount)
		if err != nil {
			s.logger.Error("failed to generate recovery codes", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		pending.RecoveryCodes = codes
		if err := s.repo.SavePendingEnrollment(ctx, pending); err != nil {
			s.logger.Error("failed to save pending enrollment", slog.Any("error", err))
			return nil, storageFailure(err)
		}
	}

	cfg := &models.TwoFactorConfig{
		Email:             email,
		Enabled:           true,
		Settings:          pending.Settings,
		RecoveryCodes:     auth.HashRecoveryCodes(codes),
		UsedRecoveryCodes: []string{},
		EnrolledAt:        s.now().UTC(),
	}
	if err := s.repo.SaveConfig(ctx, cfg); err != nil {
		s.logger.Error("failed to save two-factor config", slog.Any("error", err))
		return nil, storageFailure(err)
	}

	if otp != nil {
		if err := s.markOTPUsed(ctx, otp); err != nil {
			return nil, err
		}
	}

	if err := s.repo.DeletePendingEnrollment(ctx, email); err != nil {
		// The config is already active; a leftover enrollment is swept later
		s.logger.Warn("failed to delete pending enrollment", slog.Any("error", err))
	}

	s.auditLogger.LogTwoFactorChange("two_factor_enabled", email, string(cfg.Method()), true)

	return &models.EnrollmentResult{Enabled: true, RecoveryCodes: codes}, nil
}

// Verify checks a second-factor submission for email.
// It returns nil on success, a recoverable code error on a bad submission,
// models.ErrUnknownTwoFactorMethod when method is not configured, or a storage failure.
func (s *TwoFactorService) Verify(ctx context.Context, email string, method models.TwoFactorMethod, code string) error {
	cfg, err := s.EnabledConfig(ctx, email)
	if err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("%w: two-factor authentication is not enabled", models.ErrUnknownTwoFactorMethod)
	}

	if method == models.MethodRecovery {
		return s.consumeRecoveryCode(ctx, cfg, code)
	}

	if method != cfg.Method() {
		return fmt.Errorf("%w: %q is not configured", models.ErrUnknownTwoFactorMethod, method)
	}

	return s.checkCode(ctx, cfg.Settings, code)
}

// checkCode validates code against the method settings
func (s *TwoFactorService) checkCode(ctx context.Context, settings models.MethodSettings, code string) error {
	code = strings.TrimSpace(code)

	switch st := settings.(type) {
	case models.TOTPSettings:
		secret, err := s.totp.DecryptSecret(st.EncryptedSecret, st.Nonce)
		if err != nil {
			s.logger.Error("failed to decrypt TOTP secret", slog.Any("error", err))
			return models.ErrInternalServer
		}
		valid, err := s.totp.ValidateCode(secret, code, s.now())
		if err != nil {
			s.logger.Error("failed to validate TOTP code", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if !valid {
			return models.ErrInvalidCode
		}
		return nil

	case models.OutOfBandSettings:
		channel, target := st.Destination()
		return s.consumeOTP(ctx, channel, target, code)
	}

	return models.ErrUnknownTwoFactorMethod
}

// consumeOTP validates code against the latest code for (channel, target) and
// marks it used with a compare-and-swap so only one submission can win
func (s *TwoFactorService) consumeOTP(ctx context.Context, channel models.Channel, target, code string) error {
	stored, err := s.checkOTP(ctx, channel, target, code)
	if err != nil {
		return err
	}
	return s.markOTPUsed(ctx, stored)
}

// checkOTP validates code against the latest code for (channel, target)
// without spending it
func (s *TwoFactorService) checkOTP(ctx context.Context, channel models.Channel, target, code string) (*models.OneTimeCode, error) {
	stored, err := s.otps.Get(ctx, channel, target)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCode
		}
		s.logger.Error("failed to load one-time code", slog.Any("error", err))
		return nil, storageFailure(err)
	}

	if subtle.ConstantTimeCompare([]byte(stored.Code), []byte(strings.TrimSpace(code))) != 1 {
		return nil, models.ErrInvalidCode
	}
	if stored.Used {
		return nil, models.ErrCodeAlreadyUsed
	}
	if !s.now().Before(stored.ExpiresAt()) {
		return nil, models.ErrCodeExpired
	}
	return stored, nil
}

func (s *TwoFactorService) markOTPUsed(ctx context.Context, stored *models.OneTimeCode) error {
	won, err := s.otps.MarkUsed(ctx, stored.Channel, stored.Target, stored.IssuedAt)
	if err != nil {
		s.logger.Error("failed to mark one-time code used", slog.Any("error", err))
		return storageFailure(err)
	}
	if !won {
		return models.ErrCodeAlreadyUsed
	}
	return nil
}

func (s *TwoFactorService) consumeRecoveryCode(ctx context.Context, cfg *models.TwoFactorConfig, code string) error {
	if auth.NormalizeRecoveryCode(code) == "" {
		return models.ErrInvalidCode
	}
	digest := auth.HashRecoveryCode(code)

	ok, err := s.repo.ConsumeRecoveryCode(ctx, cfg.Email, digest)
	if err != nil {
		s.logger.Error("failed to consume recovery code", slog.Any("error", err))
		return storageFailure(err)
	}
	if ok {
		s.auditLogger.LogTwoFactorChange("recovery_code_used", cfg.Email, string(models.MethodRecovery), true)
		return nil
	}

	if cfg.HasRecoveryCode(digest) {
		return models.ErrCodeAlreadyUsed
	}
	return models.ErrInvalidCode
}

// IssueOTP generates a 6-digit code for (channel, target), replaces any
// earlier code and dispatches it
func (s *TwoFactorService) IssueOTP(ctx context.Context, channel models.Channel, target string) error {
	now := s.now().UTC().Truncate(time.Microsecond)

	if !s.throttle.Allow(channel, target, now) {
		return models.ErrRateLimited
	}

	code, err := auth.GenerateOneTimeCode()
	if err != nil {
		s.logger.Error("failed to generate one-time code", slog.Any("error", err))
		return models.ErrInternalServer
	}

	record := &models.OneTimeCode{
		Channel:  channel,
		Target:   target,
		Code:     code,
		IssuedAt: now,
	}
	if err := s.otps.Put(ctx, record); err != nil {
		s.logger.Error("failed to store one-time code", slog.Any("error", err))
		return storageFailure(err)
	}

	if err := s.notifier.Send(ctx, channel, target, code); err != nil {
		s.logger.Warn("failed to deliver one-time code",
			slog.String("channel", string(channel)),
			slog.String("target", pkglogger.SanitizedTarget(channel, target)),
			slog.Any("error", err))
		if errors.Is(err, models.ErrDeliveryFailure) {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrDeliveryFailure, err)
	}

	s.logger.Info("one-time code issued",
		slog.String("channel", string(channel)),
		slog.String("target", pkglogger.SanitizedTarget(channel, target)),
		slog.Time("issued_at", now))

	return nil
}

// SendConfiguredCode issues a one-time code to the contact point of an
// sms or email configuration
func (s *TwoFactorService) SendConfiguredCode(ctx context.Context, cfg *models.TwoFactorConfig) (models.Channel, error) {
	oob, ok := cfg.Settings.(models.OutOfBandSettings)
	if !ok {
		return "", fmt.Errorf("%w: %q does not deliver codes", models.ErrUnknownTwoFactorMethod, cfg.Method())
	}
	channel, target := oob.Destination()
	return channel, s.IssueOTP(ctx, channel, target)
}

// Disable clears the configuration and any pending enrollment for email
func (s *TwoFactorService) Disable(ctx context.Context, email string) error {
	if err := s.repo.DeleteConfig(ctx, email); err != nil {
		s.logger.Error("failed to delete two-factor config", slog.Any("error", err))
		return storageFailure(err)
	}
	if err := s.repo.DeletePendingEnrollment(ctx, email); err != nil {
		s.logger.Error("failed to delete pending enrollment", slog.Any("error", err))
		return storageFailure(err)
	}

	s.auditLogger.LogTwoFactorChange("two_factor_disabled", email, "", true)
	return nil
}

// Status summarizes the second-factor state of email
func (s *TwoFactorService) Status(ctx context.Context, email string) (*models.TwoFactorStatus, error) {
	status := &models.TwoFactorStatus{}

	cfg, err := s.EnabledConfig(ctx, email)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		enrolledAt := cfg.EnrolledAt
		status.Enabled = true
		status.Method = cfg.Method()
		status.RemainingRecoveryCodes = cfg.RemainingRecoveryCodes()
		status.EnrolledAt = &enrolledAt
		return status, nil
	}

	pending, err := s.repo.GetPendingEnrollment(ctx, email)
	switch {
	case err == nil:
		status.Enrolling = true
		status.Method = pending.Settings.Method()
	case !errors.Is(err, models.ErrNotFound):
		return nil, storageFailure(err)
	}

	return status, nil
}

// RegenerateRecoveryCodes replaces the recovery set and clears the used set.
// The plaintext codes are returned once.
func (s *TwoFactorService) RegenerateRecoveryCodes(ctx context.Context, email string) ([]string, error) {
	cfg, err := s.EnabledConfig(ctx, email)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: two-factor authentication is not enabled", models.ErrNotFound)
	}

	codes, err := auth.GenerateRecoveryCodes(auth.RecoveryCodeCount)
	if err != nil {
		s.logger.Error("failed to generate recovery codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.repo.ReplaceRecoveryCodes(ctx, email, auth.HashRecoveryCodes(codes)); err != nil {
		s.logger.Error("failed to replace recovery codes", slog.Any("error", err))
		return nil, storageFailure(err)
	}

	s.auditLogger.LogTwoFactorChange("recovery_codes_regenerated", email, string(cfg.Method()), true)
	return codes, nil
}
