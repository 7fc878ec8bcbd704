package models

import (
	"fmt"
	"time"
)

// TwoFactorMethod identifies a second-factor method
type TwoFactorMethod string

const (
	MethodTOTP     TwoFactorMethod = "totp"
	MethodSMS      TwoFactorMethod = "sms"
	MethodEmail    TwoFactorMethod = "email"
	MethodRecovery TwoFactorMethod = "recovery"
)

// ParseTwoFactorMethod converts a wire value into a TwoFactorMethod
func ParseTwoFactorMethod(s string) (TwoFactorMethod, error) {
	switch m := TwoFactorMethod(s); m {
	case MethodTOTP, MethodSMS, MethodEmail, MethodRecovery:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTwoFactorMethod, s)
}

// Channel is an out-of-band delivery channel for one-time codes
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Validity windows for out-of-band codes
const (
	SMSCodeValidity   = 5 * time.Minute
	EmailCodeValidity = 10 * time.Minute
)

// Validity returns how long a code sent over the channel stays valid
func (c Channel) Validity() time.Duration {
	if c == ChannelEmail {
		return EmailCodeValidity
	}
	return SMSCodeValidity
}

// MethodSettings is the per-method part of a two-factor configuration.
// Exactly one of TOTPSettings, SMSSettings, EmailSettings.
type MethodSettings interface {
	Method() TwoFactorMethod
	isMethodSettings()
}

// OutOfBandSettings is implemented by methods that deliver a code over a channel
type OutOfBandSettings interface {
	MethodSettings
	Destination() (Channel, string)
}

// TOTPSettings carries the AES-256-GCM encrypted shared secret
type TOTPSettings struct {
	EncryptedSecret []byte
	Nonce           []byte
}

// SMSSettings carries the phone number codes are sent to
type SMSSettings struct {
	PhoneNumber string
}

// EmailSettings carries the backup email codes are sent to
type EmailSettings struct {
	BackupEmail string
}

func (TOTPSettings) Method() TwoFactorMethod  { return MethodTOTP }
func (SMSSettings) Method() TwoFactorMethod   { return MethodSMS }
func (EmailSettings) Method() TwoFactorMethod { return MethodEmail }

func (TOTPSettings) isMethodSettings()  {}
func (SMSSettings) isMethodSettings()   {}
func (EmailSettings) isMethodSettings() {}

func (s SMSSettings) Destination() (Channel, string)   { return ChannelSMS, s.PhoneNumber }
func (s EmailSettings) Destination() (Channel, string) { return ChannelEmail, s.BackupEmail }

// TwoFactorConfig is the active second-factor configuration of an account.
// RecoveryCodes and UsedRecoveryCodes hold digests, never plaintext.
type TwoFactorConfig struct {
	Email             string
	Enabled           bool
	Settings          MethodSettings
	RecoveryCodes     []string
	UsedRecoveryCodes []string
	EnrolledAt        time.Time
}

// Method returns the configured primary method
func (c *TwoFactorConfig) Method() TwoFactorMethod {
	if c.Settings == nil {
		return ""
	}
	return c.Settings.Method()
}

// IsRecoveryCodeUsed reports whether the digest was already consumed
func (c *TwoFactorConfig) IsRecoveryCodeUsed(digest string) bool {
	for _, used := range c.UsedRecoveryCodes {
		if used == digest {
			return true
		}
	}
	return false
}

// HasRecoveryCode reports whether the digest belongs to the issued set
func (c *TwoFactorConfig) HasRecoveryCode(digest string) bool {
	for _, code := range c.RecoveryCodes {
		if code == digest {
			return true
		}
	}
	return false
}

// RemainingRecoveryCodes counts issued codes not yet consumed
func (c *TwoFactorConfig) RemainingRecoveryCodes() int {
	remaining := 0
	for _, code := range c.RecoveryCodes {
		if !c.IsRecoveryCodeUsed(code) {
			remaining++
		}
	}
	return remaining
}

// PendingEnrollment is an enrollment started but not yet confirmed.
// RecoveryCodes are plaintext so they can be shown again on confirmation.
type PendingEnrollment struct {
	Email         string
	Settings      MethodSettings
	RecoveryCodes []string
	StartedAt     time.Time
}

// OneTimeCode is the latest out-of-band code for a (channel, target) pair
type OneTimeCode struct {
	Channel  Channel
	Target   string
	Code     string
	IssuedAt time.Time
	Used     bool
}

// Key returns the logical storage key otp:<channel>:<target>
func (c *OneTimeCode) Key() string {
	return OTPKey(c.Channel, c.Target)
}

// ExpiresAt is the end of the code's validity window
func (c *OneTimeCode) ExpiresAt() time.Time {
	return c.IssuedAt.Add(c.Channel.Validity())
}

// OTPKey builds the storage key for a (channel, target) pair
func OTPKey(channel Channel, target string) string {
	return "otp:" + string(channel) + ":" + target
}

// EnrollmentSetup is returned when an enrollment begins
type EnrollmentSetup struct {
	Method          TwoFactorMethod `json:"method"`
	Secret          string          `json:"secret,omitempty"`           // base32 secret for manual entry
	ProvisioningURL string          `json:"provisioning_url,omitempty"` // otpauth:// URL
	QRCode          string          `json:"qr_code,omitempty"`          // PNG data URL
	RecoveryCodes   []string        `json:"recovery_codes,omitempty"`
	CodeSentTo      string          `json:"code_sent_to,omitempty"`
}

// EnrollmentResult is returned when an enrollment is confirmed
type EnrollmentResult struct {
	Enabled       bool     `json:"enabled"`
	RecoveryCodes []string `json:"recovery_codes"`
}

// TwoFactorStatus summarizes an account's second-factor state
type TwoFactorStatus struct {
	Enabled                bool            `json:"enabled"`
	Enrolling              bool            `json:"enrolling"`
	Method                 TwoFactorMethod `json:"method,omitempty"`
	RemainingRecoveryCodes int             `json:"remaining_recovery_codes"`
	EnrolledAt             *time.Time      `json:"enrolled_at,omitempty"`
}
