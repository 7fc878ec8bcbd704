package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const (
	// RecoveryCodeCount is the number of recovery codes minted per enrollment
	RecoveryCodeCount = 10
	// RecoveryCodeLength is the number of characters in a recovery code
	RecoveryCodeLength = 8
	// OneTimeCodeDigits is the length of SMS/email codes
	OneTimeCodeDigits = 6
)

// Charset: A-Z 2-9 (excluding 0/O/1/I/L which are ambiguous)
const recoveryCharset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// GenerateRecoveryCodes generates count pairwise-distinct recovery codes
func GenerateRecoveryCodes(count int) ([]string, error) {
	seen := make(map[string]bool, count)
	codes := make([]string, 0, count)

	for len(codes) < count {
		code, err := randomString(recoveryCharset, RecoveryCodeLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate recovery code: %w", err)
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}

	return codes, nil
}

// NormalizeRecoveryCode trims surrounding whitespace and uppercases a code.
// Anything else must match exactly.
func NormalizeRecoveryCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// HashRecoveryCode returns the SHA-256 digest of the normalized code.
// Only digests are persisted.
func HashRecoveryCode(code string) string {
	sum := sha256.Sum256([]byte(NormalizeRecoveryCode(code)))
	return hex.EncodeToString(sum[:])
}

// HashRecoveryCodes digests every code in codes
func HashRecoveryCodes(codes []string) []string {
	digests := make([]string, len(codes))
	for i, code := range codes {
		digests[i] = HashRecoveryCode(code)
	}
	return digests
}

// GenerateOneTimeCode returns a uniformly random 6-digit numeric code
func GenerateOneTimeCode() (string, error) {
	code, err := randomString("0123456789", OneTimeCodeDigits)
	if err != nil {
		return "", fmt.Errorf("failed to generate one-time code: %w", err)
	}
	return code, nil
}

// randomString draws length characters from charset using crypto/rand
func randomString(charset string, length int) (string, error) {
	limit := big.NewInt(int64(len(charset)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}

// DeviceFingerprint summarizes client characteristics into a stable identifier
func DeviceFingerprint(userAgent, acceptLanguage string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(userAgent) + "|" + strings.TrimSpace(acceptLanguage)))
	return hex.EncodeToString(sum[:16])
}
