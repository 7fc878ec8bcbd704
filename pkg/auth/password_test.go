package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		shouldFail bool
	}{
		{"valid strong password", "SecureP@ss123", false},
		{"valid with symbols", "MyP@ssw0rd!", false},
		{"too short", "Pass@1", true},
		{"missing uppercase", "securepass@123", true},
		{"missing lowercase", "SECUREPASS@123", true},
		{"missing digit", "SecurePass@xyz", true},
		{"missing special character", "SecurePass123", true},
		{"common password", "Password123!", true},
		{"too long", "Aa1@" + strings.Repeat("x", 80), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if !tt.shouldFail {
				assert.NoError(t, err)
				return
			}

			var pvErr *PasswordValidationError
			require.ErrorAs(t, err, &pvErr)
			assert.NotEmpty(t, pvErr.Errors)
			assert.Equal(t, "invalid password", err.Error(), "message must stay generic")
		})
	}
}

func TestHasher_HashAndCompare(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	hash, err := h.Hash("SecureP@ss123")
	require.NoError(t, err)
	assert.NotEqual(t, "SecureP@ss123", hash)

	assert.NoError(t, h.Compare(hash, "SecureP@ss123"))
	assert.ErrorIs(t, h.Compare(hash, "WrongP@ss123"), ErrPasswordMismatch)

	_, err = h.Hash("")
	assert.Error(t, err)
}

func TestHasher_CompareMalformedHash(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	err = h.Compare("not-a-hash", "whatever")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrPasswordMismatch)
}

func TestNewHasher_OutOfRangeCostFallsBack(t *testing.T) {
	h, err := NewHasher(0)
	require.NoError(t, err)
	assert.Equal(t, BcryptCost, h.cost)

	assert.NotPanics(t, func() { h.CompareDummy("anything") })
}
