package logger

import (
	"testing"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"alice@example.com", "a****@*******.com"},
		{"a@b.io", "a@*.io"},
		{"a@example.co.uk", "a@*******.**.uk"},
		{"bob@localhost", "b**@localhost"},
		{"not-an-email", "[invalid-email]"},
		{"@example.com", "[invalid-email]"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizedEmail(tt.input))
		})
	}
}

func TestSanitizedPhone(t *testing.T) {
	assert.Equal(t, "+1******0123", SanitizedPhone("+15555550123"))
	assert.Equal(t, "+4*******6789", SanitizedPhone("+491512346789"))
	assert.Equal(t, "[invalid-phone]", SanitizedPhone("+123"))
}

func TestSanitizedTarget(t *testing.T) {
	assert.Equal(t, "a****@*******.com", SanitizedTarget(models.ChannelEmail, "alice@example.com"))
	assert.Equal(t, "+1******0123", SanitizedTarget(models.ChannelSMS, "+15555550123"))
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("code=123456"))
	assert.True(t, SanitizeQueryString("Email=alice%40example.com"))
	assert.True(t, SanitizeQueryString("access_token=abc"))
	assert.False(t, SanitizeQueryString("page=2&limit=10"))
	assert.False(t, SanitizeQueryString(""))
}
