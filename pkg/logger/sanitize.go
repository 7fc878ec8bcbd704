package logger

import (
	"strings"

	"github.com/BradenHooton/riskgate/internal/models"
)

// SanitizedEmail masks an email address for logging (e.g., "a****@e******.com")
func SanitizedEmail(email string) string {
	username, domain, ok := strings.Cut(email, "@")
	if !ok || username == "" || domain == "" {
		return "[invalid-email]"
	}

	if len(username) > 1 {
		username = username[:1] + strings.Repeat("*", len(username)-1)
	}

	// Keep the TLD only
	labels := strings.Split(domain, ".")
	if len(labels) > 1 {
		for i := 0; i < len(labels)-1; i++ {
			labels[i] = strings.Repeat("*", len(labels[i]))
		}
		domain = strings.Join(labels, ".")
	}

	return username + "@" + domain
}

// SanitizedPhone keeps the country prefix and the last four digits
// (e.g., "+1******0123")
func SanitizedPhone(phone string) string {
	if len(phone) < 7 {
		return "[invalid-phone]"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-6) + phone[len(phone)-4:]
}

// SanitizedTarget masks a one-time code destination according to its channel
func SanitizedTarget(channel models.Channel, target string) string {
	if channel == models.ChannelEmail {
		return SanitizedEmail(target)
	}
	return SanitizedPhone(target)
}

// sensitiveParams are query keys that cause the whole query string to be dropped from logs
var sensitiveParams = []string{
	"password",
	"token",
	"secret",
	"code",
	"recovery",
	"email",
	"phone",
	"auth",
}

// SanitizeQueryString reports whether rawQuery mentions a sensitive parameter
// and should be redacted in its entirety
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
