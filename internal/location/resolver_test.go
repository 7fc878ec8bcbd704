package location

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticResolver_Resolve(t *testing.T) {
	resolver, err := NewStaticResolver([]Range{
		{CIDR: "10.0.0.0/8", Location: "Private Network"},
		{CIDR: "10.1.0.0/16", Location: "New York, US"},
		{CIDR: "2001:db8::/32", Location: "Berlin, DE"},
	}, "")
	require.NoError(t, err)

	tests := []struct {
		name string
		ip   string
		want string
	}{
		{"most specific wins", "10.1.2.3", "New York, US"},
		{"broader block", "10.200.0.1", "Private Network"},
		{"ipv6", "2001:db8::1", "Berlin, DE"},
		{"ipv4-mapped ipv6", "::ffff:10.1.0.9", "New York, US"},
		{"no match", "192.0.2.1", models.UnknownLocation},
		{"garbage", "not-an-ip", models.UnknownLocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.Resolve(context.Background(), tt.ip)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStaticResolver_CancelledContext(t *testing.T) {
	resolver, err := NewStaticResolver(nil, "Somewhere")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = resolver.Resolve(ctx, "10.0.0.1")
	assert.ErrorIs(t, err, context.Canceled)

	got, err := resolver.Resolve(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Somewhere", got)
}

func TestNewStaticResolver_InvalidRanges(t *testing.T) {
	_, err := NewStaticResolver([]Range{{CIDR: "10.0.0.0/33", Location: "x"}}, "")
	assert.Error(t, err)

	_, err = NewStaticResolver([]Range{{CIDR: "10.0.0.0/8"}}, "")
	assert.Error(t, err)
}

func TestLoadStaticResolver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locations.toml")
	content := `
default = "Elsewhere"

[[range]]
cidr = "203.0.113.0/24"
location = "New York, US"

[[range]]
cidr = "198.51.100.0/24"
location = "Lagos, NG"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	resolver, err := LoadStaticResolver(path)
	require.NoError(t, err)

	got, _ := resolver.Resolve(context.Background(), "203.0.113.7")
	assert.Equal(t, "New York, US", got)

	got, _ = resolver.Resolve(context.Background(), "198.51.100.1")
	assert.Equal(t, "Lagos, NG", got)

	got, _ = resolver.Resolve(context.Background(), "8.8.8.8")
	assert.Equal(t, "Elsewhere", got)

	_, err = LoadStaticResolver(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
