package background

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnce_FailingTaskDoesNotStopOthers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var ran []string
	cm := NewCleanupManager(logger,
		Task{Name: "first", Run: func(ctx context.Context) (int64, error) {
			ran = append(ran, "first")
			return 0, errors.New("connection reset")
		}},
		Task{Name: "second", Run: func(ctx context.Context) (int64, error) {
			ran = append(ran, "second")
			return 3, nil
		}},
	)

	err := cm.RunOnce(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Equal(t, []string{"first", "second"}, ran)
	assert.True(t, strings.Contains(buf.String(), "removed=3"), buf.String())
}

func TestRunOnce_CancelledContext(t *testing.T) {
	ran := false
	cm := NewCleanupManager(discardLogger(), Task{Name: "noop", Run: func(ctx context.Context) (int64, error) {
		ran = true
		return 0, nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, cm.RunOnce(ctx), context.Canceled)
	assert.False(t, ran)
}

func TestStart_InvalidSchedule(t *testing.T) {
	cm := NewCleanupManager(discardLogger())
	assert.Error(t, cm.Start(context.Background(), "every now and then"))
}

func TestStart_RunsImmediately(t *testing.T) {
	runs := 0
	cm := NewCleanupManager(discardLogger(), Task{Name: "count", Run: func(ctx context.Context) (int64, error) {
		runs++
		return 0, nil
	}})

	require.NoError(t, cm.Start(context.Background(), "@every 1h"))
	cm.Stop()

	assert.Equal(t, 1, runs)
}

func TestStandardTasks(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	otps := repositories.NewMemoryOTPRepository()
	require.NoError(t, otps.Put(ctx, &models.OneTimeCode{
		Channel: models.ChannelSMS, Target: "+15555550123", Code: "123456",
		IssuedAt: now.Add(-6 * time.Minute),
	}))
	require.NoError(t, otps.Put(ctx, &models.OneTimeCode{
		Channel: models.ChannelEmail, Target: "alice@example.com", Code: "654321",
		IssuedAt: now.Add(-6 * time.Minute),
	}))

	twoFactor := repositories.NewMemoryTwoFactorRepository()
	require.NoError(t, twoFactor.SavePendingEnrollment(ctx, &models.PendingEnrollment{
		Email: "stale@example.com", Settings: models.EmailSettings{BackupEmail: "b@example.com"},
		StartedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, twoFactor.SavePendingEnrollment(ctx, &models.PendingEnrollment{
		Email: "fresh@example.com", Settings: models.EmailSettings{BackupEmail: "b@example.com"},
		StartedAt: now.Add(-time.Minute),
	}))

	sessions := repositories.NewMemorySessionRepository()
	require.NoError(t, sessions.Create(ctx, &models.Session{
		ID: "expired", AccountID: "a", IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))
	require.NoError(t, sessions.Create(ctx, &models.Session{
		ID: "live", AccountID: "a", IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	sweeps := 0
	cm := NewCleanupManager(discardLogger(),
		ExpiredCodesTask(otps, clock),
		StaleEnrollmentsTask(twoFactor, 15*time.Minute, clock),
		ExpiredSessionsTask(sessions, clock),
		SweepTask("login_flows", func() int { sweeps++; return 2 }),
	)
	require.NoError(t, cm.RunOnce(ctx))

	// The SMS code expired after 5 minutes, the email code lives 10
	_, err := otps.Get(ctx, models.ChannelSMS, "+15555550123")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = otps.Get(ctx, models.ChannelEmail, "alice@example.com")
	assert.NoError(t, err)

	_, err = twoFactor.GetPendingEnrollment(ctx, "stale@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = twoFactor.GetPendingEnrollment(ctx, "fresh@example.com")
	assert.NoError(t, err)

	_, err = sessions.Get(ctx, "expired")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = sessions.Get(ctx, "live")
	assert.NoError(t, err)

	assert.Equal(t, 1, sweeps)
}
