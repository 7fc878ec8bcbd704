package repositories

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisOTPRepository_PutGet(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	repo := NewRedisOTPRepository(client, "")
	issued := time.Date(2024, 1, 1, 12, 0, 0, 123456000, time.UTC)

	require.NoError(t, repo.Put(ctx, &models.OneTimeCode{
		Channel: models.ChannelSMS, Target: "+15550100", Code: "123456", IssuedAt: issued,
	}))

	assert.True(t, mr.Exists("otp:sms:+15550100"))
	assert.Equal(t, 2*models.SMSCodeValidity, mr.TTL("otp:sms:+15550100"))

	code, err := repo.Get(ctx, models.ChannelSMS, "+15550100")
	require.NoError(t, err)
	assert.Equal(t, "123456", code.Code)
	assert.True(t, issued.Equal(code.IssuedAt))
	assert.False(t, code.Used)

	_, err = repo.Get(ctx, models.ChannelEmail, "+15550100")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRedisOTPRepository_MarkUsedOnce(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	repo := NewRedisOTPRepository(client, "test:")
	issued := time.Now().UTC()

	require.NoError(t, repo.Put(ctx, &models.OneTimeCode{
		Channel: models.ChannelEmail, Target: "b@example.com", Code: "654321", IssuedAt: issued,
	}))

	ok, err := repo.MarkUsed(ctx, models.ChannelEmail, "b@example.com", issued.Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.MarkUsed(ctx, models.ChannelEmail, "b@example.com", issued)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkUsed(ctx, models.ChannelEmail, "b@example.com", issued)
	require.NoError(t, err)
	assert.False(t, ok)

	code, err := repo.Get(ctx, models.ChannelEmail, "b@example.com")
	require.NoError(t, err)
	assert.True(t, code.Used)

	ok, err = repo.MarkUsed(ctx, models.ChannelSMS, "missing", issued)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisOTPRepository_ReissueResetsUsed(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	repo := NewRedisOTPRepository(client, "")
	first := time.Now().UTC()

	require.NoError(t, repo.Put(ctx, &models.OneTimeCode{Channel: models.ChannelSMS, Target: "t", Code: "111111", IssuedAt: first}))
	ok, _ := repo.MarkUsed(ctx, models.ChannelSMS, "t", first)
	require.True(t, ok)

	second := first.Add(time.Minute)
	require.NoError(t, repo.Put(ctx, &models.OneTimeCode{Channel: models.ChannelSMS, Target: "t", Code: "222222", IssuedAt: second}))

	code, err := repo.Get(ctx, models.ChannelSMS, "t")
	require.NoError(t, err)
	assert.Equal(t, "222222", code.Code)
	assert.False(t, code.Used)
}

func TestRedisOTPRepository_ConcurrentMarkUsed(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	repo := NewRedisOTPRepository(client, "")
	issued := time.Now().UTC()

	require.NoError(t, repo.Put(ctx, &models.OneTimeCode{Channel: models.ChannelSMS, Target: "t", Code: "111111", IssuedAt: issued}))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := repo.MarkUsed(ctx, models.ChannelSMS, "t", issued); err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestRedisOTPRepository_BackendDown(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	repo := NewRedisOTPRepository(client, "")
	mr.Close()

	err := repo.Put(ctx, &models.OneTimeCode{Channel: models.ChannelSMS, Target: "t", IssuedAt: time.Now()})
	assert.ErrorIs(t, err, models.ErrStorageFailure)

	_, err = repo.Get(ctx, models.ChannelSMS, "t")
	assert.ErrorIs(t, err, models.ErrStorageFailure)
}
