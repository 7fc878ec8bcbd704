package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/redis/go-redis/v9"
)

// markUsedLua flips the used field only while the stored code is still the
// one issued at ARGV[1]. Returns 1 when this call consumed the code.
var markUsedLua = redis.NewScript(`
local issued = redis.call('HGET', KEYS[1], 'issued_at')
if not issued then
	return 0
end
if issued ~= ARGV[1] then
	return 0
end
if redis.call('HGET', KEYS[1], 'used') == '1' then
	return 0
end
redis.call('HSET', KEYS[1], 'used', '1')
return 1
`)

// RedisOTPRepository stores one-time codes as Redis hashes under otp:<channel>:<target>.
// Keys outlive the validity window so an expired code is reported as expired
// rather than missing; Redis evicts them afterwards.
type RedisOTPRepository struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisOTPRepository creates a Redis-backed OTPRepository. An empty prefix means none.
func NewRedisOTPRepository(client redis.UniversalClient, prefix string) *RedisOTPRepository {
	return &RedisOTPRepository{redis: client, prefix: prefix}
}

func (r *RedisOTPRepository) key(channel models.Channel, target string) string {
	return r.prefix + models.OTPKey(channel, target)
}

func (r *RedisOTPRepository) Put(ctx context.Context, code *models.OneTimeCode) error {
	key := r.key(code.Channel, code.Target)
	used := "0"
	if code.Used {
		used = "1"
	}

	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"code", code.Code,
			"issued_at", strconv.FormatInt(code.IssuedAt.UnixNano(), 10),
			"used", used,
		)
		pipe.PExpire(ctx, key, 2*code.Channel.Validity())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: failed to store one-time code: %v", models.ErrStorageFailure, err)
	}

	return nil
}

func (r *RedisOTPRepository) Get(ctx context.Context, channel models.Channel, target string) (*models.OneTimeCode, error) {
	fields, err := r.redis.HGetAll(ctx, r.key(channel, target)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to load one-time code: %v", models.ErrStorageFailure, err)
	}
	if len(fields) == 0 {
		return nil, models.ErrNotFound
	}

	issuedNanos, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt one-time code record: %v", models.ErrStorageFailure, err)
	}

	return &models.OneTimeCode{
		Channel:  channel,
		Target:   target,
		Code:     fields["code"],
		IssuedAt: time.Unix(0, issuedNanos).UTC(),
		Used:     fields["used"] == "1",
	}, nil
}

func (r *RedisOTPRepository) MarkUsed(ctx context.Context, channel models.Channel, target string, issuedAt time.Time) (bool, error) {
	res, err := markUsedLua.Run(ctx, r.redis,
		[]string{r.key(channel, target)},
		strconv.FormatInt(issuedAt.UnixNano(), 10),
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: failed to mark one-time code used: %v", models.ErrStorageFailure, err)
	}

	return res == 1, nil
}

// DeleteExpired is a no-op; key TTLs handle eviction
func (r *RedisOTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
