package api

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	refreshTokenBlacklistKeyPrefix = "auth:refresh:blacklist:"
	loginRateKeyPrefix             = "rate:login:"
	loginLockKeyPrefix             = "lock:login:"
	loginFailKeyPrefix             = "lock:login:fail:"
	resendRateKeyPrefix            = "rate:verify-resend:"
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

func incrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// loginRateKey 按 IP + 邮箱 + 小时分桶。
func loginRateKey(ip, email string, now time.Time) string {
	return loginRateKeyPrefix + ip + ":" + normalizeEmail(email) + ":" + now.UTC().Format("2006010215")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
