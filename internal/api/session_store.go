package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"prepkitty/internal/practice"
)

const (
	sessionKeyPrefix   = "practice:session:"
	sessionLockTTL     = 60 * time.Second
	sessionStepTimeout = 45 * time.Second // 小于 sessionLockTTL

	// DefaultSessionTTL 是练习会话在 Redis 中的保留时长。
	DefaultSessionTTL = 2 * time.Hour
)

// ErrSessionNotFound 表示会话不存在或已过期。
var ErrSessionNotFound = errors.New("practice session not found")

// SessionStore 持久化练习会话。
type SessionStore interface {
	Save(ctx context.Context, s *practice.Session) error
	Load(ctx context.Context, id string) (*practice.Session, error)
	// Lock 获取会话的独占锁并返回持有令牌；ok 为 false 表示已有请求在处理该会话。
	Lock(ctx context.Context, id string) (token string, ok bool, err error)
	// Unlock 只释放仍由 token 持有的锁，锁过期后被他人取得时不做任何事。
	Unlock(ctx context.Context, id, token string) error
}

// RedisSessionStore 以 JSON 形式将会话保存在 Redis 中。
type RedisSessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisSessionStore 构造基于 Redis 的会话存储。
func NewRedisSessionStore(client redis.UniversalClient, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func sessionLockKey(id string) string {
	return sessionKeyPrefix + id + ":lock"
}

func (s *RedisSessionStore) Save(ctx context.Context, session *practice.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Load(ctx context.Context, id string) (*practice.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var session practice.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// unlockScript 比较锁的值后再删除。
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *RedisSessionStore) Lock(ctx context.Context, id string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, sessionLockKey(id), token, sessionLockTTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("lock session: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (s *RedisSessionStore) Unlock(ctx context.Context, id, token string) error {
	if err := unlockScript.Run(ctx, s.client, []string{sessionLockKey(id)}, token).Err(); err != nil {
		return fmt.Errorf("unlock session: %w", err)
	}
	return nil
}
