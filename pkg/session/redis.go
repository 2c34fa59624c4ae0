package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/stella/pkg/errorsx"
	"github.com/harunnryd/stella/pkg/language"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "stella:session:"

const (
	fieldLanguage  = "language"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// updateIfExists writes the language only when the session hash exists.
var updateIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'language', ARGV[1], 'updated_at', ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// RedisStore shares sessions between relay replicas. Each call is a hash
// under KeyPrefix+callID and expires after TTL without writes.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
}

func NewRedisStore(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if !strings.HasSuffix(keyPrefix, ":") {
		keyPrefix += ":"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, ttl: ttl, now: time.Now}
}

func (s *RedisStore) key(callID string) string {
	return s.keyPrefix + callID
}

func (s *RedisStore) Create(ctx context.Context, callID string) error {
	now := s.now().UTC().Format(time.RFC3339Nano)
	key := s.key(callID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		fieldLanguage, string(language.Default),
		fieldCreatedAt, now,
		fieldUpdatedAt, now,
	)
	if s.ttl > 0 {
		pipe.PExpire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errorsx.Wrap(fmt.Errorf("session create %s: %w", callID, err), errorsx.ReasonSessionStore)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, callID string) (Session, bool, error) {
	vals, err := s.client.HGetAll(ctx, s.key(callID)).Result()
	if err != nil {
		return Session{}, false, errorsx.Wrap(fmt.Errorf("session get %s: %w", callID, err), errorsx.ReasonSessionStore)
	}
	if len(vals) == 0 {
		return Session{}, false, nil
	}
	sess := Session{CallID: callID, Language: language.Default}
	if tag, ok := language.ParseTag(vals[fieldLanguage]); ok {
		sess.Language = tag
	}
	sess.CreatedAt = parseTime(vals[fieldCreatedAt])
	sess.UpdatedAt = parseTime(vals[fieldUpdatedAt])
	return sess, true, nil
}

func (s *RedisStore) Update(ctx context.Context, callID string, lang language.Tag) error {
	now := s.now().UTC().Format(time.RFC3339Nano)
	err := updateIfExists.Run(ctx, s.client, []string{s.key(callID)}, string(lang), now, s.ttl.Milliseconds()).Err()
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("session update %s: %w", callID, err), errorsx.ReasonSessionStore)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, callID string) error {
	if err := s.client.Del(ctx, s.key(callID)).Err(); err != nil {
		return errorsx.Wrap(fmt.Errorf("session remove %s: %w", callID, err), errorsx.ReasonSessionStore)
	}
	return nil
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts
}
