package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces credential keys when no prefix is given.
const DefaultRedisPrefix = "wareflow"

// RedisStore keeps the credential under "<prefix>:accessToken" and backend
// cookies as a JSON list under "<prefix>:cookies".
//
//	Performance: one Redis command per operation.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a [RedisStore] on client. An empty prefix uses
// [DefaultRedisPrefix].
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{redis: client, prefix: prefix}
}

// Key returns the Redis key holding the credential.
func (s *RedisStore) Key() string {
	return s.prefix + ":accessToken"
}

// Load implements [CredentialStore].
func (s *RedisStore) Load(ctx context.Context) (string, error) {
	value, err := s.redis.Get(ctx, s.Key()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if value == "" {
		return "", ErrNoCredential
	}
	return value, nil
}

// Save implements [CredentialStore]. The key never expires; credential
// expiry is judged from its claims.
func (s *RedisStore) Save(ctx context.Context, credential string) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return s.Clear(ctx)
	}
	if err := s.redis.Set(ctx, s.Key(), credential, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Clear implements [CredentialStore].
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.Key()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// CookieKey returns the Redis key holding persisted cookies.
func (s *RedisStore) CookieKey() string {
	return s.prefix + ":cookies"
}

// LoadCookies implements [CookieStore].
func (s *RedisStore) LoadCookies(ctx context.Context) ([]Cookie, error) {
	raw, err := s.redis.Get(ctx, s.CookieKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Cookie{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var cookies []Cookie
	if err := json.Unmarshal(raw, &cookies); err != nil {
		return nil, fmt.Errorf("%w: decode cookies: %v", ErrStoreUnavailable, err)
	}
	return cookies, nil
}

// SaveCookies implements [CookieStore]. An empty list deletes the key.
func (s *RedisStore) SaveCookies(ctx context.Context, cookies []Cookie) error {
	if len(cookies) == 0 {
		return s.ClearCookies(ctx)
	}
	raw, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("%w: encode cookies: %v", ErrStoreUnavailable, err)
	}
	if err := s.redis.Set(ctx, s.CookieKey(), raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ClearCookies implements [CookieStore].
func (s *RedisStore) ClearCookies(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.CookieKey()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
