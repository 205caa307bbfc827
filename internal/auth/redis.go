package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBlacklist implements Blacklist on Redis with per-entry TTLs, so
// revoked tokens disappear on their own once they would have expired anyway.
type RedisBlacklist struct {
	client redis.UniversalClient
	prefix string
}

var _ Blacklist = (*RedisBlacklist)(nil)

func NewRedisBlacklist(client redis.UniversalClient, prefix string) *RedisBlacklist {
	if prefix == "" {
		prefix = "jp:blacklist"
	}
	return &RedisBlacklist{client: client, prefix: prefix}
}

func (b *RedisBlacklist) key(token string) string {
	return b.prefix + ":" + HashToken(token)
}

func (b *RedisBlacklist) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Already-expired tokens still get a short window to cover clock skew.
		ttl = time.Minute
	}
	if err := b.client.Set(ctx, b.key(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: blacklist write: %v", ErrServiceUnavailable, err)
	}
	return nil
}

func (b *RedisBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: blacklist lookup: %v", ErrServiceUnavailable, err)
	}
	return n > 0, nil
}
