package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisBlacklist(t *testing.T) (*RedisBlacklist, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBlacklist(client, ""), srv
}

func TestRedisBlacklistRevokeAndLookup(t *testing.T) {
	bl, srv := newRedisBlacklist(t)
	ctx := context.Background()

	revoked, err := bl.IsRevoked(ctx, "token-abc")
	if err != nil || revoked {
		t.Fatalf("fresh token reported revoked: %v, %v", revoked, err)
	}

	if err := bl.Revoke(ctx, "token-abc", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revoked, err = bl.IsRevoked(ctx, "token-abc")
	if err != nil || !revoked {
		t.Fatalf("revoked token not found: %v, %v", revoked, err)
	}

	// A different token is untouched.
	revoked, err = bl.IsRevoked(ctx, "token-xyz")
	if err != nil || revoked {
		t.Fatalf("unrelated token reported revoked: %v, %v", revoked, err)
	}

	// Only the hash of the token appears in the keyspace.
	if srv.Exists("jp:blacklist:token-abc") {
		t.Fatalf("raw token stored as key")
	}
	if !srv.Exists("jp:blacklist:" + HashToken("token-abc")) {
		t.Fatalf("hashed key missing")
	}
}

func TestRedisBlacklistEntryExpiresWithToken(t *testing.T) {
	bl, srv := newRedisBlacklist(t)
	ctx := context.Background()

	if err := bl.Revoke(ctx, "token-abc", time.Now().Add(30*time.Minute)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	srv.FastForward(31 * time.Minute)
	revoked, err := bl.IsRevoked(ctx, "token-abc")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if revoked {
		t.Fatalf("entry should have expired with the token")
	}
}

func TestRedisBlacklistExpiredTokenGetsMinimumTTL(t *testing.T) {
	bl, srv := newRedisBlacklist(t)
	ctx := context.Background()

	// Expiry in the past still yields a short-lived entry.
	if err := bl.Revoke(ctx, "token-abc", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revoked, err := bl.IsRevoked(ctx, "token-abc")
	if err != nil || !revoked {
		t.Fatalf("expired token not held in blacklist: %v, %v", revoked, err)
	}

	ttl := srv.TTL("jp:blacklist:" + HashToken("token-abc"))
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("minimum TTL wrong: %v", ttl)
	}
}

func TestRedisBlacklistFailsClosedWhenDown(t *testing.T) {
	bl, srv := newRedisBlacklist(t)
	ctx := context.Background()
	srv.Close()

	if _, err := bl.IsRevoked(ctx, "token-abc"); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("want ErrServiceUnavailable, got %v", err)
	}
	if err := bl.Revoke(ctx, "token-abc", time.Now().Add(time.Hour)); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("want ErrServiceUnavailable, got %v", err)
	}
}
