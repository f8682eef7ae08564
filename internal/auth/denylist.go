package auth

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist invalidates tokens before they expire: a single token on logout,
// or every token a user holds after a password change.
type Denylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	RevokeUser(ctx context.Context, userID string, ttl time.Duration) error
	IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

// RedisDenylist implements Denylist with expiring Redis keys.
type RedisDenylist struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

// NewRedisDenylist creates a denylist on an existing Redis client.
func NewRedisDenylist(client redis.UniversalClient) *RedisDenylist {
	return &RedisDenylist{client: client, keyPrefix: "auth:denylist:", now: time.Now}
}

func (d *RedisDenylist) jtiKey(jti string) string     { return d.keyPrefix + "jti:" + jti }
func (d *RedisDenylist) userKey(userID string) string { return d.keyPrefix + "user:" + userID }

// Revoke denies a token id for ttl, normally its remaining lifetime.
func (d *RedisDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, d.jtiKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked checks if a token id was revoked.
func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, d.jtiKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token denylist: %w", err)
	}
	return n > 0, nil
}

// RevokeUser denies every token of userID issued up to now.
func (d *RedisDenylist) RevokeUser(ctx context.Context, userID string, ttl time.Duration) error {
	if err := d.client.Set(ctx, d.userKey(userID), d.now().UnixMilli(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	return nil
}

// IsUserRevoked reports whether a token issued at issuedAt predates the
// user's last RevokeUser, compared in milliseconds. The token handed out by
// the revoking request is minted after the cutoff and stays valid.
func (d *RedisDenylist) IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	val, err := d.client.Get(ctx, d.userKey(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user revocation: %w", err)
	}
	cutoff, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, fmt.Errorf("failed to parse revocation time: %w", err)
	}
	return issuedAt.UnixMilli() < cutoff, nil
}

// MemoryDenylist is a single-process Denylist used when Redis is not configured.
type MemoryDenylist struct {
	mu    sync.Mutex
	jtis  map[string]time.Time
	users map[string]memoryRevocation
	now   func() time.Time
}

type memoryRevocation struct {
	at      time.Time
	expires time.Time
}

// NewMemoryDenylist creates an empty in-process denylist.
func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{
		jtis:  make(map[string]time.Time),
		users: make(map[string]memoryRevocation),
		now:   time.Now,
	}
}

func (d *MemoryDenylist) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jtis[jti] = d.now().Add(ttl)
	return nil
}

func (d *MemoryDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.jtis[jti]
	if !ok {
		return false, nil
	}
	if d.now().After(exp) {
		delete(d.jtis, jti)
		return false, nil
	}
	return true, nil
}

func (d *MemoryDenylist) RevokeUser(_ context.Context, userID string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	d.users[userID] = memoryRevocation{at: now, expires: now.Add(ttl)}
	return nil
}

func (d *MemoryDenylist) IsUserRevoked(_ context.Context, userID string, issuedAt time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rev, ok := d.users[userID]
	if !ok {
		return false, nil
	}
	if d.now().After(rev.expires) {
		delete(d.users, userID)
		return false, nil
	}
	return issuedAt.UnixMilli() < rev.at.UnixMilli(), nil
}

var (
	_ Denylist = (*RedisDenylist)(nil)
	_ Denylist = (*MemoryDenylist)(nil)
)
