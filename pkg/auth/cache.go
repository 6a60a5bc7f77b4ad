package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/rentgrid/rentgrid/pkg/observability"
)

// CachedSessionResolver is a read-through redis cache in front of a
// SessionResolver. Session records change rarely (the active org/team
// selection), so a short TTL keeps resolution off the database hot path
// without holding stale context for long.
//
// Only positive results are cached; misses always fall through so that a
// freshly issued token is usable immediately.
type CachedSessionResolver struct {
	inner   SessionResolver
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewCachedSessionResolver creates a caching session resolver. metrics may
// be nil when metrics are disabled.
func NewCachedSessionResolver(inner SessionResolver, client *redis.Client, ttl time.Duration, metrics *observability.Metrics) *CachedSessionResolver {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &CachedSessionResolver{
		inner:   inner,
		client:  client,
		ttl:     ttl,
		metrics: metrics,
	}
}

// sessionCacheKey hashes the token so raw session tokens never appear in redis
func sessionCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "session:" + hex.EncodeToString(sum[:])
}

// ResolveSession resolves via cache, falling back to the inner resolver.
// Redis failures degrade to a direct lookup rather than failing resolution.
func (c *CachedSessionResolver) ResolveSession(ctx context.Context, token string) (*Session, error) {
	key := sessionCacheKey(token)

	data, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var session Session
		if jsonErr := json.Unmarshal([]byte(data), &session); jsonErr == nil {
			if session.Expired() {
				c.client.Del(ctx, key)
				return nil, NewNotFoundError("session", "")
			}
			if c.metrics != nil {
				c.metrics.SessionCacheHitsTotal.Inc()
			}
			session.Token = token
			return &session, nil
		}
		// corrupt entry, drop it and fall through
		c.client.Del(ctx, key)
	} else if err != redis.Nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if c.metrics != nil {
		c.metrics.SessionCacheMissesTotal.Inc()
	}

	session, err := c.inner.ResolveSession(ctx, token)
	if err != nil {
		return nil, err
	}

	if payload, jsonErr := json.Marshal(session); jsonErr == nil {
		ttl := c.ttl
		if remaining := time.Until(session.ExpiresAt); remaining > 0 && remaining < ttl {
			ttl = remaining
		}
		c.client.Set(ctx, key, payload, ttl)
	}

	return session, nil
}

// TouchSession forwards the activity stamp to the inner resolver. The cached
// copy is left alone; last_seen_at is not part of the resolution result.
func (c *CachedSessionResolver) TouchSession(ctx context.Context, token string) error {
	if toucher, ok := c.inner.(SessionToucher); ok {
		return toucher.TouchSession(ctx, token)
	}
	return nil
}

// InvalidateSession drops a cached session, used when the active org/team
// selection changes mid-session.
func (c *CachedSessionResolver) InvalidateSession(ctx context.Context, token string) error {
	if err := c.client.Del(ctx, sessionCacheKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate session cache: %w", err)
	}
	return nil
}
