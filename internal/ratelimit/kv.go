package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/kv"
	"github.com/ignite/waitlist-engine/internal/pkg/distlock"
)

// windowRecord is stored at ratelimit_{id}. Expiry is checked on read, so
// stale records are harmless and simply get overwritten.
type windowRecord struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"windowStart"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// KVLimiter stores windows as KV records. It is used when Redis is not
// configured; a keyed lock serializes updates to one identifier.
type KVLimiter struct {
	store  *kv.Client
	locker distlock.Locker
	cfg    Config
	now    func() time.Time
}

// NewKVLimiter creates a record-backed limiter.
func NewKVLimiter(store *kv.Client, locker distlock.Locker, cfg Config) *KVLimiter {
	return &KVLimiter{store: store, locker: locker, cfg: cfg.withDefaults(), now: time.Now}
}

func (l *KVLimiter) Allow(ctx context.Context, id string) (Decision, error) {
	key := domain.KeyRateLimit(id)

	release, err := l.locker.Lock(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit lock: %w", err)
	}
	defer release()

	now := l.now()
	var rec windowRecord
	found, err := l.store.Fetch(ctx, key, &rec)
	if err != nil {
		return Decision{}, err
	}
	if !found || !now.Before(rec.ExpiresAt) {
		rec = windowRecord{WindowStart: now, ExpiresAt: now.Add(l.cfg.Window)}
	}

	if rec.Count >= l.cfg.Limit {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: rec.ExpiresAt.Sub(now)}, nil
	}

	rec.Count++
	if err := l.store.Set(ctx, key, rec); err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: true, Remaining: l.cfg.Limit - rec.Count}, nil
}
