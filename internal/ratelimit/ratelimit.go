// Package ratelimit implements the shared fixed-window signup limiter.
//
// The window opens on the first hit for an identifier (client IP) and lasts
// Window; at most Limit hits are accepted inside it. Denied hits do not
// extend or consume the window.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // zero when allowed
}

// RetryAfterSeconds rounds RetryAfter up so a denied caller never sees 0.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter is implemented by the Redis and KV-record backends.
type Limiter interface {
	Allow(ctx context.Context, id string) (Decision, error)
}

// Config holds the window shape.
type Config struct {
	Limit  int
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = 5
	}
	if c.Window <= 0 {
		c.Window = time.Hour
	}
	return c
}
