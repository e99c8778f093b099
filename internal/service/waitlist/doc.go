// Package waitlist implements the waitlist queue and referral engine.
//
// A signup is normalized, rate limited, checked for an existing entry, and
// either returns the existing queue state (idempotent repeat) or creates a
// new entry with a banded-random position and a deterministic referral code.
// A referred signup moves its referrer up the queue. Confirmation tokens
// flip an entry from pending to confirmed.
//
// All state lives in the kv store. Updates to an existing entry run under a
// keyed lock from distlock; creation relies on the store's create-if-absent
// primitive. Email delivery and webhooks go through the Notifier interface
// and never affect the outcome of the operation that triggered them.
package waitlist
