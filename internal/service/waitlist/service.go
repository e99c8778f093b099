package waitlist

import (
	"context"
	"net/url"
	"time"

	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/kv"
	"github.com/ignite/waitlist-engine/internal/pkg/distlock"
	"github.com/ignite/waitlist-engine/internal/ratelimit"
	"github.com/ignite/waitlist-engine/internal/token"
)

// Notifier delivers confirmation mail and publishes events. Both calls are
// fire-and-forget: SendConfirmation reports only whether the message was
// accepted for delivery.
type Notifier interface {
	SendConfirmation(ctx context.Context, msg domain.ConfirmationEmail) bool
	Publish(ctx context.Context, evt domain.Event)
}

// Metrics receives domain counters. Outcome labels are lower-case words
// such as "created", "duplicate" or "rate_limited".
type Metrics interface {
	Signup(outcome string)
	Confirmation(outcome string)
	ReferralBoost(boost int)
}

// Deps are the collaborators of the service. Store and Locker are required.
// A nil Limiter disables rate limiting, a nil Tokens disables confirmation,
// and nil Notifier or Metrics are replaced with no-ops.
type Deps struct {
	Store    *kv.Client
	Locker   distlock.Locker
	Limiter  ratelimit.Limiter
	Tokens   *token.Service
	Notifier Notifier
	Metrics  Metrics
}

// Config tunes queue behavior.
type Config struct {
	BoostMin       int
	BoostMax       int
	RecentWindow   time.Duration // lookback for Stats.RecentSignups
	ConfirmBaseURL string        // e.g. https://example.com/confirm-email
}

// Service implements the waitlist. It is safe for concurrent use.
type Service struct {
	store    *kv.Client
	locker   distlock.Locker
	limiter  ratelimit.Limiter
	tokens   *token.Service
	notifier Notifier
	metrics  Metrics
	cfg      Config

	now     func() time.Time
	randInt RandIntFunc
}

// NewService creates a waitlist service.
func NewService(deps Deps, cfg Config) *Service {
	if cfg.BoostMin <= 0 {
		cfg.BoostMin = 3
	}
	if cfg.BoostMax < cfg.BoostMin {
		cfg.BoostMax = max(cfg.BoostMin, 10)
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 24 * time.Hour
	}
	s := &Service{
		store:    deps.Store,
		locker:   deps.Locker,
		limiter:  deps.Limiter,
		tokens:   deps.Tokens,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		cfg:      cfg,
		now:      time.Now,
		randInt:  defaultRandInt,
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	return s
}

// ConfirmationEnabled reports whether tokens can be issued and validated.
func (s *Service) ConfirmationEnabled() bool { return s.tokens != nil }

// withLock runs fn while holding the keyed lock for key.
func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	release, err := s.locker.Lock(ctx, key)
	if err != nil {
		return &PersistenceError{Op: OpLock, Err: err}
	}
	defer release()
	return fn()
}

func (s *Service) confirmURL(tok string) string {
	if s.cfg.ConfirmBaseURL == "" {
		return ""
	}
	return s.cfg.ConfirmBaseURL + "?token=" + url.QueryEscape(tok)
}

func (s *Service) newEvent(t domain.EventType, data map[string]any) domain.Event {
	return domain.Event{Type: t, OccurredAt: s.now().UTC(), Data: data}
}

type nopNotifier struct{}

func (nopNotifier) SendConfirmation(context.Context, domain.ConfirmationEmail) bool { return false }
func (nopNotifier) Publish(context.Context, domain.Event)                           {}

type nopMetrics struct{}

func (nopMetrics) Signup(string)       {}
func (nopMetrics) Confirmation(string) {}
func (nopMetrics) ReferralBoost(int)   {}
