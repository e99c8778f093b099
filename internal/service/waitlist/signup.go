package waitlist

import (
	"context"
	"errors"
	"strings"

	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/pkg/logger"
	"github.com/ignite/waitlist-engine/internal/token"
)

// SignupRequest is the validated public signup payload.
type SignupRequest struct {
	Email        string `json:"email" validate:"required,max=254,waitlist_email"`
	Name         string `json:"name,omitempty" validate:"omitempty,max=100"`
	Source       string `json:"source,omitempty" validate:"omitempty,max=100"`
	ReferralCode string `json:"referralCode,omitempty" validate:"omitempty,max=32"`
	UTMSource    string `json:"utm_source,omitempty" validate:"omitempty,max=100"`
	UTMMedium    string `json:"utm_medium,omitempty" validate:"omitempty,max=100"`
	UTMCampaign  string `json:"utm_campaign,omitempty" validate:"omitempty,max=100"`
}

// SignupResult is the outcome of Signup.
type SignupResult struct {
	Entry             domain.WaitlistEntry
	Position          int
	ReferralCode      string
	TotalWaitlist     int
	EmailSent         bool
	NeedsConfirmation bool
	AlreadyExists     bool
	Referral          *ReferralBoost // set when this signup boosted a referrer
}

// Signup adds an email to the waitlist or returns its existing state.
// clientID keys the rate limiter, normally the client IP.
func (s *Service) Signup(ctx context.Context, req SignupRequest, clientID string) (*SignupResult, error) {
	email := domain.NormalizeEmail(req.Email)
	if email == "" {
		s.metrics.Signup("invalid")
		return nil, &ValidationError{Field: "email", Message: "email is required"}
	}
	if !domain.ValidEmail(email) {
		s.metrics.Signup("invalid")
		return nil, &ValidationError{Field: "email", Message: "please enter a valid email address"}
	}

	if err := s.checkRateLimit(ctx, clientID); err != nil {
		s.metrics.Signup("rate_limited")
		return nil, err
	}

	if existing, ok := s.findEntry(ctx, email); ok {
		return s.repeatSignup(ctx, existing)
	}

	counter := s.readCounter(ctx)
	now := s.now().UTC()
	refCode := ReferralCode(email)

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = domain.LocalPart(email)
	}
	referredBy := strings.TrimSpace(req.ReferralCode)

	entry := domain.WaitlistEntry{
		Email:          email,
		Name:           name,
		Position:       AssignPosition(counter.Count, s.randInt),
		ReferralCode:   refCode,
		ReferredBy:     domain.StringPtr(referredBy),
		Source:         domain.StringPtr(strings.TrimSpace(req.Source)),
		UTMSource:      domain.StringPtr(strings.TrimSpace(req.UTMSource)),
		UTMMedium:      domain.StringPtr(strings.TrimSpace(req.UTMMedium)),
		UTMCampaign:    domain.StringPtr(strings.TrimSpace(req.UTMCampaign)),
		SignupDate:     now,
		ActivityCount:  1,
		LastActiveDate: now,
	}

	created, err := s.store.SetNX(ctx, domain.KeyUser(email), entry)
	if err != nil {
		s.metrics.Signup("error")
		logger.Error("failed to persist signup", "email", email, "error", err)
		return nil, &PersistenceError{Op: OpCreate, Err: err}
	}
	if !created {
		// A concurrent signup for the same email won; this call is a repeat.
		var winner domain.WaitlistEntry
		if !s.store.Get(ctx, domain.KeyUser(email), &winner) {
			s.metrics.Signup("error")
			return nil, &PersistenceError{Op: OpCreate, Err: errors.New("entry vanished after conflicting create")}
		}
		return s.repeatSignup(ctx, &winner)
	}

	total := s.incrementCounter(ctx, counter.Count)
	s.indexReferralCode(ctx, refCode, email)

	result := &SignupResult{
		Entry:             entry,
		Position:          entry.Position,
		ReferralCode:      entry.ReferralCode,
		TotalWaitlist:     total,
		NeedsConfirmation: true,
	}

	if referredBy != "" {
		boost, err := s.applyReferral(ctx, referredBy, email)
		if err != nil {
			logger.Warn("referral boost failed", "email", email, "code", referredBy, "error", err)
		}
		result.Referral = boost
	}

	result.EmailSent = s.sendConfirmation(ctx, &entry, false)
	s.notifier.Publish(ctx, s.newEvent(domain.EventSignup, map[string]any{
		"email":        entry.Email,
		"name":         entry.Name,
		"position":     entry.Position,
		"referralCode": entry.ReferralCode,
		"referredBy":   referredBy,
		"source":       strings.TrimSpace(req.Source),
		"total":        total,
	}))

	s.metrics.Signup("created")
	logger.Info("waitlist signup", "email", email, "position", entry.Position, "total", total)
	return result, nil
}

// repeatSignup records activity on an existing entry and returns its state
// unchanged. Unconfirmed entries get the confirmation email again.
func (s *Service) repeatSignup(ctx context.Context, existing *domain.WaitlistEntry) (*SignupResult, error) {
	email := domain.NormalizeEmail(existing.Email)
	key := domain.KeyUser(email)

	entry := *existing
	err := s.withLock(ctx, key, func() error {
		var fresh domain.WaitlistEntry
		if found, err := s.store.Fetch(ctx, key, &fresh); err == nil && found {
			entry = fresh
		}
		entry.ActivityCount++
		entry.LastActiveDate = s.now().UTC()
		return s.store.Set(ctx, key, entry)
	})
	if err != nil {
		s.metrics.Signup("error")
		logger.Error("failed to record repeat signup", "email", email, "error", err)
		var perr *PersistenceError
		if errors.As(err, &perr) {
			return nil, perr
		}
		return nil, &PersistenceError{Op: OpUpdate, Err: err}
	}

	result := &SignupResult{
		Entry:             entry,
		Position:          entry.Position,
		ReferralCode:      entry.ReferralCode,
		TotalWaitlist:     s.readCounter(ctx).Count,
		NeedsConfirmation: !entry.Confirmed,
		AlreadyExists:     true,
	}
	if !entry.Confirmed {
		result.EmailSent = s.sendConfirmation(ctx, &entry, true)
	}

	s.notifier.Publish(ctx, s.newEvent(domain.EventDuplicate, map[string]any{
		"email":         entry.Email,
		"position":      entry.Position,
		"activityCount": entry.ActivityCount,
		"confirmed":     entry.Confirmed,
	}))
	s.metrics.Signup("duplicate")
	logger.Info("repeat waitlist signup", "email", email, "activityCount", entry.ActivityCount)
	return result, nil
}

func (s *Service) checkRateLimit(ctx context.Context, clientID string) error {
	if s.limiter == nil {
		return nil
	}
	if clientID == "" {
		clientID = "unknown"
	}
	d, err := s.limiter.Allow(ctx, clientID)
	if err != nil {
		// Fail open: the limiter is abuse deterrence, not a guarantee.
		logger.Warn("rate limiter unavailable, allowing signup", "client", clientID, "error", err)
		return nil
	}
	if !d.Allowed {
		logger.Info("signup rate limited", "client", clientID, "retryAfter", d.RetryAfter)
		return &RateLimitError{RetryAfter: d.RetryAfter, Remaining: d.Remaining}
	}
	return nil
}

// sendConfirmation issues a token, records its audit entry and queues the
// email. It reports whether the email was accepted for delivery.
func (s *Service) sendConfirmation(ctx context.Context, entry *domain.WaitlistEntry, resend bool) bool {
	if s.tokens == nil {
		return false
	}
	tok := s.tokens.Issue(entry.Email)

	audit := domain.ConfirmationRecord{
		Email:     entry.Email,
		Position:  entry.Position,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Set(ctx, domain.KeyConfirmation(token.Digest(tok)), audit); err != nil {
		logger.Warn("failed to write confirmation audit record", "email", entry.Email, "error", err)
	}

	return s.notifier.SendConfirmation(ctx, domain.ConfirmationEmail{
		Email:        entry.Email,
		Name:         entry.Name,
		Position:     entry.Position,
		ReferralCode: entry.ReferralCode,
		ConfirmURL:   s.confirmURL(tok),
		Resend:       resend,
	})
}

func (s *Service) readCounter(ctx context.Context) domain.WaitlistCounter {
	var c domain.WaitlistCounter
	s.store.Get(ctx, domain.KeyCounter, &c)
	return c
}

// incrementCounter bumps the advisory counter and returns the new total.
// Failures are logged; the caller falls back to seen+1.
func (s *Service) incrementCounter(ctx context.Context, seen int) int {
	total := seen + 1
	err := s.withLock(ctx, domain.KeyCounter, func() error {
		c := s.readCounter(ctx)
		c.Count++
		c.LastUpdated = s.now().UTC()
		if err := s.store.Set(ctx, domain.KeyCounter, c); err != nil {
			return err
		}
		total = c.Count
		return nil
	})
	if err != nil {
		logger.Warn("failed to increment waitlist counter", "error", err)
	}
	return total
}
