package waitlist

import (
	"context"
	"strings"
	"time"

	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/pkg/logger"
	"github.com/ignite/waitlist-engine/internal/token"
)

// ConfirmResult is the outcome of ConfirmEmail.
type ConfirmResult struct {
	Entry            domain.WaitlistEntry
	AlreadyConfirmed bool
	ConfirmedAt      time.Time
}

// ConfirmEmail validates tok and marks its entry confirmed. Confirming twice
// is not an error; the second call reports AlreadyConfirmed.
//
// Errors: ErrMissingToken, ErrTokensUnavailable, *token.TokenError,
// *NotFoundError, and *PersistenceError with Op OpRead, OpSave or OpLock.
func (s *Service) ConfirmEmail(ctx context.Context, tok string) (*ConfirmResult, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		s.metrics.Confirmation("missing_token")
		return nil, ErrMissingToken
	}
	if s.tokens == nil {
		s.metrics.Confirmation("unavailable")
		return nil, ErrTokensUnavailable
	}

	claims, err := s.tokens.Validate(tok)
	if err != nil {
		s.metrics.Confirmation("invalid_token")
		logger.Info("rejected confirmation token", "token", tok, "error", err)
		return nil, err
	}
	email := claims.Email
	key := domain.KeyUser(email)

	var result *ConfirmResult
	err = s.withLock(ctx, key, func() error {
		var entry domain.WaitlistEntry
		found, err := s.store.Fetch(ctx, key, &entry)
		if err != nil {
			return &PersistenceError{Op: OpRead, Err: err}
		}
		if !found {
			healed, ok := s.findEntry(ctx, email)
			if !ok {
				return &NotFoundError{Email: email}
			}
			entry = *healed
		}

		if entry.Confirmed {
			result = &ConfirmResult{Entry: entry, AlreadyConfirmed: true}
			if entry.EmailConfirmedAt != nil {
				result.ConfirmedAt = *entry.EmailConfirmedAt
			}
			return nil
		}

		now := s.now().UTC()
		entry.Confirmed = true
		entry.EmailConfirmedAt = &now
		if err := s.store.Set(ctx, key, entry); err != nil {
			return &PersistenceError{Op: OpSave, Err: err}
		}
		result = &ConfirmResult{Entry: entry, ConfirmedAt: now}
		return nil
	})
	if err != nil {
		s.metrics.Confirmation("error")
		logger.Warn("email confirmation failed", "email", email, "error", err)
		return nil, err
	}

	if result.AlreadyConfirmed {
		s.metrics.Confirmation("already_confirmed")
		return result, nil
	}

	s.markAuditConfirmed(ctx, tok, &result.Entry, result.ConfirmedAt)
	s.notifier.Publish(ctx, s.newEvent(domain.EventConfirmed, map[string]any{
		"email":        email,
		"position":     result.Entry.Position,
		"referralCode": result.Entry.ReferralCode,
		"confirmedAt":  result.ConfirmedAt,
	}))
	s.metrics.Confirmation("confirmed")
	logger.Info("email confirmed", "email", email, "position", result.Entry.Position)
	return result, nil
}

func (s *Service) markAuditConfirmed(ctx context.Context, tok string, entry *domain.WaitlistEntry, at time.Time) {
	key := domain.KeyConfirmation(token.Digest(tok))
	var rec domain.ConfirmationRecord
	if !s.store.Get(ctx, key, &rec) {
		rec = domain.ConfirmationRecord{Email: entry.Email, Position: entry.Position, CreatedAt: at}
	}
	rec.Confirmed = true
	rec.ConfirmedAt = &at
	if err := s.store.Set(ctx, key, rec); err != nil {
		logger.Warn("failed to update confirmation audit record", "email", entry.Email, "error", err)
	}
}

// RecordEmailSent updates the notifier bookkeeping on an entry after a
// confirmation email was delivered.
func (s *Service) RecordEmailSent(ctx context.Context, email string) {
	email = domain.NormalizeEmail(email)
	key := domain.KeyUser(email)
	err := s.withLock(ctx, key, func() error {
		var entry domain.WaitlistEntry
		found, err := s.store.Fetch(ctx, key, &entry)
		if err != nil || !found {
			return err
		}
		now := s.now().UTC()
		entry.EmailsSent++
		entry.LastEmailSent = &now
		return s.store.Set(ctx, key, entry)
	})
	if err != nil {
		logger.Warn("failed to record email delivery", "email", email, "error", err)
	}
}
