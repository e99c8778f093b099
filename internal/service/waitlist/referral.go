package waitlist

import (
	"context"

	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/kv"
	"github.com/ignite/waitlist-engine/internal/pkg/logger"
)

// ReferralBoost describes one applied referral.
type ReferralBoost struct {
	ReferrerEmail string
	Boost         int
	OldPosition   int
	NewPosition   int
}

// indexReferralCode records code → email. The first owner of a code keeps it.
func (s *Service) indexReferralCode(ctx context.Context, code, email string) {
	idx := domain.ReferralIndex{Email: email, CreatedAt: s.now().UTC()}
	if _, err := s.store.SetNX(ctx, domain.KeyReferralIndex(code), idx); err != nil {
		logger.Warn("failed to write referral index", "code", code, "email", email, "error", err)
	}
}

// findReferrer resolves a referral code to the owning entry's email using the
// index, then a full scan for entries that predate the index.
func (s *Service) findReferrer(ctx context.Context, code string) (string, *domain.WaitlistEntry, bool) {
	var idx domain.ReferralIndex
	if s.store.Get(ctx, domain.KeyReferralIndex(code), &idx) {
		var entry domain.WaitlistEntry
		if s.store.Get(ctx, domain.KeyUser(idx.Email), &entry) && entry.ReferralCode == code {
			return idx.Email, &entry, true
		}
	}

	for _, rec := range kv.List[domain.WaitlistEntry](ctx, s.store, domain.PrefixUser) {
		if rec.Value.ReferralCode != code {
			continue
		}
		email := domain.NormalizeEmail(rec.Value.Email)
		repaired := domain.ReferralIndex{Email: email, CreatedAt: s.now().UTC()}
		if err := s.store.Set(ctx, domain.KeyReferralIndex(code), repaired); err != nil {
			logger.Warn("failed to repair referral index", "code", code, "error", err)
		}
		entry := rec.Value
		return email, &entry, true
	}
	return "", nil, false
}

// applyReferral moves the owner of code up the queue. A code that matches no
// entry, including one whose owner has not been persisted yet, is a no-op.
func (s *Service) applyReferral(ctx context.Context, code, newEmail string) (*ReferralBoost, error) {
	referrerEmail, scanned, ok := s.findReferrer(ctx, code)
	if !ok {
		logger.Debug("referral code matched no entry", "code", code, "email", newEmail)
		return nil, nil
	}
	if referrerEmail == newEmail {
		logger.Debug("ignoring self-referral", "email", newEmail)
		return nil, nil
	}

	key := domain.KeyUser(referrerEmail)
	var result *ReferralBoost
	err := s.withLock(ctx, key, func() error {
		var referrer domain.WaitlistEntry
		found, err := s.store.Fetch(ctx, key, &referrer)
		if err != nil {
			return err
		}
		if !found {
			// Entry only exists under a stale key; boosting writes it canonically.
			referrer = *scanned
			referrer.Email = referrerEmail
		}

		boost := s.randInt(s.cfg.BoostMin, s.cfg.BoostMax)
		now := s.now().UTC()
		result = &ReferralBoost{
			ReferrerEmail: referrerEmail,
			Boost:         boost,
			OldPosition:   referrer.Position,
			NewPosition:   boostedPosition(referrer.Position, boost),
		}
		referrer.Position = result.NewPosition
		referrer.Referrals++
		referrer.LastReferralDate = &now
		return s.store.Set(ctx, key, referrer)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ReferralBoost(result.Boost)
	s.notifier.Publish(ctx, s.newEvent(domain.EventReferral, map[string]any{
		"referrer":     result.ReferrerEmail,
		"referred":     newEmail,
		"referralCode": code,
		"boost":        result.Boost,
		"oldPosition":  result.OldPosition,
		"newPosition":  result.NewPosition,
	}))
	logger.Info("referral boost applied", "referrer", referrerEmail, "boost", result.Boost, "position", result.NewPosition)
	return result, nil
}
