package waitlist

import (
	"context"

	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/kv"
	"github.com/ignite/waitlist-engine/internal/pkg/logger"
)

// findEntry looks up the entry for a normalized email.
//
// The canonical key is tried first. On a miss, every entry is scanned for one
// whose own email normalizes to the target. Such an entry was written under a
// stale key and is moved to the canonical key when found.
func (s *Service) findEntry(ctx context.Context, email string) (*domain.WaitlistEntry, bool) {
	var entry domain.WaitlistEntry
	if s.store.Get(ctx, domain.KeyUser(email), &entry) {
		return &entry, true
	}

	rec, ok := s.scanForEmail(ctx, email)
	if !ok {
		return nil, false
	}

	healed := rec.Value
	healed.Email = email
	if err := s.store.Set(ctx, domain.KeyUser(email), healed); err != nil {
		logger.Warn("failed to heal non-canonical entry", "email", email, "staleKey", rec.Key, "error", err)
		return &healed, true
	}
	if err := s.store.Delete(ctx, rec.Key); err != nil {
		logger.Warn("failed to delete stale entry key", "email", email, "staleKey", rec.Key, "error", err)
	}
	logger.Info("healed non-canonical entry", "email", email, "staleKey", rec.Key)
	return &healed, true
}

// uniqueEntries collapses records sharing a normalized email. The record
// under the canonical key wins.
func uniqueEntries(recs []kv.Record[domain.WaitlistEntry]) []domain.WaitlistEntry {
	byEmail := make(map[string]int, len(recs))
	out := make([]domain.WaitlistEntry, 0, len(recs))
	for _, rec := range recs {
		email := domain.NormalizeEmail(rec.Value.Email)
		i, seen := byEmail[email]
		if email == "" {
			out = append(out, rec.Value)
			continue
		}
		if !seen {
			byEmail[email] = len(out)
			out = append(out, rec.Value)
			continue
		}
		if rec.Key == domain.KeyUser(email) {
			out[i] = rec.Value
		}
	}
	return out
}

func (s *Service) scanForEmail(ctx context.Context, email string) (kv.Record[domain.WaitlistEntry], bool) {
	canonical := domain.KeyUser(email)
	for _, rec := range kv.List[domain.WaitlistEntry](ctx, s.store, domain.PrefixUser) {
		if rec.Key == canonical {
			continue
		}
		if domain.NormalizeEmail(rec.Value.Email) == email {
			return rec, true
		}
	}
	return kv.Record[domain.WaitlistEntry]{}, false
}
