package waitlist

import (
	"context"
	"sort"

	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/kv"
	"github.com/ignite/waitlist-engine/internal/pkg/logger"
)

// List returns one page of entries ordered by position, then signup date.
// offset and limit are zero-based row bounds; total counts all entries.
func (s *Service) List(ctx context.Context, offset, limit int) ([]domain.WaitlistEntry, int) {
	entries := uniqueEntries(kv.List[domain.WaitlistEntry](ctx, s.store, domain.PrefixUser))
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Position != entries[j].Position {
			return entries[i].Position < entries[j].Position
		}
		return entries[i].SignupDate.Before(entries[j].SignupDate)
	})

	total := len(entries)
	if offset >= total {
		return []domain.WaitlistEntry{}, total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return entries[offset:end], total
}

// ReindexReport summarizes a Reindex run.
type ReindexReport struct {
	Scanned       int `json:"scanned"`
	HealedKeys    int `json:"healedKeys"`
	RemovedKeys   int `json:"removedKeys"`
	IndexedCodes  int `json:"indexedCodes"`
	RepairedCodes int `json:"repairedCodes"`
	Counter       int `json:"counter"`
}

// Reindex moves entries stored under non-canonical keys to their canonical
// key, rebuilds the referral-code index, and resets the advisory counter to
// the number of canonical entries.
func (s *Service) Reindex(ctx context.Context) (ReindexReport, error) {
	var report ReindexReport
	canonical := make(map[string]domain.WaitlistEntry)

	for _, rec := range kv.List[domain.WaitlistEntry](ctx, s.store, domain.PrefixUser) {
		report.Scanned++
		email := domain.NormalizeEmail(rec.Value.Email)
		if !domain.ValidEmail(email) {
			logger.Warn("reindex skipping entry with invalid email", "key", rec.Key)
			continue
		}
		key := domain.KeyUser(email)
		entry := rec.Value
		entry.Email = email

		if rec.Key != key {
			created, err := s.store.SetNX(ctx, key, entry)
			if err != nil {
				return report, &PersistenceError{Op: OpUpdate, Err: err}
			}
			if created {
				report.HealedKeys++
			}
			if err := s.store.Delete(ctx, rec.Key); err != nil {
				return report, &PersistenceError{Op: OpUpdate, Err: err}
			}
			report.RemovedKeys++
		}
		if _, seen := canonical[email]; !seen || rec.Key == key {
			canonical[email] = entry
		}
	}

	for email, entry := range canonical {
		if entry.ReferralCode == "" {
			continue
		}
		idxKey := domain.KeyReferralIndex(entry.ReferralCode)
		var idx domain.ReferralIndex
		found, err := s.store.Fetch(ctx, idxKey, &idx)
		if err != nil {
			return report, &PersistenceError{Op: OpRead, Err: err}
		}
		if found {
			if owner, ok := canonical[idx.Email]; ok && owner.ReferralCode == entry.ReferralCode {
				continue
			}
			report.RepairedCodes++
		} else {
			report.IndexedCodes++
		}
		if err := s.store.Set(ctx, idxKey, domain.ReferralIndex{Email: email, CreatedAt: s.now().UTC()}); err != nil {
			return report, &PersistenceError{Op: OpUpdate, Err: err}
		}
	}

	err := s.withLock(ctx, domain.KeyCounter, func() error {
		c := domain.WaitlistCounter{Count: len(canonical), LastUpdated: s.now().UTC()}
		if err := s.store.Set(ctx, domain.KeyCounter, c); err != nil {
			return &PersistenceError{Op: OpUpdate, Err: err}
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	report.Counter = len(canonical)

	logger.Info("waitlist reindex complete",
		"scanned", report.Scanned, "healed", report.HealedKeys, "removed", report.RemovedKeys,
		"indexed", report.IndexedCodes, "repaired", report.RepairedCodes)
	return report, nil
}
