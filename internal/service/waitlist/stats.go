package waitlist

import (
	"context"
	"math"
	"time"

	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/kv"
	"github.com/ignite/waitlist-engine/internal/pkg/logger"
)

// Stats is the public waitlist summary.
type Stats struct {
	TotalUsers     int       `json:"totalUsers"`
	ConfirmedUsers int       `json:"confirmedUsers"`
	RecentSignups  int       `json:"recentSignups"`
	ConversionRate float64   `json:"conversionRate"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// Stats aggregates over all entries. Store failures degrade to zero counts.
func (s *Service) Stats(ctx context.Context) Stats {
	recs := kv.List[domain.WaitlistEntry](ctx, s.store, domain.PrefixUser)
	entries := uniqueEntries(recs)
	now := s.now().UTC()
	cutoff := now.Add(-s.cfg.RecentWindow)

	st := Stats{TotalUsers: len(entries)}
	if n, err := s.store.Count(ctx, domain.PrefixUser); err != nil {
		logger.Warn("failed to count waitlist entries", "error", err)
	} else if n > len(recs) {
		// Undecodable records still count as signups.
		st.TotalUsers += n - len(recs)
	}

	for _, e := range entries {
		if e.Confirmed {
			st.ConfirmedUsers++
		}
		if e.SignupDate.After(cutoff) {
			st.RecentSignups++
		}
	}
	st.ConversionRate = conversionRate(st.ConfirmedUsers, st.TotalUsers)

	st.LastUpdated = now
	if c := s.readCounter(ctx); !c.LastUpdated.IsZero() {
		st.LastUpdated = c.LastUpdated
	}
	return st
}

func conversionRate(confirmed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(confirmed)/float64(total)*10000) / 100
}

// UserStatus is the public view of one entry.
type UserStatus struct {
	Entry domain.WaitlistEntry
	Total int
}

// Status looks up an entry by email.
func (s *Service) Status(ctx context.Context, email string) (*UserStatus, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, &ValidationError{Field: "email", Message: "email is required"}
	}
	if !domain.ValidEmail(email) {
		return nil, &ValidationError{Field: "email", Message: "please enter a valid email address"}
	}

	entry, ok := s.findEntry(ctx, email)
	if !ok {
		return nil, &NotFoundError{Email: email}
	}

	total := s.readCounter(ctx).Count
	if total == 0 {
		if n, err := s.store.Count(ctx, domain.PrefixUser); err == nil {
			total = n
		}
	}
	return &UserStatus{Entry: *entry, Total: total}, nil
}
