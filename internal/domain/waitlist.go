package domain

import "time"

// WaitlistEntry is the persisted record for one signed-up email.
// Stored as JSON under KeyUser(email).
type WaitlistEntry struct {
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	Position     int     `json:"position"`
	ReferralCode string  `json:"referralCode"`
	ReferredBy   *string `json:"referredBy"`

	Source      *string `json:"source"`
	UTMSource   *string `json:"utm_source"`
	UTMMedium   *string `json:"utm_medium"`
	UTMCampaign *string `json:"utm_campaign"`

	SignupDate       time.Time  `json:"signupDate"`
	Confirmed        bool       `json:"confirmed"`
	EmailConfirmedAt *time.Time `json:"emailConfirmedAt"`

	EmailsSent    int        `json:"emailsSent"`
	LastEmailSent *time.Time `json:"lastEmailSent"`

	ActivityCount  int       `json:"activityCount"`
	LastActiveDate time.Time `json:"lastActiveDate"`

	Referrals        int        `json:"referrals"`
	LastReferralDate *time.Time `json:"lastReferralDate,omitempty"`
}

// Status returns the lifecycle state derived from the confirmation fields.
func (e *WaitlistEntry) Status() EntryStatus {
	if e.Confirmed {
		return StatusConfirmed
	}
	return StatusPending
}

// EntryStatus enumerates the lifecycle states of a waitlist entry.
type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusConfirmed EntryStatus = "confirmed"
)

// WaitlistCounter is the advisory aggregate stored under KeyCounter.
// It seeds position assignment only; it is never authoritative.
type WaitlistCounter struct {
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// ConfirmationRecord is the optional audit trail for an issued token.
// Validation never depends on it.
type ConfirmationRecord struct {
	Email       string     `json:"email"`
	Position    int        `json:"position"`
	CreatedAt   time.Time  `json:"createdAt"`
	Confirmed   bool       `json:"confirmed"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
}

// ReferralIndex maps a referral code to the owning email.
type ReferralIndex struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// StringPtr returns nil for blank strings, otherwise a pointer to s.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
