package domain

// Persisted key layout.
const (
	PrefixUser          = "waitlist_user_"
	KeyCounter          = "waitlist_count"
	PrefixConfirmation  = "email_confirmation_"
	PrefixReferralIndex = "referral_code_index_"
	PrefixRateLimit     = "ratelimit_"
	PrefixAdminSession  = "admin_session_"
)

// KeyUser returns the canonical key for a normalized email.
func KeyUser(email string) string { return PrefixUser + email }

// KeyConfirmation returns the audit key for a token digest.
func KeyConfirmation(tokenDigest string) string { return PrefixConfirmation + tokenDigest }

// KeyReferralIndex returns the index key for a referral code.
func KeyReferralIndex(code string) string { return PrefixReferralIndex + code }

// KeyRateLimit returns the limiter record key for a client identity.
func KeyRateLimit(identity string) string { return PrefixRateLimit + identity }

// KeyAdminSession returns the key for an admin session ID.
func KeyAdminSession(id string) string { return PrefixAdminSession + id }
