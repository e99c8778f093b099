// Package token issues and validates email confirmation tokens.
//
// A token is base64url(email ":" issuedMillis ":" nonce) "." base64url(mac)
// where mac is HMAC-SHA256 over the first segment with a server secret.
// Validation needs no storage lookup: signature, structure, email syntax and
// age are all checked from the token itself.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/waitlist-engine/internal/domain"
)

// DefaultTTL is how long a confirmation link stays valid.
const DefaultTTL = 24 * time.Hour

// clockSkew is how far in the future an issue time may lie before the token
// is treated as forged.
const clockSkew = time.Minute

// ErrNoSecret is returned by New when no signing secret is configured.
var ErrNoSecret = errors.New("token: signing secret is required")

// Reason classifies a rejected token.
type Reason string

const (
	ReasonExpired          Reason = "EXPIRED"
	ReasonMalformed        Reason = "MALFORMED"
	ReasonInvalidSignature Reason = "INVALID_SIGNATURE"
)

// TokenError is returned by Validate for any rejected token.
type TokenError struct {
	Reason Reason
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("confirmation token rejected: %s", e.Reason)
}

// Claims is what a valid token proves.
type Claims struct {
	Email    string
	IssuedAt time.Time
}

// Service signs and verifies tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a token service. A zero ttl uses DefaultTTL.
func New(secret string, ttl time.Duration, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Service{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the validity window.
func (s *Service) TTL() time.Duration { return s.ttl }

var enc = base64.RawURLEncoding

// Issue returns a fresh token for email. The email is normalized first.
func (s *Service) Issue(email string) string {
	payload := fmt.Sprintf("%s:%d:%s", domain.NormalizeEmail(email), s.now().UnixMilli(), uuid.NewString())
	body := enc.EncodeToString([]byte(payload))
	return body + "." + enc.EncodeToString(s.sign(body))
}

// Validate checks the token and returns its claims, or a *TokenError.
func (s *Service) Validate(tok string) (Claims, error) {
	body, sig, ok := strings.Cut(strings.TrimSpace(tok), ".")
	if !ok || body == "" || sig == "" {
		return Claims{}, &TokenError{Reason: ReasonMalformed}
	}

	mac, err := enc.DecodeString(sig)
	if err != nil {
		return Claims{}, &TokenError{Reason: ReasonMalformed}
	}
	if !hmac.Equal(mac, s.sign(body)) {
		return Claims{}, &TokenError{Reason: ReasonInvalidSignature}
	}

	raw, err := enc.DecodeString(body)
	if err != nil {
		return Claims{}, &TokenError{Reason: ReasonMalformed}
	}
	email, issued, ok := parsePayload(string(raw))
	if !ok || !domain.ValidEmail(email) {
		return Claims{}, &TokenError{Reason: ReasonMalformed}
	}

	now := s.now()
	if issued.After(now.Add(clockSkew)) {
		return Claims{}, &TokenError{Reason: ReasonMalformed}
	}
	if now.Sub(issued) >= s.ttl {
		return Claims{}, &TokenError{Reason: ReasonExpired}
	}
	return Claims{Email: email, IssuedAt: issued}, nil
}

// Digest is the storage-safe identifier for a token, used for audit keys.
func Digest(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

func (s *Service) sign(body string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(body))
	return h.Sum(nil)
}

// parsePayload splits from the right: the email may itself contain ':'.
func parsePayload(p string) (string, time.Time, bool) {
	i := strings.LastIndex(p, ":")
	if i <= 0 {
		return "", time.Time{}, false
	}
	rest, nonce := p[:i], p[i+1:]
	j := strings.LastIndex(rest, ":")
	if j <= 0 || nonce == "" {
		return "", time.Time{}, false
	}
	millis, err := strconv.ParseInt(rest[j+1:], 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return rest[:j], time.UnixMilli(millis), true
}
