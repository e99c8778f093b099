package token

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, now *time.Time) *Service {
	t.Helper()
	s, err := New("test-secret", 0, WithClock(func() time.Time { return *now }))
	require.NoError(t, err)
	return s
}

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()
	var te *TokenError
	require.True(t, errors.As(err, &te), "expected *TokenError, got %v", err)
	return te.Reason
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New("", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestIssueValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestService(t, &now)

	tok := s.Issue("  Alice@Example.COM ")
	assert.NotContains(t, tok, "alice", "email must not appear in clear")

	now = now.Add(time.Hour)
	claims, err := s.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, now.Add(-time.Hour).UnixMilli(), claims.IssuedAt.UnixMilli())
}

func TestIssueIsUnique(t *testing.T) {
	now := time.Now()
	s := newTestService(t, &now)
	assert.NotEqual(t, s.Issue("a@x.com"), s.Issue("a@x.com"))
}

func TestExpiryBoundary(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := issued
	s := newTestService(t, &now)
	tok := s.Issue("a@x.com")

	now = issued.Add(23*time.Hour + 59*time.Minute)
	_, err := s.Validate(tok)
	assert.NoError(t, err)

	now = issued.Add(24 * time.Hour)
	_, err = s.Validate(tok)
	assert.Equal(t, ReasonExpired, reasonOf(t, err))

	now = issued.Add(24*time.Hour + time.Minute)
	_, err = s.Validate(tok)
	assert.Equal(t, ReasonExpired, reasonOf(t, err))
}

func TestValidateRejectsFutureIssueTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestService(t, &now)

	now = now.Add(2 * time.Hour)
	tok := s.Issue("a@x.com")
	now = now.Add(-2 * time.Hour)

	_, err := s.Validate(tok)
	assert.Equal(t, ReasonMalformed, reasonOf(t, err))

	now = now.Add(2*time.Hour - 30*time.Second)
	_, err = s.Validate(tok)
	assert.NoError(t, err, "small skew is tolerated")
}

func TestValidateRejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestService(t, &now)
	good := s.Issue("a@x.com")
	body, sig, _ := strings.Cut(good, ".")

	other, err := New("other-secret", 0)
	require.NoError(t, err)
	other.now = s.now

	forge := func(payload string) string {
		b := enc.EncodeToString([]byte(payload))
		return b + "." + enc.EncodeToString(s.sign(b))
	}

	tests := []struct {
		name  string
		token string
		want  Reason
	}{
		{"empty", "", ReasonMalformed},
		{"no separator", body, ReasonMalformed},
		{"bad signature encoding", body + ".!!!", ReasonMalformed},
		{"tampered body", enc.EncodeToString([]byte("b@x.com:1:n")) + "." + sig, ReasonInvalidSignature},
		{"wrong secret", other.Issue("a@x.com"), ReasonInvalidSignature},
		{"unsigned legacy format", enc.EncodeToString([]byte("a@x.com:1:n")), ReasonMalformed},
		{"bad email", forge("not-an-email:" + itoa(now.UnixMilli()) + ":n"), ReasonMalformed},
		{"bad timestamp", forge("a@x.com:yesterday:n"), ReasonMalformed},
		{"missing nonce", forge("a@x.com:" + itoa(now.UnixMilli()) + ":"), ReasonMalformed},
		{"too few parts", forge("a@x.com"), ReasonMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Validate(tt.token)
			assert.Equal(t, tt.want, reasonOf(t, err))
		})
	}
}

func TestEmailWithColon(t *testing.T) {
	now := time.Now()
	s := newTestService(t, &now)
	b := enc.EncodeToString([]byte("we:ird@x.com:" + itoa(now.UnixMilli()) + ":nonce"))
	tok := b + "." + enc.EncodeToString(s.sign(b))

	claims, err := s.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "we:ird@x.com", claims.Email)
}

func TestDigest(t *testing.T) {
	d := Digest("abc")
	assert.Len(t, d, 64)
	assert.Equal(t, d, Digest("abc"))
	assert.NotEqual(t, d, Digest("abd"))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
