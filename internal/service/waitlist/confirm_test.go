package waitlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/token"
)

func signupAndToken(t *testing.T, env *testEnv, email string) string {
	t.Helper()
	_, err := env.svc.Signup(context.Background(), SignupRequest{Email: email}, "ip")
	require.NoError(t, err)
	return tokenFromURL(t, env.notifier.lastMessage().ConfirmURL)
}

func TestConfirmEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tok := signupAndToken(t, env, "a@x.com")

	env.advance(time.Hour)
	res, err := env.svc.ConfirmEmail(ctx, tok)
	require.NoError(t, err)
	assert.False(t, res.AlreadyConfirmed)
	assert.Equal(t, env.now, res.ConfirmedAt)

	entry := env.getEntry(t, "a@x.com")
	assert.True(t, entry.Confirmed)
	require.NotNil(t, entry.EmailConfirmedAt)
	assert.Equal(t, domain.StatusConfirmed, entry.Status())

	var audit domain.ConfirmationRecord
	require.True(t, env.client.Get(ctx, domain.KeyConfirmation(token.Digest(tok)), &audit))
	assert.True(t, audit.Confirmed)
	assert.Equal(t, "a@x.com", audit.Email)

	assert.Contains(t, env.notifier.eventTypes(), domain.EventConfirmed)
}

func TestConfirmEmailTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tok := signupAndToken(t, env, "a@x.com")

	first, err := env.svc.ConfirmEmail(ctx, tok)
	require.NoError(t, err)

	env.advance(time.Minute)
	second, err := env.svc.ConfirmEmail(ctx, tok)
	require.NoError(t, err)
	assert.True(t, second.AlreadyConfirmed)
	assert.Equal(t, first.ConfirmedAt, second.ConfirmedAt, "confirmation time is set once")
}

func TestConfirmEmailExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	tok := signupAndToken(t, env, "a@x.com")

	env.advance(25 * time.Hour)
	_, err := env.svc.ConfirmEmail(context.Background(), tok)

	var terr *token.TokenError
	require.True(t, errors.As(err, &terr), "got %v", err)
	assert.Equal(t, token.ReasonExpired, terr.Reason)
	assert.False(t, env.getEntry(t, "a@x.com").Confirmed)
}

func TestConfirmEmailErrors(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.ConfirmEmail(context.Background(), "  ")
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("tokens not configured", func(t *testing.T) {
		env := newTestEnv(t, withoutTokens())
		_, err := env.svc.ConfirmEmail(context.Background(), "anything")
		assert.ErrorIs(t, err, ErrTokensUnavailable)
	})

	t.Run("garbage token", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.ConfirmEmail(context.Background(), "garbage")
		var terr *token.TokenError
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, token.ReasonMalformed, terr.Reason)
	})

	t.Run("unknown email", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.ConfirmEmail(context.Background(), env.tokens.Issue("nobody@x.com"))
		var nf *NotFoundError
		require.True(t, errors.As(err, &nf), "got %v", err)
	})

	t.Run("read failure", func(t *testing.T) {
		env := newTestEnv(t)
		tok := signupAndToken(t, env, "a@x.com")
		env.store.failGet = func(key string) bool { return key == domain.KeyUser("a@x.com") }

		_, err := env.svc.ConfirmEmail(context.Background(), tok)
		var perr *PersistenceError
		require.True(t, errors.As(err, &perr), "got %v", err)
		assert.Equal(t, OpRead, perr.Op)
	})

	t.Run("save failure", func(t *testing.T) {
		env := newTestEnv(t)
		tok := signupAndToken(t, env, "a@x.com")
		env.store.failSet = func(key string) bool { return key == domain.KeyUser("a@x.com") }

		_, err := env.svc.ConfirmEmail(context.Background(), tok)
		var perr *PersistenceError
		require.True(t, errors.As(err, &perr), "got %v", err)
		assert.Equal(t, OpSave, perr.Op)
	})
}

func TestRecordEmailSent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.Signup(ctx, SignupRequest{Email: "a@x.com"}, "ip")
	require.NoError(t, err)

	env.svc.RecordEmailSent(ctx, "A@x.com")
	env.svc.RecordEmailSent(ctx, "a@x.com")
	env.svc.RecordEmailSent(ctx, "missing@x.com")

	entry := env.getEntry(t, "a@x.com")
	assert.Equal(t, 2, entry.EmailsSent)
	require.NotNil(t, entry.LastEmailSent)
	assert.Equal(t, env.now, *entry.LastEmailSent)
}
