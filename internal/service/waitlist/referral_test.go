package waitlist

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/waitlist-engine/internal/domain"
)

func seedReferrer(t *testing.T, env *testEnv, email string, position int, indexed bool) string {
	t.Helper()
	code := ReferralCode(email)
	env.putEntry(t, domain.KeyUser(email), domain.WaitlistEntry{
		Email: email, Position: position, ReferralCode: code, SignupDate: env.now, ActivityCount: 1,
	})
	if indexed {
		require.NoError(t, env.client.Set(context.Background(), domain.KeyReferralIndex(code), domain.ReferralIndex{Email: email}))
	}
	return code
}

func TestReferralBoostRange(t *testing.T) {
	for boost := 3; boost <= 10; boost++ {
		t.Run(fmt.Sprintf("boost_%d", boost), func(t *testing.T) {
			env := newTestEnv(t)
			boost := boost
			env.svc.randInt = func(min, max int) int {
				if min == 3 && max == 10 {
					return boost
				}
				return min
			}
			code := seedReferrer(t, env, "a@x.com", 10, true)

			res, err := env.svc.Signup(context.Background(), SignupRequest{Email: "b@x.com", ReferralCode: code}, "ip")
			require.NoError(t, err)
			require.NotNil(t, res.Referral)
			assert.Equal(t, boost, res.Referral.Boost)

			referrer := env.getEntry(t, "a@x.com")
			assert.Equal(t, max(1, 10-boost), referrer.Position)
			assert.GreaterOrEqual(t, referrer.Position, 1)
			assert.LessOrEqual(t, referrer.Position, 7)
			assert.Equal(t, 1, referrer.Referrals)
			require.NotNil(t, referrer.LastReferralDate)

			referred := env.getEntry(t, "b@x.com")
			require.NotNil(t, referred.ReferredBy)
			assert.Equal(t, code, *referred.ReferredBy)
		})
	}
}

func TestReferralPublishesEvent(t *testing.T) {
	env := newTestEnv(t)
	code := seedReferrer(t, env, "a@x.com", 10, true)

	_, err := env.svc.Signup(context.Background(), SignupRequest{Email: "b@x.com", ReferralCode: code}, "ip")
	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{domain.EventReferral, domain.EventSignup}, env.notifier.eventTypes())

	evt := env.notifier.events[0]
	assert.Equal(t, "a@x.com", evt.Data["referrer"])
	assert.Equal(t, 3, evt.Data["boost"])
}

func TestReferralDanglingCode(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.svc.Signup(context.Background(), SignupRequest{Email: "b@x.com", ReferralCode: "hs_nobody"}, "ip")
	require.NoError(t, err)
	assert.Nil(t, res.Referral)

	referred := env.getEntry(t, "b@x.com")
	require.NotNil(t, referred.ReferredBy)
	assert.Equal(t, "hs_nobody", *referred.ReferredBy, "dangling codes are stored as given")
}

func TestReferralFallbackScanRepairsIndex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := seedReferrer(t, env, "a@x.com", 20, false)

	_, err := env.svc.Signup(ctx, SignupRequest{Email: "b@x.com", ReferralCode: code}, "ip")
	require.NoError(t, err)
	assert.Equal(t, 17, env.getEntry(t, "a@x.com").Position)

	var idx domain.ReferralIndex
	require.True(t, env.client.Get(ctx, domain.KeyReferralIndex(code), &idx))
	assert.Equal(t, "a@x.com", idx.Email)
}

func TestReferralStaleIndexFallsBackToScan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := seedReferrer(t, env, "a@x.com", 20, false)
	require.NoError(t, env.client.Set(ctx, domain.KeyReferralIndex(code), domain.ReferralIndex{Email: "gone@x.com"}))

	_, err := env.svc.Signup(ctx, SignupRequest{Email: "b@x.com", ReferralCode: code}, "ip")
	require.NoError(t, err)
	assert.Equal(t, 17, env.getEntry(t, "a@x.com").Position)
}

func TestSelfReferralIgnored(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.svc.Signup(context.Background(), SignupRequest{Email: "a@x.com", ReferralCode: ReferralCode("a@x.com")}, "ip")
	require.NoError(t, err)
	assert.Nil(t, res.Referral)
	assert.Equal(t, 0, env.getEntry(t, "a@x.com").Referrals)
}

func TestReferralNotAppliedOnRepeatSignup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := seedReferrer(t, env, "a@x.com", 50, true)

	_, err := env.svc.Signup(ctx, SignupRequest{Email: "b@x.com", ReferralCode: code}, "ip")
	require.NoError(t, err)
	_, err = env.svc.Signup(ctx, SignupRequest{Email: "b@x.com", ReferralCode: code}, "ip")
	require.NoError(t, err)

	referrer := env.getEntry(t, "a@x.com")
	assert.Equal(t, 47, referrer.Position)
	assert.Equal(t, 1, referrer.Referrals)
}

func TestConcurrentReferralBoostsAreNotLost(t *testing.T) {
	env := newTestEnv(t)
	code := seedReferrer(t, env, "a@x.com", 500, true)

	const referred = 8
	var wg sync.WaitGroup
	for i := 0; i < referred; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := fmt.Sprintf("friend%d@x.com", i)
			_, err := env.svc.Signup(context.Background(), SignupRequest{Email: email, ReferralCode: code}, "ip")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	referrer := env.getEntry(t, "a@x.com")
	assert.Equal(t, referred, referrer.Referrals)
	assert.Equal(t, 500-3*referred, referrer.Position)
}
