package waitlist

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/kv"
	"github.com/ignite/waitlist-engine/internal/pkg/distlock"
	"github.com/ignite/waitlist-engine/internal/ratelimit"
	"github.com/ignite/waitlist-engine/internal/token"
)

// mockNotifier records everything it is asked to send.
type mockNotifier struct {
	mu       sync.Mutex
	accept   bool
	messages []domain.ConfirmationEmail
	events   []domain.Event
}

func (m *mockNotifier) SendConfirmation(_ context.Context, msg domain.ConfirmationEmail) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return m.accept
}

func (m *mockNotifier) Publish(_ context.Context, evt domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockNotifier) eventTypes() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EventType
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

func (m *mockNotifier) lastMessage() domain.ConfirmationEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[len(m.messages)-1]
}

// faultyStore wraps a MemoryStore and fails selected operations.
type faultyStore struct {
	*kv.MemoryStore
	mu       sync.Mutex
	failGet  func(key string) bool
	failSet  func(key string) bool
	failSetN bool
}

func (f *faultyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	fail := f.failGet != nil && f.failGet(key)
	f.mu.Unlock()
	if fail {
		return nil, errors.New("store read timeout")
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *faultyStore) Set(ctx context.Context, key string, v []byte) error {
	f.mu.Lock()
	fail := f.failSet != nil && f.failSet(key)
	f.mu.Unlock()
	if fail {
		return errors.New("store write timeout")
	}
	return f.MemoryStore.Set(ctx, key, v)
}

func (f *faultyStore) SetNX(ctx context.Context, key string, v []byte) (bool, error) {
	f.mu.Lock()
	fail := f.failSetN
	f.mu.Unlock()
	if fail {
		return false, errors.New("store write timeout")
	}
	return f.MemoryStore.SetNX(ctx, key, v)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

type testEnv struct {
	svc      *Service
	store    *faultyStore
	client   *kv.Client
	notifier *mockNotifier
	tokens   *token.Service
	now      time.Time
	mu       sync.Mutex
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	e.now = e.now.Add(d)
	e.mu.Unlock()
}

type envOption func(*Deps)

func withLimiter(l ratelimit.Limiter) envOption { return func(d *Deps) { d.Limiter = l } }
func withoutTokens() envOption                  { return func(d *Deps) { d.Tokens = nil } }

// newTestEnv builds a service on an in-memory store with a fixed clock and a
// random source that always returns the lower bound.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    &faultyStore{MemoryStore: kv.NewMemoryStore()},
		notifier: &mockNotifier{accept: true},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	env.client = kv.NewClient(env.store)

	tokens, err := token.New("test-secret", 24*time.Hour, token.WithClock(env.clock))
	require.NoError(t, err)
	env.tokens = tokens

	deps := Deps{
		Store:    env.client,
		Locker:   distlock.NewLocalLocker(),
		Tokens:   tokens,
		Notifier: env.notifier,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	env.svc = NewService(deps, Config{
		BoostMin:       3,
		BoostMax:       10,
		RecentWindow:   24 * time.Hour,
		ConfirmBaseURL: "https://waitlist.example.com/confirm-email",
	})
	env.svc.now = env.clock
	env.svc.randInt = func(min, max int) int { return min }
	return env
}

func (e *testEnv) putEntry(t *testing.T, key string, entry domain.WaitlistEntry) {
	t.Helper()
	require.NoError(t, e.client.Set(context.Background(), key, entry))
}

func (e *testEnv) getEntry(t *testing.T, email string) domain.WaitlistEntry {
	t.Helper()
	var entry domain.WaitlistEntry
	require.True(t, e.client.Get(context.Background(), domain.KeyUser(email), &entry), "entry %s missing", email)
	return entry
}

func tokenFromURL(t *testing.T, u string) string {
	t.Helper()
	_, tok, ok := strings.Cut(u, "?token=")
	require.True(t, ok, "no token in %q", u)
	return tok
}
