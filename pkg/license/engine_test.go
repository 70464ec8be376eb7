package license

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/keywarden/pkg/duration"
	"github.com/haasonsaas/keywarden/pkg/fingerprint"
	"github.com/haasonsaas/keywarden/pkg/keygen"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	engine *Engine
	store  *MemoryStore
	clock  time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store: NewMemoryStore(),
		clock: testStart,
	}
	env.engine = NewEngine(env.store, fingerprint.NewHasher([]byte("test-salt")), zerolog.Nop())
	env.engine.now = func() time.Time { return env.clock }
	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.clock = env.clock.Add(d)
}

func (env *testEnv) issue(t *testing.T, class duration.Class, shared bool) string {
	t.Helper()
	rec, err := env.engine.Create(class, shared, "", keygen.New("TEST"))
	require.NoError(t, err)
	return rec.Key
}

func requireDenied(t *testing.T, err error, reason string) {
	t.Helper()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, reason, ve.Reason)
}

func TestValidateUnknownKey(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Validate("NOPE-0000", "hw-1")
	requireDenied(t, err, ReasonUnknownKey)
}

func TestValidateFirstBindStartsClock(t *testing.T) {
	env := newTestEnv(t)
	key := env.issue(t, duration.Demo1Min, false)

	decision, err := env.engine.Validate(key, "hw-1")
	require.NoError(t, err)
	require.NotNil(t, decision.ExpiresAt)
	require.Equal(t, testStart.Add(time.Minute), decision.ExpiresAt.UTC())

	rec, err := env.store.Get(key)
	require.NoError(t, err)
	require.NotEmpty(t, rec.BoundFingerprint)
	require.NotNil(t, rec.LastUsedAt)
}

func TestValidateLifetimeNeverStartsClock(t *testing.T) {
	env := newTestEnv(t)
	key := env.issue(t, duration.Lifetime, false)

	decision, err := env.engine.Validate(key, "hw-1")
	require.NoError(t, err)
	require.Nil(t, decision.ExpiresAt)

	env.advance(100 * 365 * 24 * time.Hour)
	_, err = env.engine.Validate(key, "hw-1")
	require.NoError(t, err)
}

func TestValidateFingerprintMismatch(t *testing.T) {
	env := newTestEnv(t)
	key := env.issue(t, duration.OneMonth, false)

	_, err := env.engine.Validate(key, "hw-1")
	require.NoError(t, err)

	_, err = env.engine.Validate(key, "hw-2")
	requireDenied(t, err, ReasonMismatch)

	// The denied attempt is on the audit trail.
	rec, err := env.store.Get(key)
	require.NoError(t, err)
	require.Equal(t, EventMismatch, rec.AuditLog[len(rec.AuditLog)-1].Kind)
}

func TestValidateKeyCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	key := env.issue(t, duration.Lifetime, false)

	_, err := env.engine.Validate(key, "hw-1")
	require.NoError(t, err)

	lower := []rune(key)
	for i, r := range lower {
		if r >= 'A' && r <= 'Z' {
			lower[i] = r + ('a' - 'A')
		}
	}
	_, err = env.engine.Validate(string(lower), "hw-1")
	require.NoError(t, err)
}

func TestResetBindingPreservesExpiry(t *testing.T) {
	env := newTestEnv(t)
	key := env.issue(t, duration.TwoWeeks, false)

	first, err := env.engine.Validate(key, "hw-1")
	require.NoError(t, err)
	wantExpiry := *first.ExpiresAt

	env.advance(time.Hour)
	require.NoError(t, env.engine.ResetBinding(key))

	rec, err := env.store.Get(key)
	require.NoError(t, err)
	require.Empty(t, rec.BoundFingerprint)
	require.NotNil(t, rec.ExpiresAt)

	// Rebind from different hardware resumes the same clock.
	second, err := env.engine.Validate(key, "hw-2")
	require.NoError(t, err)
	require.Equal(t, wantExpiry, *second.ExpiresAt)
}

func TestExpiryDiscoveredLazily(t *testing.T) {
	env := newTestEnv(t)
	key := env.issue(t, duration.Demo1Min, false)

	_, err := env.engine.Validate(key, "hw-1")
	require.NoError(t, err)

	env.advance(61 * time.Second)
	_, err = env.engine.Validate(key, "hw-1")
	requireDenied(t, err, ReasonDurationEnded)

	rec, err := env.store.Get(key)
	require.NoError(t, err)
	require.False(t, rec.Active)
	require.False(t, rec.Banned)

	// Expiry was already discovered; later attempts see an inactive license.
	_, err = env.engine.Validate(key, "hw-1")
	requireDenied(t, err, ReasonInactive)
}

func TestSharedSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	key := env.issue(t, duration.OneMonth, true)

	// First terminal opens the session and starts the clock.
	first, err := env.engine.Validate(key, "terminal-a")
	require.NoError(t, err)
	require.True(t, first.SharedTerminal)
	require.NotNil(t, first.ExpiresAt)

	// A second terminal is locked out while the session lives.
	_, err = env.engine.Validate(key, "terminal-b")
	requireDenied(t, err, ReasonSessionLocked)

	// The holder's repeated calls are heartbeats.
	_, err = env.engine.Validate(key, "terminal-a")
	require.NoError(t, err)

	// After logout, another terminal takes over without restarting the clock.
	require.NoError(t, env.engine.Logout(key, "terminal-a"))
	second, err := env.engine.Validate(key, "terminal-b")
	require.NoError(t, err)
	require.Equal(t, *first.ExpiresAt, *second.ExpiresAt)
}

func TestLogoutIdempotent(t *testing.T) {
	env := newTestEnv(t)
	key := env.issue(t, duration.Lifetime, true)

	// Unknown keys and absent sessions never error.
	require.NoError(t, env.engine.Logout("MISSING-KEY", "hw-1"))
	require.NoError(t, env.engine.Logout(key, "hw-1"))

	_, err := env.engine.Validate(key, "hw-1")
	require.NoError(t, err)

	// A non-holder logout does not steal the session.
	require.NoError(t, env.engine.Logout(key, "hw-2"))
	rec, err := env.store.Get(key)
	require.NoError(t, err)
	require.NotEmpty(t, rec.SessionFingerprint)
}

func TestLogoutPermanentModeIsNoop(t *testing.T) {
	env := newTestEnv(t)
	key := env.issue(t, duration.Lifetime, false)

	_, err := env.engine.Validate(key, "hw-1")
	require.NoError(t, err)

	require.NoError(t, env.engine.Logout(key, "hw-1"))
	rec, err := env.store.Get(key)
	require.NoError(t, err)
	require.NotEmpty(t, rec.BoundFingerprint)
}

func TestPermanentModeBlocksSecondFingerprintAfterLogout(t *testing.T) {
	env := newTestEnv(t)
	key := env.issue(t, duration.Lifetime, false)

	_, err := env.engine.Validate(key, "hw-1")
	require.NoError(t, err)
	require.NoError(t, env.engine.Logout(key, "hw-1"))

	_, err = env.engine.Validate(key, "hw-2")
	requireDenied(t, err, ReasonMismatch)
}

func TestBanCascadeDeniesOtherLicenses(t *testing.T) {
	env := newTestEnv(t)
	keyA := env.issue(t, duration.Lifetime, false)
	keyB := env.issue(t, duration.Lifetime, false)

	_, err := env.engine.Validate(keyA, "cheater-box")
	require.NoError(t, err)

	require.NoError(t, env.engine.Ban(keyA, "chargeback", true))

	// Same hardware under a different key hits the global denylist.
	_, err = env.engine.Validate(keyB, "cheater-box")
	requireDenied(t, err, ReasonGloballyBanned)

	// Different hardware is unaffected.
	_, err = env.engine.Validate(keyB, "clean-box")
	require.NoError(t, err)
}

func TestBannedImpliesInactive(t *testing.T) {
	env := newTestEnv(t)
	key := env.issue(t, duration.Lifetime, false)

	require.NoError(t, env.engine.Ban(key, "abuse", false))

	rec, err := env.store.Get(key)
	require.NoError(t, err)
	require.True(t, rec.Banned)
	require.False(t, rec.Active)

	_, err = env.engine.Validate(key, "hw-1")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, ReasonBanned, ve.Reason)
	require.Contains(t, ve.Message, "abuse")
}

func TestSharedExpiryClearsSession(t *testing.T) {
	env := newTestEnv(t)
	key := env.issue(t, duration.Demo1Min, true)

	_, err := env.engine.Validate(key, "terminal-a")
	require.NoError(t, err)

	env.advance(2 * time.Minute)
	_, err = env.engine.Validate(key, "terminal-a")
	requireDenied(t, err, ReasonDurationEnded)

	rec, err := env.store.Get(key)
	require.NoError(t, err)
	require.Empty(t, rec.SessionFingerprint)
	require.Nil(t, rec.SessionStartedAt)
	require.False(t, rec.Active)
}

func TestSessionContentionIsAudited(t *testing.T) {
	env := newTestEnv(t)
	key := env.issue(t, duration.Lifetime, true)

	_, err := env.engine.Validate(key, "terminal-a")
	require.NoError(t, err)
	_, err = env.engine.Validate(key, "terminal-b")
	requireDenied(t, err, ReasonSessionLocked)

	rec, err := env.store.Get(key)
	require.NoError(t, err)
	require.Equal(t, EventContention, rec.AuditLog[len(rec.AuditLog)-1].Kind)
}

func TestStoreFailureSurfacesAsError(t *testing.T) {
	env := newTestEnv(t)
	key := env.issue(t, duration.Lifetime, false)

	failing := &failingStore{Store: env.store}
	env.engine.store = failing

	_, err := env.engine.Validate(key, "hw-1")
	require.Error(t, err)
	var ve *ValidationError
	require.False(t, errors.As(err, &ve))
}

// failingStore wraps a Store and fails every Save.
type failingStore struct {
	Store
}

func (f *failingStore) Save(*Record) error {
	return errors.New("disk full")
}
