package license

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/haasonsaas/keywarden/pkg/duration"
	"github.com/haasonsaas/keywarden/pkg/fingerprint"
)

// keyedMutex serializes load-mutate-persist sequences per license key. Valid
// for a single-instance deployment; a clustered setup would need conditional
// store updates instead.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Engine applies the license state machine. All mutations, client-facing and
// administrative, funnel through it so the per-key serialization and audit
// trail stay consistent.
type Engine struct {
	store  Store
	hasher fingerprint.Hasher
	logger zerolog.Logger
	locks  keyedMutex
	now    func() time.Time
}

func NewEngine(store Store, hasher fingerprint.Hasher, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		hasher: hasher,
		logger: logger.With().Str("component", "engine").Logger(),
		now:    time.Now,
	}
}

// Decision is the metadata returned on a successful validation.
type Decision struct {
	Key            string
	DurationClass  duration.Class
	ExpiresAt      *time.Time
	SharedTerminal bool
}

// Validate decides whether the holder of hwid may use the license. It binds
// first-time fingerprints, opens shared-terminal sessions, starts the duration
// clock on first qualifying use, and lazily discovers expiry. Every branch
// that mutates state persists before returning, deny paths included.
func (e *Engine) Validate(key, hwid string) (*Decision, error) {
	canonical := CanonicalKey(key)
	unlock := e.locks.lock(canonical)
	defer unlock()

	fp := e.hasher.Hash(hwid)
	now := e.now().UTC()

	// Global denylist wins over any license state.
	if _, err := e.store.GetBan(fp); err == nil {
		e.logger.Warn().Str("key", canonical).Msg("denied: hwid on global denylist")
		return nil, deny(ReasonGloballyBanned, "this hardware is banned")
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	rec, err := e.store.Get(canonical)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, deny(ReasonUnknownKey, "license key not found")
		}
		return nil, err
	}

	if rec.Banned {
		msg := "license is banned"
		if rec.BanReason != "" {
			msg = fmt.Sprintf("license is banned: %s", rec.BanReason)
		}
		return nil, deny(ReasonBanned, msg)
	}
	if !rec.Active {
		return nil, deny(ReasonInactive, "license is not active")
	}

	if rec.SharedTerminal {
		if ve, err := e.touchSharedSession(rec, fp, now); ve != nil || err != nil {
			return nil, firstErr(ve, err)
		}
	} else {
		if ve, err := e.touchPermanentBinding(rec, fp, now); ve != nil || err != nil {
			return nil, firstErr(ve, err)
		}
	}

	// Lazy expiry: discovered at next use, never by a background timer.
	if rec.Expired(now) {
		rec.Active = false
		if rec.SharedTerminal {
			rec.clearSession()
		}
		rec.audit(now, EventExpired, string(rec.DurationClass))
		if err := e.store.Save(rec); err != nil {
			return nil, err
		}
		e.logger.Info().Str("key", rec.Key).Msg("license expired on validation")
		return nil, deny(ReasonDurationEnded, "license duration has ended")
	}

	rec.LastUsedAt = &now
	rec.audit(now, EventValidated, rec.Mode())
	if err := e.store.Save(rec); err != nil {
		return nil, err
	}

	return &Decision{
		Key:            rec.Key,
		DurationClass:  rec.DurationClass,
		ExpiresAt:      rec.ExpiresAt,
		SharedTerminal: rec.SharedTerminal,
	}, nil
}

// touchSharedSession enforces the single-live-session discipline. A live
// session held by another fingerprint denies; an idle license opens one; the
// session holder revalidating is a heartbeat.
func (e *Engine) touchSharedSession(rec *Record, fp string, now time.Time) (*ValidationError, error) {
	switch rec.SessionFingerprint {
	case "":
		rec.SessionFingerprint = fp
		rec.SessionStartedAt = &now
		rec.audit(now, EventSessionOpened, shortFP(fp))
		if err := e.startClockIfNeeded(rec, now); err != nil {
			return nil, err
		}
	case fp:
		// Heartbeat, no session state change.
	default:
		rec.audit(now, EventContention, shortFP(fp))
		if err := e.store.Save(rec); err != nil {
			return nil, err
		}
		return deny(ReasonSessionLocked, "license is in use on another terminal"), nil
	}
	return nil, nil
}

// touchPermanentBinding enforces the one-fingerprint-for-life discipline.
// Rebinding after an administrative reset keeps the running expiry.
func (e *Engine) touchPermanentBinding(rec *Record, fp string, now time.Time) (*ValidationError, error) {
	switch rec.BoundFingerprint {
	case "":
		rec.BoundFingerprint = fp
		rec.audit(now, EventBound, shortFP(fp))
		if err := e.startClockIfNeeded(rec, now); err != nil {
			return nil, err
		}
	case fp:
		// Already bound to this hardware.
	default:
		rec.audit(now, EventMismatch, shortFP(fp))
		if err := e.store.Save(rec); err != nil {
			return nil, err
		}
		return deny(ReasonMismatch, "license is locked to different hardware"), nil
	}
	return nil, nil
}

// startClockIfNeeded starts the duration clock exactly once per license: only
// while ExpiresAt is unset and the class actually expires.
func (e *Engine) startClockIfNeeded(rec *Record, now time.Time) error {
	if rec.ExpiresAt != nil || rec.DurationClass == duration.Lifetime {
		return nil
	}
	expires, err := duration.ComputeExpiry(rec.DurationClass, now)
	if err != nil {
		return err
	}
	rec.ExpiresAt = expires
	rec.audit(now, EventClockStarted, expires.UTC().Format(time.RFC3339))
	return nil
}

// Logout releases a shared-terminal session held by hwid. It is idempotent
// and never an error: a stale or missing session must not block client
// shutdown, and it has no meaning in permanent-lock mode.
func (e *Engine) Logout(key, hwid string) error {
	canonical := CanonicalKey(key)
	unlock := e.locks.lock(canonical)
	defer unlock()

	rec, err := e.store.Get(canonical)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if !rec.SharedTerminal {
		return nil
	}

	fp := e.hasher.Hash(hwid)
	if rec.SessionFingerprint == "" || rec.SessionFingerprint != fp {
		return nil
	}

	now := e.now().UTC()
	rec.clearSession()
	rec.audit(now, EventSessionClosed, shortFP(fp))
	return e.store.Save(rec)
}

func firstErr(ve *ValidationError, err error) error {
	if err != nil {
		return err
	}
	return ve
}

// shortFP truncates a fingerprint for audit detail fields.
func shortFP(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
