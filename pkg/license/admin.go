package license

import (
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/keywarden/pkg/duration"
	"github.com/haasonsaas/keywarden/pkg/keygen"
)

// Administrative state transitions. Each one takes the same per-key lock as
// client validation, mutates through the Store, and leaves an audit entry.

// Create issues a new license. The duration clock does not start at issuance;
// ExpiresAt stays unset until first qualifying use.
func (e *Engine) Create(class duration.Class, sharedTerminal bool, note string, gen keygen.Generator) (*Record, error) {
	key, err := gen.Generate(func(candidate string) (bool, error) {
		_, err := e.store.Get(CanonicalKey(candidate))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	})
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	rec := &Record{
		Key:            CanonicalKey(key),
		DurationClass:  class,
		CreatedAt:      now,
		Active:         true,
		SharedTerminal: sharedTerminal,
		Note:           note,
	}
	rec.audit(now, EventCreated, string(class))
	if err := e.store.Save(rec); err != nil {
		return nil, err
	}
	e.logger.Info().Str("key", rec.Key).Str("duration", string(class)).Bool("shared", sharedTerminal).Msg("license issued")
	return rec.Clone(), nil
}

// Get returns a copy of a license for inspection.
func (e *Engine) Get(key string) (*Record, error) {
	return e.store.Get(CanonicalKey(key))
}

// List returns copies of all licenses.
func (e *Engine) List() ([]*Record, error) {
	return e.store.List()
}

// SetNote replaces the free-text annotation. No semantic effect.
func (e *Engine) SetNote(key, note string) error {
	return e.mutate(key, func(rec *Record, now time.Time) error {
		rec.Note = note
		rec.audit(now, EventNoteChanged, "")
		return nil
	})
}

// ResetBinding clears the permanent fingerprint lock without touching
// ExpiresAt: remaining duration carries over to the next bind. In shared mode
// it clears any live session as well.
func (e *Engine) ResetBinding(key string) error {
	return e.mutate(key, func(rec *Record, now time.Time) error {
		rec.BoundFingerprint = ""
		rec.clearSession()
		rec.audit(now, EventHWIDReset, "")
		return nil
	})
}

// Ban marks the license banned and inactive and drops any live session. With
// cascade, the currently attached fingerprint (bound, or session holder in
// shared mode) is added to the global denylist.
func (e *Engine) Ban(key, reason string, cascade bool) error {
	return e.mutate(key, func(rec *Record, now time.Time) error {
		fp := rec.BoundFingerprint
		if rec.SharedTerminal {
			fp = rec.SessionFingerprint
		}

		rec.Banned = true
		rec.Active = false
		rec.BanReason = reason
		rec.clearSession()
		rec.audit(now, EventBanned, reason)

		if cascade && fp != "" {
			ban := &FingerprintBan{
				Hash:       fp,
				Reason:     reason,
				LicenseKey: rec.Key,
				BannedAt:   now,
			}
			if err := e.store.SaveBan(ban); err != nil {
				return err
			}
			e.logger.Warn().Str("key", rec.Key).Str("hwid", shortFP(fp)).Msg("fingerprint added to denylist")
		}
		return nil
	})
}

// Unban lifts a ban and restores Active. Expiry semantics are untouched; an
// expired license will still be denied on next validation.
func (e *Engine) Unban(key string) error {
	return e.mutate(key, func(rec *Record, now time.Time) error {
		rec.Banned = false
		rec.BanReason = ""
		rec.Active = true
		rec.audit(now, EventUnbanned, "")
		return nil
	})
}

// Deactivate turns the license off without banning it.
func (e *Engine) Deactivate(key string) error {
	return e.mutate(key, func(rec *Record, now time.Time) error {
		rec.Active = false
		rec.audit(now, EventDeactivated, "")
		return nil
	})
}

// Reactivate turns the license back on. Banned licenses must be unbanned
// first.
func (e *Engine) Reactivate(key string) error {
	return e.mutate(key, func(rec *Record, now time.Time) error {
		if rec.Banned {
			return ErrAlreadyBanned
		}
		rec.Active = true
		rec.audit(now, EventReactivated, "")
		return nil
	})
}

// Extend adds days to max(ExpiresAt, now), so extending an expired license
// starts from now rather than the stale expiry. Lifetime licenses are not
// extendable. Extension reactivates a license that was flagged inactive by
// expiry, but never lifts a ban.
func (e *Engine) Extend(key string, days int) (*time.Time, error) {
	var extended *time.Time
	err := e.mutate(key, func(rec *Record, now time.Time) error {
		if rec.DurationClass == duration.Lifetime {
			return ErrNotExtendable
		}
		base := now
		if rec.ExpiresAt != nil && rec.ExpiresAt.After(now) {
			base = *rec.ExpiresAt
		}
		t := base.Add(time.Duration(days) * 24 * time.Hour)
		rec.ExpiresAt = &t
		if !rec.Banned {
			rec.Active = true
		}
		rec.audit(now, EventExtended, fmt.Sprintf("+%dd", days))
		extended = &t
		return nil
	})
	return extended, err
}

// SetSharedTerminal switches binding disciplines. Either direction clears the
// state that belongs to the old discipline; a new permanent binding or session
// is established on the next successful validation. Setting the current mode
// again is a no-op.
func (e *Engine) SetSharedTerminal(key string, enabled bool) error {
	return e.mutate(key, func(rec *Record, now time.Time) error {
		if rec.SharedTerminal == enabled {
			return nil
		}
		rec.SharedTerminal = enabled
		rec.BoundFingerprint = ""
		rec.clearSession()
		rec.audit(now, EventModeChanged, rec.Mode())
		return nil
	})
}

// ClearSession force-drops a live shared-terminal session.
func (e *Engine) ClearSession(key string) error {
	return e.mutate(key, func(rec *Record, now time.Time) error {
		rec.clearSession()
		rec.audit(now, EventSessionCleared, "")
		return nil
	})
}

// Remove deletes the record entirely. Missing keys are an error, not a no-op,
// to surface operator mistakes.
func (e *Engine) Remove(key string) error {
	canonical := CanonicalKey(key)
	unlock := e.locks.lock(canonical)
	defer unlock()
	if err := e.store.Delete(canonical); err != nil {
		return err
	}
	e.logger.Info().Str("key", canonical).Msg("license deleted")
	return nil
}

// ListBans returns the global denylist.
func (e *Engine) ListBans() ([]*FingerprintBan, error) {
	return e.store.ListBans()
}

// UnbanFingerprint removes a denylist entry by hash.
func (e *Engine) UnbanFingerprint(hash string) error {
	return e.store.DeleteBan(hash)
}

// mutate runs the standard locked load-mutate-persist sequence.
func (e *Engine) mutate(key string, fn func(rec *Record, now time.Time) error) error {
	canonical := CanonicalKey(key)
	unlock := e.locks.lock(canonical)
	defer unlock()

	rec, err := e.store.Get(canonical)
	if err != nil {
		return err
	}
	if err := fn(rec, e.now().UTC()); err != nil {
		return err
	}
	return e.store.Save(rec)
}
