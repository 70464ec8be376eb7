package license

import (
	"strings"
	"time"

	"github.com/haasonsaas/keywarden/pkg/duration"
)

// Record is the authoritative state of a single license. Fingerprint fields
// hold fingerprint hashes, never raw hardware identifiers; an empty string
// means "not bound" / "no live session".
type Record struct {
	Key                string         `json:"license_key"`
	DurationClass      duration.Class `json:"duration_type"`
	BoundFingerprint   string         `json:"bound_hwid,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	ExpiresAt          *time.Time     `json:"expires_at,omitempty"`
	Active             bool           `json:"is_active"`
	Banned             bool           `json:"is_banned"`
	BanReason          string         `json:"ban_reason,omitempty"`
	LastUsedAt         *time.Time     `json:"last_used_at,omitempty"`
	SharedTerminal     bool           `json:"is_warnet"`
	SessionFingerprint string         `json:"session_hwid,omitempty"`
	SessionStartedAt   *time.Time     `json:"session_started_at,omitempty"`
	Note               string         `json:"note,omitempty"`
	AuditLog           []AuditEntry   `json:"audit_log,omitempty"`
}

// FingerprintBan is a global denylist entry, independent of any one license.
type FingerprintBan struct {
	Hash       string    `json:"hwid"`
	Reason     string    `json:"reason"`
	LicenseKey string    `json:"license_key,omitempty"`
	BannedAt   time.Time `json:"banned_at"`
}

// CanonicalKey normalizes a license key for lookup. Keys are stored upper-case;
// clients may present any case.
func CanonicalKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// Mode names used on the wire and in logs.
func (r *Record) Mode() string {
	if r.SharedTerminal {
		return "shared"
	}
	return "permanent"
}

// Expired reports whether the duration clock has run out as of now. Records
// with no expiry (lifetime, or clock not started) never report expired.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// clearSession drops any live shared-terminal session.
func (r *Record) clearSession() {
	r.SessionFingerprint = ""
	r.SessionStartedAt = nil
}

// Clone returns a deep copy, detaching the audit slice.
func (r *Record) Clone() *Record {
	out := *r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		out.ExpiresAt = &t
	}
	if r.LastUsedAt != nil {
		t := *r.LastUsedAt
		out.LastUsedAt = &t
	}
	if r.SessionStartedAt != nil {
		t := *r.SessionStartedAt
		out.SessionStartedAt = &t
	}
	out.AuditLog = append([]AuditEntry(nil), r.AuditLog...)
	return &out
}
