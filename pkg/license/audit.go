package license

import "time"

// AuditCap bounds the per-license audit trail. Oldest entries are evicted
// first; the surviving entries keep insertion order.
const AuditCap = 50

// AuditEntry is one event in a license's trail.
type AuditEntry struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

// Audit event kinds.
const (
	EventCreated        = "created"
	EventBound          = "bound"
	EventClockStarted   = "clock_started"
	EventValidated      = "validated"
	EventMismatch       = "hwid_mismatch"
	EventSessionOpened  = "session_opened"
	EventSessionClosed  = "session_closed"
	EventContention     = "session_contention"
	EventSessionCleared = "session_cleared"
	EventExpired        = "expired"
	EventBanned         = "banned"
	EventUnbanned       = "unbanned"
	EventHWIDReset      = "hwid_reset"
	EventExtended       = "extended"
	EventDeactivated    = "deactivated"
	EventReactivated    = "reactivated"
	EventModeChanged    = "mode_changed"
	EventNoteChanged    = "note_changed"
)

func (r *Record) audit(at time.Time, kind, detail string) {
	r.AuditLog = append(r.AuditLog, AuditEntry{At: at, Kind: kind, Detail: detail})
	if excess := len(r.AuditLog) - AuditCap; excess > 0 {
		r.AuditLog = append([]AuditEntry(nil), r.AuditLog[excess:]...)
	}
}
