package license

import "errors"

// Denial reasons carried by ValidationError. These are wire-visible codes;
// clients branch on them.
const (
	ReasonUnknownKey     = "unknown_key"
	ReasonGloballyBanned = "hwid_banned"
	ReasonBanned         = "license_banned"
	ReasonInactive       = "license_inactive"
	ReasonMismatch       = "hwid_mismatch"
	ReasonSessionLocked  = "session_locked"
	ReasonDurationEnded  = "duration_ended"
)

// ValidationError is a client-facing denial. It is non-fatal: the request was
// handled, the answer is no.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func deny(reason, message string) *ValidationError {
	return &ValidationError{Reason: reason, Message: message}
}

// Administrative operation errors.
var (
	// ErrNotFound is returned by stores and admin operations for missing
	// license keys or denylist entries.
	ErrNotFound = errors.New("license not found")

	// ErrAlreadyBanned rejects reactivation while a ban is in force.
	ErrAlreadyBanned = errors.New("license is banned; lift the ban first")

	// ErrNotExtendable rejects extension of lifetime licenses.
	ErrNotExtendable = errors.New("lifetime licenses cannot be extended")
)
