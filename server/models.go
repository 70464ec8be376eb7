package main

import "time"

// LicenseRow is the persisted form of a license record. The audit trail is a
// JSON array in a text column; pkg/license enforces its cap before save.
type LicenseRow struct {
	ID                 uint   `gorm:"primaryKey"`
	Key                string `gorm:"uniqueIndex"`
	DurationClass      string
	BoundFingerprint   string `gorm:"index"`
	IssuedAt           time.Time
	ExpiresAt          *time.Time
	Active             bool
	Banned             bool
	BanReason          string
	LastUsedAt         *time.Time
	SharedTerminal     bool
	SessionFingerprint string
	SessionStartedAt   *time.Time
	Note               string
	AuditLog           string `gorm:"type:text"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// BanRow is a global denylist entry keyed by fingerprint hash.
type BanRow struct {
	ID         uint   `gorm:"primaryKey"`
	Hash       string `gorm:"uniqueIndex"`
	Reason     string
	LicenseKey string
	BannedAt   time.Time
}
