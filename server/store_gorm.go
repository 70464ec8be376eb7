package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/haasonsaas/keywarden/pkg/duration"
	"github.com/haasonsaas/keywarden/pkg/license"
)

// GormStore implements license.Store over a gorm database. Upserts are
// conflict-clauses on the unique key columns so a save is a single atomic
// statement.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(key string) (*license.Record, error) {
	var row LicenseRow
	if err := s.db.Where("key = ?", key).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, license.ErrNotFound
		}
		return nil, err
	}
	return rowToRecord(&row)
}

func (s *GormStore) Save(rec *license.Record) error {
	row, err := recordToRow(rec)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(row).Error
}

func (s *GormStore) Delete(key string) error {
	result := s.db.Where("key = ?", key).Delete(&LicenseRow{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return license.ErrNotFound
	}
	return nil
}

func (s *GormStore) List() ([]*license.Record, error) {
	var rows []LicenseRow
	if err := s.db.Order("issued_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*license.Record, 0, len(rows))
	for i := range rows {
		rec, err := rowToRecord(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *GormStore) GetBan(hash string) (*license.FingerprintBan, error) {
	var row BanRow
	if err := s.db.Where("hash = ?", hash).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, license.ErrNotFound
		}
		return nil, err
	}
	return &license.FingerprintBan{
		Hash:       row.Hash,
		Reason:     row.Reason,
		LicenseKey: row.LicenseKey,
		BannedAt:   row.BannedAt,
	}, nil
}

func (s *GormStore) SaveBan(ban *license.FingerprintBan) error {
	row := BanRow{
		Hash:       ban.Hash,
		Reason:     ban.Reason,
		LicenseKey: ban.LicenseKey,
		BannedAt:   ban.BannedAt,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hash"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *GormStore) DeleteBan(hash string) error {
	result := s.db.Where("hash = ?", hash).Delete(&BanRow{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return license.ErrNotFound
	}
	return nil
}

func (s *GormStore) ListBans() ([]*license.FingerprintBan, error) {
	var rows []BanRow
	if err := s.db.Order("banned_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*license.FingerprintBan, 0, len(rows))
	for _, row := range rows {
		out = append(out, &license.FingerprintBan{
			Hash:       row.Hash,
			Reason:     row.Reason,
			LicenseKey: row.LicenseKey,
			BannedAt:   row.BannedAt,
		})
	}
	return out, nil
}

func rowToRecord(row *LicenseRow) (*license.Record, error) {
	rec := &license.Record{
		Key:                row.Key,
		DurationClass:      duration.Class(row.DurationClass),
		BoundFingerprint:   row.BoundFingerprint,
		CreatedAt:          row.IssuedAt,
		ExpiresAt:          row.ExpiresAt,
		Active:             row.Active,
		Banned:             row.Banned,
		BanReason:          row.BanReason,
		LastUsedAt:         row.LastUsedAt,
		SharedTerminal:     row.SharedTerminal,
		SessionFingerprint: row.SessionFingerprint,
		SessionStartedAt:   row.SessionStartedAt,
		Note:               row.Note,
	}
	if row.AuditLog != "" {
		if err := json.Unmarshal([]byte(row.AuditLog), &rec.AuditLog); err != nil {
			return nil, fmt.Errorf("corrupt audit log for %s: %w", row.Key, err)
		}
	}
	return rec, nil
}

func recordToRow(rec *license.Record) (*LicenseRow, error) {
	audit, err := json.Marshal(rec.AuditLog)
	if err != nil {
		return nil, err
	}
	return &LicenseRow{
		Key:                rec.Key,
		DurationClass:      string(rec.DurationClass),
		BoundFingerprint:   rec.BoundFingerprint,
		IssuedAt:           rec.CreatedAt,
		ExpiresAt:          rec.ExpiresAt,
		Active:             rec.Active,
		Banned:             rec.Banned,
		BanReason:          rec.BanReason,
		LastUsedAt:         rec.LastUsedAt,
		SharedTerminal:     rec.SharedTerminal,
		SessionFingerprint: rec.SessionFingerprint,
		SessionStartedAt:   rec.SessionStartedAt,
		Note:               rec.Note,
		AuditLog:           string(audit),
	}, nil
}

var _ license.Store = (*GormStore)(nil)
