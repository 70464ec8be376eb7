package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/haasonsaas/keywarden/pkg/duration"
	"github.com/haasonsaas/keywarden/pkg/license"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:store-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&LicenseRow{}, &BanRow{}))
	return NewGormStore(db)
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(14 * 24 * time.Hour)
	rec := &license.Record{
		Key:              "PBM-1111-2222-3333-4444",
		DurationClass:    duration.TwoWeeks,
		BoundFingerprint: "abcdef",
		CreatedAt:        now,
		ExpiresAt:        &expires,
		Active:           true,
		LastUsedAt:       &now,
		Note:             "cafe #3",
		AuditLog: []license.AuditEntry{
			{At: now, Kind: license.EventCreated, Detail: "2weeks"},
			{At: now, Kind: license.EventBound, Detail: "abcdef"},
		},
	}
	require.NoError(t, store.Save(rec))

	got, err := store.Get(rec.Key)
	require.NoError(t, err)
	require.Equal(t, rec.Key, got.Key)
	require.Equal(t, duration.TwoWeeks, got.DurationClass)
	require.Equal(t, "abcdef", got.BoundFingerprint)
	require.True(t, got.ExpiresAt.Equal(expires))
	require.Len(t, got.AuditLog, 2)
	require.Equal(t, license.EventBound, got.AuditLog[1].Kind)
}

func TestStoreSaveIsUpsert(t *testing.T) {
	store := newTestStore(t)

	rec := &license.Record{Key: "PBM-AAAA", DurationClass: duration.Lifetime, Active: true}
	require.NoError(t, store.Save(rec))

	rec.Active = false
	rec.Banned = true
	rec.BanReason = "abuse"
	require.NoError(t, store.Save(rec))

	got, err := store.Get("PBM-AAAA")
	require.NoError(t, err)
	require.True(t, got.Banned)
	require.False(t, got.Active)

	all, err := store.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestStoreGetNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get("MISSING")
	require.ErrorIs(t, err, license.ErrNotFound)
}

func TestStoreDeleteNotFound(t *testing.T) {
	store := newTestStore(t)
	require.ErrorIs(t, store.Delete("MISSING"), license.ErrNotFound)

	rec := &license.Record{Key: "PBM-BBBB", DurationClass: duration.Lifetime, Active: true}
	require.NoError(t, store.Save(rec))
	require.NoError(t, store.Delete("PBM-BBBB"))
	require.ErrorIs(t, store.Delete("PBM-BBBB"), license.ErrNotFound)
}

func TestStoreDenylist(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetBan("deadbeef")
	require.ErrorIs(t, err, license.ErrNotFound)

	ban := &license.FingerprintBan{
		Hash:       "deadbeef",
		Reason:     "chargeback",
		LicenseKey: "PBM-CCCC",
		BannedAt:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveBan(ban))

	got, err := store.GetBan("deadbeef")
	require.NoError(t, err)
	require.Equal(t, "chargeback", got.Reason)
	require.Equal(t, "PBM-CCCC", got.LicenseKey)

	bans, err := store.ListBans()
	require.NoError(t, err)
	require.Len(t, bans, 1)

	require.NoError(t, store.DeleteBan("deadbeef"))
	require.ErrorIs(t, store.DeleteBan("deadbeef"), license.ErrNotFound)
}

func TestStoreCorruptAuditFailsLoudly(t *testing.T) {
	store := newTestStore(t)

	row := &LicenseRow{Key: "PBM-DDDD", DurationClass: "lifetime", AuditLog: "{not json"}
	require.NoError(t, store.db.Create(row).Error)

	_, err := store.Get("PBM-DDDD")
	require.Error(t, err)
	require.NotErrorIs(t, err, license.ErrNotFound)
}
