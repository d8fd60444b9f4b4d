// Package snapshotstore persists the last-known-good booking snapshot in a
// local sqlite database so a restarted watcher renders data before its first
// fetch completes. The remote stays authoritative: every successful fetch
// wholesale-replaces what is stored here.
package snapshotstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Molemo21/ConnectSA-k9-sub010/pkg/syncengine"
)

// BookingRow mirrors the bookings table.
type BookingRow struct {
	BookingID       string    `gorm:"primaryKey"`
	Status          string    `gorm:"not null"`
	PaymentMethod   string    `gorm:"not null"`
	PaymentStatus   *string   `gorm:""`
	PaymentAmount   *int64    `gorm:""`
	ScheduledAt     time.Time `gorm:"not null"`
	AmountCents     int64     `gorm:"not null"`
	CounterpartyRef string    `gorm:""`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (BookingRow) TableName() string { return "bookings" }

// SnapshotMeta mirrors the single-row snapshot_meta table.
type SnapshotMeta struct {
	ID         int       `gorm:"primaryKey"`
	ProviderID string    `gorm:"not null"`
	SavedAt    time.Time `gorm:"not null"`
}

func (SnapshotMeta) TableName() string { return "snapshot_meta" }

// Store implements syncengine.SeedSource over gorm.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the sqlite database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	if err := db.AutoMigrate(&BookingRow{}, &SnapshotMeta{}); err != nil {
		return nil, fmt.Errorf("migrate snapshot db: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing gorm handle (used by tests with :memory:).
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&BookingRow{}, &SnapshotMeta{}); err != nil {
		return nil, fmt.Errorf("migrate snapshot db: %w", err)
	}
	return &Store{db: db}, nil
}

// LoadSnapshot returns the persisted snapshot, reporting found=false when the
// store has never been written.
func (store *Store) LoadSnapshot(ctx context.Context) (syncengine.BookingSnapshot, bool, error) {
	var meta SnapshotMeta
	err := store.db.WithContext(ctx).First(&meta, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return syncengine.BookingSnapshot{}, false, nil
	}
	if err != nil {
		return syncengine.BookingSnapshot{}, false, fmt.Errorf("load snapshot meta: %w", err)
	}

	var rows []BookingRow
	if err := store.db.WithContext(ctx).Order("scheduled_at asc").Find(&rows).Error; err != nil {
		return syncengine.BookingSnapshot{}, false, fmt.Errorf("load snapshot rows: %w", err)
	}

	bookings := make([]syncengine.BookingRecord, 0, len(rows))
	for _, row := range rows {
		bookings = append(bookings, row.toRecord())
	}
	return syncengine.BookingSnapshot{ProviderID: meta.ProviderID, Bookings: bookings}, true, nil
}

// SaveSnapshot replaces the persisted snapshot wholesale, mirroring the
// engine's own snapshot-replace semantics.
func (store *Store) SaveSnapshot(ctx context.Context, snapshot syncengine.BookingSnapshot) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := transaction.Where("1 = 1").Delete(&BookingRow{}).Error; err != nil {
			return fmt.Errorf("clear snapshot rows: %w", err)
		}
		for _, record := range snapshot.Bookings {
			row := fromRecord(record)
			if err := transaction.Create(&row).Error; err != nil {
				return fmt.Errorf("insert snapshot row: %w", err)
			}
		}
		meta := SnapshotMeta{ID: 1, ProviderID: snapshot.ProviderID, SavedAt: time.Now().UTC()}
		if err := transaction.Save(&meta).Error; err != nil {
			return fmt.Errorf("save snapshot meta: %w", err)
		}
		return nil
	})
}

func (row BookingRow) toRecord() syncengine.BookingRecord {
	record := syncengine.BookingRecord{
		ID:              row.BookingID,
		Status:          syncengine.ParseBookingStatus(row.Status),
		PaymentMethod:   syncengine.ParsePaymentMethod(row.PaymentMethod),
		ScheduledAt:     row.ScheduledAt,
		AmountCents:     row.AmountCents,
		CounterpartyRef: row.CounterpartyRef,
		UpdatedAt:       row.UpdatedAt,
	}
	if row.PaymentStatus != nil {
		payment := syncengine.Payment{Status: syncengine.ParsePaymentStatus(*row.PaymentStatus)}
		if row.PaymentAmount != nil {
			payment.AmountCents = *row.PaymentAmount
		}
		record.Payment = &payment
	}
	return record
}

func fromRecord(record syncengine.BookingRecord) BookingRow {
	row := BookingRow{
		BookingID:       record.ID,
		Status:          string(record.Status),
		PaymentMethod:   string(record.PaymentMethod),
		ScheduledAt:     record.ScheduledAt,
		AmountCents:     record.AmountCents,
		CounterpartyRef: record.CounterpartyRef,
		UpdatedAt:       record.UpdatedAt,
	}
	if record.Payment != nil {
		status := string(record.Payment.Status)
		amount := record.Payment.AmountCents
		row.PaymentStatus = &status
		row.PaymentAmount = &amount
	}
	return row
}

var _ syncengine.SeedSource = (*Store)(nil)
