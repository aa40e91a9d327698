package drivers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creastat/chatstore/session"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// snapshotRecord is the row layout of the chat_snapshots table.
type snapshotRecord struct {
	SnapshotKey string    `gorm:"column:snapshot_key;primaryKey;size:255"`
	Version     int64     `gorm:"not null"`
	Data        []byte    `gorm:"type:bytea;not null"`
	SavedAt     time.Time `gorm:"not null"`
}

func (snapshotRecord) TableName() string {
	return "chat_snapshots"
}

// PostgresStore implements session.Store on PostgreSQL through GORM.
type PostgresStore struct {
	db    *gorm.DB
	codec *session.Codec
}

// NewPostgresStore connects to dsn and migrates the snapshot table.
func NewPostgresStore(dsn string, codec *session.Codec) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return newPostgresStore(db, codec)
}

func newPostgresStore(db *gorm.DB, codec *session.Codec) (*PostgresStore, error) {
	if err := db.AutoMigrate(&snapshotRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate snapshot table: %w", err)
	}
	return &PostgresStore{db: db, codec: codec}, nil
}

// Load implements session.Store.
func (s *PostgresStore) Load(ctx context.Context, key string) (*session.Snapshot, error) {
	var rec snapshotRecord
	err := s.db.WithContext(ctx).Where("snapshot_key = ?", key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	snap, err := s.codec.Decode(rec.Data)
	if err != nil {
		return nil, err
	}
	snap.Version = rec.Version
	return snap, nil
}

// Save implements session.Store.
// The existing row is locked with SELECT ... FOR UPDATE for the duration of the check.
func (s *PostgresStore) Save(ctx context.Context, key string, snap *session.Snapshot) error {
	next := snap.Clone()
	next.Version++
	next.SavedAt = time.Now().UTC()

	data, err := s.codec.Encode(next)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec snapshotRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("snapshot_key = ?", key).
			Take(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if snap.Version != 0 {
				return session.ErrVersionConflict
			}
			return tx.Create(&snapshotRecord{
				SnapshotKey: key,
				Version:     next.Version,
				Data:        data,
				SavedAt:     next.SavedAt,
			}).Error
		case err != nil:
			return err
		}

		if rec.Version != snap.Version {
			return session.ErrVersionConflict
		}

		return tx.Model(&snapshotRecord{}).
			Where("snapshot_key = ? AND version = ?", key, rec.Version).
			Updates(map[string]any{
				"version":  next.Version,
				"data":     data,
				"saved_at": next.SavedAt,
			}).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return session.ErrVersionConflict
	}
	if err != nil {
		return err
	}

	snap.Version = next.Version
	snap.SavedAt = next.SavedAt
	return nil
}

// Delete implements session.Store.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("snapshot_key = ?", key).Delete(&snapshotRecord{}).Error
}

// Close implements session.Store.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
