package drivers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/creastat/chatstore/session"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements session.Store on a local SQLite database file.
// The version column mirrors Snapshot.Version for optimistic locking.
type SQLiteStore struct {
	db    *sql.DB
	codec *session.Codec
}

// NewSQLiteStore opens (and if needed creates) the database at path.
func NewSQLiteStore(path string, codec *session.Codec) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers anyway; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, codec: codec}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS snapshots (
        key TEXT PRIMARY KEY,
        version INTEGER NOT NULL,
        data BLOB NOT NULL,
        saved_at DATETIME NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Load implements session.Store.
func (s *SQLiteStore) Load(ctx context.Context, key string) (*session.Snapshot, error) {
	var (
		version int64
		data    []byte
	)
	err := s.db.QueryRowContext(ctx, "SELECT version, data FROM snapshots WHERE key = ?", key).Scan(&version, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	snap, err := s.codec.Decode(data)
	if err != nil {
		return nil, err
	}
	snap.Version = version
	return snap, nil
}

// Save implements session.Store.
func (s *SQLiteStore) Save(ctx context.Context, key string, snap *session.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var stored int64
	err = tx.QueryRowContext(ctx, "SELECT version FROM snapshots WHERE key = ?", key).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to query snapshot version: %w", err)
	}
	if stored != snap.Version {
		return session.ErrVersionConflict
	}

	next := snap.Clone()
	next.Version++
	next.SavedAt = time.Now().UTC()

	data, err := s.codec.Encode(next)
	if err != nil {
		return err
	}

	if stored == 0 {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO snapshots (key, version, data, saved_at) VALUES (?, ?, ?, ?)",
			key, next.Version, data, next.SavedAt)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx,
			"UPDATE snapshots SET version = ?, data = ?, saved_at = ? WHERE key = ? AND version = ?",
			next.Version, data, next.SavedAt, key, stored)
		if err != nil {
			return fmt.Errorf("failed to update snapshot: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return session.ErrVersionConflict
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	snap.Version = next.Version
	snap.SavedAt = next.SavedAt
	return nil
}

// Delete implements session.Store.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE key = ?", key)
	return err
}

// Close implements session.Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
