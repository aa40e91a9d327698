package session

import "context"

// Store persists client snapshots under a string key.
type Store interface {
	// Load retrieves the snapshot stored under key.
	// Returns nil if nothing is stored (not an error).
	Load(ctx context.Context, key string) (*Snapshot, error)

	// Save writes snap under key with optimistic locking.
	// snap.Version must equal the stored version (zero when nothing is stored).
	// On success snap.Version is incremented and snap.SavedAt is set.
	// Returns ErrVersionConflict if the version does not match.
	Save(ctx context.Context, key string, snap *Snapshot) error

	// Delete removes the snapshot stored under key.
	Delete(ctx context.Context, key string) error

	// Close closes the store and releases any resources.
	Close() error
}
