package session

import "errors"

// Common errors for snapshot store operations.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
	ErrVersionConflict  = errors.New("snapshot version conflict")
	ErrNotFound         = errors.New("snapshot not found")
)
