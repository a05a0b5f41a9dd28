package repositories

import "errors"

// Storage-level error kinds. Implementations wrap driver errors into these so the
// service layer can decide between retrying, surfacing and translating.
var (
	ErrNotFound           = errors.New("record not found")
	ErrVersionConflict    = errors.New("version precondition failed")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
