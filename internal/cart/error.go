package cart

import "errors"

var (
	// -- Validation & Input --
	ErrInvalidProduct    = errors.New("product id is required")
	ErrVolumeNotResolved = errors.New("cart volume could not be resolved")
	ErrUnknownAction     = errors.New("unknown cart action")
	ErrInvalidSessionID  = errors.New("cart session id is required")

	// -- Persistence --
	ErrSnapshotNotFound   = errors.New("cart snapshot not found")
	ErrFailedLoadSnapshot = errors.New("failed to load cart snapshot")
	ErrFailedSaveSnapshot = errors.New("failed to save cart snapshot")
)
