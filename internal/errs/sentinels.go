// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrInvalidCode is returned for malformed, unknown or already redeemed validation codes.
	// The registry never tells these cases apart.
	ErrInvalidCode = errors.New("invalid validation code")

	// ErrThrottled indicates a source temporarily blocked after repeated invalid codes.
	ErrThrottled = errors.New("too many attempts")

	// ErrAlreadyExists indicates a unique constraint violation (duplicate stanza id, taken code).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidAddress indicates an address that cannot be reduced to a user identifier.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidName indicates a blob name that cannot be mapped to a storage key.
	ErrInvalidName = errors.New("invalid blob name")

	// ErrUnsupportedDriver indicates a dbmodule other than the PostgreSQL driver.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)
