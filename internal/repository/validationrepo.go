package repository

import "context"

// ValidationRepository issues and redeems one-time validation codes.
type ValidationRepository interface {
	// Register stores a code for key, generating one when code is empty, and returns it.
	Register(ctx context.Context, key, code string) (string, error)
	// Validate redeems code and returns the key it was issued for.
	Validate(ctx context.Context, code string) (string, error)
}
