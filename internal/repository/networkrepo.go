package repository

import "context"

// NetworkRepository lists the servers of the federation.
type NetworkRepository interface {
	// GetList returns fingerprint -> host for every known server.
	GetList(ctx context.Context) (map[string]string, error)
}
