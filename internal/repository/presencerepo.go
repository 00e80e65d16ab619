package repository

import (
	"context"

	"github.com/and161185/msgstore/internal/model"
	"github.com/and161185/msgstore/internal/stanza"
)

// PresenceRepository caches the last presence of each connected resource.
type PresenceRepository interface {
	// Get returns the record for userid+resource, or every resource of userid
	// (most recent first) when resource is empty.
	Get(ctx context.Context, userid, resource string) ([]model.Presence, error)
	// Presence upserts the presence carried by a presence stanza.
	Presence(ctx context.Context, s *stanza.Element) error
	// Touch refreshes the last-seen timestamp without changing anything else.
	Touch(ctx context.Context, addr string) error
}
