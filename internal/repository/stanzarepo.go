// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/msgstore/internal/model"
	"github.com/and161185/msgstore/internal/stanza"
)

// StanzaRepository is the offline message store.
type StanzaRepository interface {
	// Store persists a stanza for later delivery and returns the id it was stored under.
	Store(ctx context.Context, s *stanza.Element) (string, error)
	// GetByID returns the stored stanza, or nil when there is none.
	GetByID(ctx context.Context, id string) (*model.StoredStanza, error)
	// GetByRecipient returns the stanzas addressed to recipient, oldest first.
	GetByRecipient(ctx context.Context, recipient string) ([]model.OfflineStanza, error)
	// GetBySender returns the stanzas sent by sender, oldest first.
	GetBySender(ctx context.Context, sender string) ([]model.OfflineStanza, error)
	// Delete removes a stanza by id. Non-empty sender/recipient restrict the delete
	// to rows whose addresses start with them.
	Delete(ctx context.Context, id, sender, recipient string) error
	// DeleteByStanza resolves the storage id of s the way Store does and deletes it.
	DeleteByStanza(ctx context.Context, s *stanza.Element, sender, recipient string) error
}
