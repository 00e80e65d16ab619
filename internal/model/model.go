// Package model defines domain entities used by repositories and blob stores.
package model

import (
	"time"

	"github.com/and161185/msgstore/internal/stanza"
)

// StoredStanza is the raw stored form of an offline stanza, returned by point lookups.
type StoredStanza struct {
	ID        string
	Content   string    // serialized stanza
	Timestamp time.Time // millisecond precision
}

// OfflineStanza is a stanza reconstructed from offline storage.
// Stanza already carries the storage marker with ID.
type OfflineStanza struct {
	ID        string
	Sender    string // canonical user id
	Recipient string // canonical user id
	Timestamp time.Time
	Stanza    *stanza.Element
}

// Presence is the last known presence of one resource-qualified identity.
type Presence struct {
	UserID    string // resource-qualified identity
	Timestamp time.Time
	Status    string // decoded; "" when absent
	Show      string // "" means available
	Priority  int
}

// Blob is a stored attachment. Data and Digest are only set when the content was read.
type Blob struct {
	Name     string
	Mime     string
	Location string
	Size     int64
	Data     []byte
	Digest   []byte // BLAKE2b-256 of Data
}
