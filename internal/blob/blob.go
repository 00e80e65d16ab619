// Package blob stores opaque binary attachments by name.
//
// Two backends are provided: Disk keeps one file per name under a root
// directory, S3 keeps one object per name in a bucket. Storing an existing
// name overwrites it. Lookups of missing names return a nil *model.Blob and a
// nil error.
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/and161185/msgstore/internal/errs"
	"github.com/and161185/msgstore/internal/model"
)

// Store is implemented by every blob backend.
type Store interface {
	// Init prepares the backend (creates the root directory, checks the bucket).
	Init(ctx context.Context) error
	// StoreData writes data under name and returns its location.
	StoreData(ctx context.Context, name, mime string, data []byte) (string, error)
	// StoreFile copies r under name and returns its location.
	StoreFile(ctx context.Context, name, mime string, r io.Reader) (string, error)
	// Get returns the blob. Without data only the location is resolved and
	// nothing is read.
	Get(ctx context.Context, name string, withData bool) (*model.Blob, error)
}

// checkName rejects names that would escape the storage root or are not a single path element.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%q: %w", name, errs.ErrInvalidName)
	}
	return nil
}

// Digest returns the BLAKE2b-256 digest of data.
func Digest(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}
