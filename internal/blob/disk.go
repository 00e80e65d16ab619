package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/and161185/msgstore/internal/model"
)

// Disk stores blobs as files directly under a root directory.
// The mime type is not persisted; reads sniff it from the content.
type Disk struct {
	root string
	log  *zap.Logger
}

// NewDisk returns a disk store rooted at root.
func NewDisk(root string, log *zap.Logger) *Disk {
	return &Disk{root: root, log: log}
}

// Init creates the root directory. An existing directory is fine.
func (d *Disk) Init(_ context.Context) error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("blob root: %w", err)
	}
	return nil
}

// StoreData writes data under name.
func (d *Disk) StoreData(ctx context.Context, name, mime string, data []byte) (string, error) {
	return d.StoreFile(ctx, name, mime, bytes.NewReader(data))
}

// StoreFile copies r under name. The file is written to a temporary name in
// the root and renamed into place, so readers never see partial content.
func (d *Disk) StoreFile(_ context.Context, name, mime string, r io.Reader) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(d.root, ".upload-*")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write blob %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	path := d.path(name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	d.log.Debug("blob stored", zap.String("name", name), zap.String("mime", mime), zap.Int64("size", n))
	return path, nil
}

// Get returns the blob stored under name, or nil if there is none.
func (d *Disk) Get(_ context.Context, name string, withData bool) (*model.Blob, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	path := d.path(name)
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, nil
	}
	b := &model.Blob{Name: name, Location: path, Size: fi.Size()}
	if !withData {
		return b, nil
	}
	if b.Data, err = os.ReadFile(path); err != nil {
		return nil, err
	}
	b.Size = int64(len(b.Data))
	b.Mime = http.DetectContentType(b.Data)
	b.Digest = Digest(b.Data)
	return b, nil
}

func (d *Disk) path(name string) string { return filepath.Join(d.root, name) }
