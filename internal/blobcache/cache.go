// Package blobcache is the content-addressed store of encrypted file bodies
// in the shared transport. One blob per unique content digest, written once
// and never rewritten, so every node's replicator converges on identical bytes.
package blobcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/velum-sync/velum/internal/cryptobox"
)

// Ext is the filename extension of sealed blobs in the shared cache.
const Ext = ".fer"

// ErrNotFound is returned by Fetch when no blob exists for a digest.
var ErrNotFound = errors.New("blobcache: not found")

// Cache stores sealed blobs under cache/<digest>.fer.
type Cache struct {
	fs  afero.Fs
	dir string
	box *cryptobox.Box
}

// New creates a cache over dir. The directory is created on first Store.
func New(fsys afero.Fs, dir string, box *cryptobox.Box) *Cache {
	return &Cache{fs: fsys, dir: dir, box: box}
}

// Store seals plaintext and writes it under digest if absent. A pre-existing
// entry for the same digest is left untouched: blobs are write-once and
// content-addressed, so a second Store is a no-op.
func (c *Cache) Store(digest string, plaintext []byte) error {
	path := c.Path(digest)
	if _, err := c.fs.Stat(path); err == nil {
		return nil
	}

	sealed, err := c.box.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("seal blob %s: %w", digest, err)
	}

	if err := c.fs.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	// Write through a temp file so the replicator never observes a
	// half-written blob.
	tmp, err := afero.TempFile(c.fs, c.dir, "."+digest+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		c.fs.Remove(tmpName)
		return fmt.Errorf("write blob %s: %w", digest, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		c.fs.Remove(tmpName)
		return fmt.Errorf("sync blob %s: %w", digest, err)
	}
	if err := tmp.Close(); err != nil {
		c.fs.Remove(tmpName)
		return fmt.Errorf("close blob %s: %w", digest, err)
	}

	if err := c.fs.Rename(tmpName, path); err != nil {
		c.fs.Remove(tmpName)
		return fmt.Errorf("publish blob %s: %w", digest, err)
	}
	return nil
}

// Fetch reads and opens the blob for digest. Returns ErrNotFound when the
// blob is absent and cryptobox.ErrCrypto when authentication fails.
func (c *Cache) Fetch(digest string) ([]byte, error) {
	sealed, err := afero.ReadFile(c.fs, c.Path(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, digest)
		}
		return nil, fmt.Errorf("read blob %s: %w", digest, err)
	}

	plaintext, err := c.box.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", digest, err)
	}
	return plaintext, nil
}

// Has reports whether a blob exists for digest.
func (c *Cache) Has(digest string) bool {
	_, err := c.fs.Stat(c.Path(digest))
	return err == nil
}

// Path returns the blob location for a digest.
func (c *Cache) Path(digest string) string {
	return filepath.Join(c.dir, digest+Ext)
}
