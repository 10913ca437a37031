package velum

import (
	"path/filepath"

	"github.com/spf13/afero"
)

const sharedDirName = ".velum"

// CloudFolders resolves the fixed layout the engine keeps inside the shared
// root: cache/ for sealed blobs, fsdb/ for per-node event logs, and miv/ for
// the shared sequence counter state.
type CloudFolders struct {
	root string
}

// NewCloudFolders places the engine's folders under cloudRoot.
func NewCloudFolders(cloudRoot string) CloudFolders {
	return CloudFolders{root: filepath.Join(cloudRoot, sharedDirName)}
}

// Cache is the content-addressed blob folder, one <digest>.fer per blob.
func (c CloudFolders) Cache() string { return filepath.Join(c.root, "cache") }

// FSDB is the event log folder, one <node-id>.db per node.
func (c CloudFolders) FSDB() string { return filepath.Join(c.root, "fsdb") }

// Miv is the persisted sequence-counter folder.
func (c CloudFolders) Miv() string { return filepath.Join(c.root, "miv") }

func (c CloudFolders) ensure(fsys afero.Fs) error {
	for _, dir := range []string{c.Cache(), c.FSDB(), c.Miv()} {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
