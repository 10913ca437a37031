package velum

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Config carries everything a node's components need. It is threaded
// explicitly through construction; there are no package-level singletons.
type Config struct {
	// NodeID is the stable identifier of this device instance. Also the
	// basename of this node's event log in the shared fsdb folder.
	NodeID string

	// LocalDir is the synced folder on this device.
	LocalDir string

	// CloudRoot is the root of the shared transport, the folder an external
	// replicator keeps in sync across devices.
	CloudRoot string

	// Key is the pre-shared secret all nodes derive the blob key from.
	Key []byte

	// StatusDir receives the per-watcher status documents.
	StatusDir string

	// FS is the filesystem all file operations go through.
	FS afero.Fs

	// Log receives structured engine logs.
	Log logrus.FieldLogger
}

// Option is a functional option for configuring New.
type Option func(*Config)

// WithLogger sets the logger components report through.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Config) { c.Log = log }
}

// WithFS sets the filesystem implementation.
func WithFS(fsys afero.Fs) Option {
	return func(c *Config) { c.FS = fsys }
}

// WithStatusDir sets where watcher status documents are written.
func WithStatusDir(dir string) Option {
	return func(c *Config) { c.StatusDir = dir }
}

func defaultStatusDir(nodeID string) string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "velum", "status", nodeID)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "velum", "status", nodeID)
	}
	return filepath.Join(".velum-status", nodeID)
}
