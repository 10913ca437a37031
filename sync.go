package velum

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/velum-sync/velum/internal/blobcache"
	"github.com/velum-sync/velum/internal/cryptobox"
	"github.com/velum-sync/velum/internal/miv"
)

// Sync owns one local and one cloud watcher for a node. Lifecycle only;
// the watchers drive the engine.
type Sync struct {
	cfg    *Config
	engine *engine
	box    *cryptobox.Box
	local  *watcher
	cloud  *watcher
}

// New builds a node: derives the blob key, lays out the shared folders, and
// wires the engine into a local and a cloud watcher. Nothing runs until Start.
func New(nodeID, localDir, cloudRoot string, key []byte, opts ...Option) (*Sync, error) {
	cfg := &Config{
		NodeID:    nodeID,
		LocalDir:  localDir,
		CloudRoot: cloudRoot,
		Key:       key,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	if cfg.Log == nil {
		cfg.Log = logrus.New()
	}
	if cfg.StatusDir == "" {
		cfg.StatusDir = defaultStatusDir(nodeID)
	}
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("velum: node id required")
	}
	if cfg.LocalDir == "" || cfg.CloudRoot == "" {
		return nil, fmt.Errorf("velum: local dir and cloud root required")
	}

	log := cfg.Log.WithField("node", cfg.NodeID)
	log.WithFields(logrus.Fields{
		"local": cfg.LocalDir,
		"cloud": cfg.CloudRoot,
	}).Info("node configured")

	eng, box, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}

	s := &Sync{
		cfg:    cfg,
		engine: eng,
		box:    box,
		local:  newLocalWatcher(eng, newStatusWriter(cfg.FS, cfg.StatusDir, kindLocal, log), log),
		cloud:  newCloudWatcher(eng, newStatusWriter(cfg.FS, cfg.StatusDir, kindCloud, log), log),
	}
	return s, nil
}

// newEngine lays out the local and shared folders and assembles the merge
// engine. Shared by New and the tests.
func newEngine(cfg *Config) (*engine, *cryptobox.Box, error) {
	box, err := cryptobox.New(cfg.Key)
	if err != nil {
		return nil, nil, err
	}

	folders := NewCloudFolders(cfg.CloudRoot)
	if err := folders.ensure(cfg.FS); err != nil {
		box.Close()
		return nil, nil, fmt.Errorf("create shared folders: %w", err)
	}
	if err := cfg.FS.MkdirAll(cfg.LocalDir, 0755); err != nil {
		box.Close()
		return nil, nil, fmt.Errorf("create local folder: %w", err)
	}

	alloc, err := miv.New(cfg.FS, folders.Miv())
	if err != nil {
		box.Close()
		return nil, nil, err
	}

	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}

	return &engine{
		fs:       cfg.FS,
		folders:  folders,
		cache:    blobcache.New(cfg.FS, folders.Cache(), box),
		alloc:    alloc,
		nodeID:   cfg.NodeID,
		localDir: cfg.LocalDir,
		log:      log.WithField("node", cfg.NodeID),
	}, box, nil
}

// Start runs each watcher's initial full pass and subscribes both to change
// notifications.
func (s *Sync) Start() error {
	if err := s.local.start(); err != nil {
		return fmt.Errorf("start local watcher: %w", err)
	}
	if err := s.cloud.start(); err != nil {
		s.local.requestExit()
		return fmt.Errorf("start cloud watcher: %w", err)
	}
	return nil
}

// Scan forces one local and one cloud dispatch without an event.
func (s *Sync) Scan() {
	s.local.dispatch(nil)
	s.cloud.dispatch(nil)
}

// RequestExit stops both watchers and blocks until their delivery goroutines
// have terminated. In-flight dispatches run to completion.
func (s *Sync) RequestExit() {
	s.local.requestExit()
	s.cloud.requestExit()
	s.box.Close()
}
