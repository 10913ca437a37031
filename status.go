package velum

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Watcher status values reported in the per-watcher status document.
type watcherStatus string

const (
	statusReady    watcherStatus = "ready"
	statusWaiting  watcherStatus = "waiting"
	statusScanning watcherStatus = "scanning"
)

// statusDoc is the on-disk shape of a watcher's status document. It is
// observability only; the engine never reads it back to make decisions.
type statusDoc struct {
	Count     uint64        `json:"count"`
	Status    watcherStatus `json:"status"`
	Timestamp int64         `json:"timestamp"` // unix milliseconds
}

// statusWriter rewrites one watcher's status document wholesale on every
// state transition, incrementing a monotonic counter. The counter is seeded
// from any document left by a previous run.
type statusWriter struct {
	fs   afero.Fs
	path string
	log  logrus.FieldLogger

	mu    sync.Mutex
	count uint64
}

func newStatusWriter(fsys afero.Fs, dir string, kind watcherKind, log logrus.FieldLogger) *statusWriter {
	s := &statusWriter{
		fs:   fsys,
		path: filepath.Join(dir, string(kind)+".json"),
		log:  log,
	}

	if data, err := afero.ReadFile(fsys, s.path); err == nil {
		var doc statusDoc
		if err := json.Unmarshal(data, &doc); err == nil {
			s.count = doc.Count
		}
	}
	return s
}

func (s *statusWriter) write(status watcherStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	doc := statusDoc{
		Count:     s.count,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
	}

	data, err := json.Marshal(doc)
	if err != nil {
		s.log.WithError(err).Warn("status: marshal failed")
		return
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		s.log.WithError(err).Warn("status: create dir failed")
		return
	}
	if err := afero.WriteFile(s.fs, s.path, data, 0644); err != nil {
		s.log.WithError(err).Warn("status: write failed")
	}
}
