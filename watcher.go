package velum

import (
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/velum-sync/velum/internal/eventlog"
)

// watcherKind is the closed set of watcher variants.
type watcherKind string

const (
	kindLocal watcherKind = "local" // watches the synced folder, records changes
	kindCloud watcherKind = "cloud" // watches the shared fsdb folder, merges logs
)

// watcher is one watch/dispatch state machine: a single fsnotify listener
// goroutine feeding a mutex-guarded dispatch. The mutex is the real mutual
// exclusion between overlapping dispatches; overlap is blocked, not merely
// logged. Notifications are hints only: dispatch re-derives all state from
// the filesystem and the logs, so duplicated or dropped events are harmless.
type watcher struct {
	kind   watcherKind
	pass   func() error               // strategy: local or merge pass
	accept func(fsnotify.Event) bool  // notification filter
	roots  func() ([]string, error)   // directories to register

	status *statusWriter
	log    logrus.FieldLogger

	fsw   *fsnotify.Watcher
	mu    sync.Mutex
	calls atomic.Uint64
	wg    conc.WaitGroup
}

func newLocalWatcher(e *engine, status *statusWriter, log logrus.FieldLogger) *watcher {
	w := &watcher{
		kind:   kindLocal,
		pass:   e.localPass,
		status: status,
		log:    log.WithField("watcher", kindLocal),
	}
	w.accept = func(ev fsnotify.Event) bool {
		if isChmodOnly(ev) {
			return false
		}
		rel, err := filepath.Rel(e.localDir, ev.Name)
		if err != nil {
			return false
		}
		// the trash folder, our temp files, and other dot-prefixed entries
		// are not part of the sync set
		return !hasHiddenComponent(rel)
	}
	w.roots = func() ([]string, error) {
		return walkDirs(e.fs, e.localDir)
	}
	status.write(statusReady)
	return w
}

func newCloudWatcher(e *engine, status *statusWriter, log logrus.FieldLogger) *watcher {
	w := &watcher{
		kind:   kindCloud,
		pass:   e.mergePass,
		status: status,
		log:    log.WithField("watcher", kindCloud),
	}
	// only changes to node event logs trigger a merge; incidental writes
	// elsewhere in the shared transport are ignored
	w.accept = func(ev fsnotify.Event) bool {
		return !isChmodOnly(ev) && filepath.Ext(ev.Name) == eventlog.Ext
	}
	w.roots = func() ([]string, error) {
		return []string{e.folders.FSDB()}, nil
	}
	status.write(statusReady)
	return w
}

// start runs one full dispatch pass unconditionally, then subscribes to
// change notifications and waits passively.
func (w *watcher) start() error {
	w.dispatch(nil)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	roots, err := w.roots()
	if err != nil {
		fsw.Close()
		return err
	}
	for _, root := range roots {
		if err := fsw.Add(root); err != nil {
			// release handles on the already-added paths
			fsw.Close()
			return err
		}
	}

	w.fsw = fsw
	w.wg.Go(w.listen)
	return nil
}

// listen is the single background delivery goroutine. It exits when the
// notification source is closed by requestExit.
func (w *watcher) listen() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.trackNewDirs(ev)
			if !w.accept(ev) {
				continue
			}
			w.dispatch(&ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watch error")
		}
	}
}

// trackNewDirs registers directories created after start, since the
// underlying watch facility is not recursive.
func (w *watcher) trackNewDirs(ev fsnotify.Event) {
	if w.kind != kindLocal || !ev.Op.Has(fsnotify.Create) {
		return
	}
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return
	}
	// Add fails on non-directories; that is fine, file events already
	// arrive via the parent directory's watch.
	_ = w.fsw.Add(ev.Name)
}

// dispatch runs one pass under the watcher's mutex. Transitions
// READY/WAITING -> SCANNING -> WAITING, reported through the status document.
func (w *watcher) dispatch(ev *fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	call := w.calls.Add(1)
	log := w.log.WithField("call", call)
	if ev != nil {
		log = log.WithField("event", ev.String())
	}

	log.Debug("dispatch begin")
	w.status.write(statusScanning)

	if err := w.pass(); err != nil {
		log.WithError(err).Warn("dispatch pass failed")
	}

	w.status.write(statusWaiting)
	log.Debug("dispatch end")
}

// requestExit stops the notification source, then blocks until the delivery
// goroutine has fully terminated. No new dispatch begins after it returns;
// an in-flight dispatch runs to completion rather than being cancelled.
func (w *watcher) requestExit() {
	w.log.Info("request exit begin")
	if w.fsw != nil {
		if err := w.fsw.Close(); err != nil {
			w.log.WithError(err).Warn("close watch source failed")
		}
		w.wg.Wait()
	}
	w.log.Info("request exit end")
}

func isChmodOnly(ev fsnotify.Event) bool {
	return ev.Op == fsnotify.Chmod
}

func hasHiddenComponent(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
