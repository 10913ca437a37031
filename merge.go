package velum

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/velum-sync/velum/internal/blobcache"
	"github.com/velum-sync/velum/internal/eventlog"
	"github.com/velum-sync/velum/internal/miv"
)

const trashDirName = ".trash"

// engine computes, from all nodes' logs, the winning state per path and
// reconciles the local folder and this node's own log to it. It also records
// locally observed changes into the node's log and the blob cache.
//
// Event logs are opened per pass and closed before the pass ends, so the
// external replicator only ever ships quiescent files.
type engine struct {
	fs       afero.Fs
	folders  CloudFolders
	cache    *blobcache.Cache
	alloc    *miv.Allocator
	nodeID   string
	localDir string
	log      logrus.FieldLogger
}

func (e *engine) openOwnLog() (*eventlog.Log, error) {
	return eventlog.Open(filepath.Join(e.folders.FSDB(), e.nodeID+eventlog.Ext), e.alloc)
}

func (e *engine) localPath(rel string) string {
	return filepath.Join(e.localDir, filepath.FromSlash(rel))
}

// localPass records local folder state into this node's log: new or changed
// files are sealed into the blob cache and appended; files missing from the
// folder but current in the log get a tombstone. Event payloads are never
// trusted, the pass always re-derives state from the filesystem and the log,
// so redundant passes are idempotent no-ops.
func (e *engine) localPass() error {
	own, err := e.openOwnLog()
	if err != nil {
		return fmt.Errorf("open own log: %w", err)
	}
	defer own.Close()

	files, err := walkFiles(e.fs, e.localDir)
	if err != nil {
		return fmt.Errorf("walk %s: %w", e.localDir, err)
	}

	for _, rel := range files {
		if err := e.recordLocal(own, rel); err != nil {
			// per-path failures never abort the pass
			e.log.WithError(err).WithField("path", rel).Warn("local: path skipped")
		}
	}

	return e.recordDeletions(own)
}

func (e *engine) recordLocal(own *eventlog.Log, rel string) error {
	full := e.localPath(rel)
	data, digest, err := readAndHash(e.fs, full)
	if err != nil {
		return err
	}

	cur, ok, err := own.Current(rel)
	if err != nil {
		return err
	}

	if !ok || cur.Digest != string(digest) {
		if err := e.cache.Store(string(digest), data); err != nil {
			return err
		}
		info, err := e.fs.Stat(full)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrHashUnavailable, rel, err)
		}
		if _, err := own.Append(rel, info.Size(), string(digest), info.ModTime()); err != nil {
			return err
		}
		e.log.WithFields(logrus.Fields{"path": rel, "digest": short(digest)}).Info("local: created or updated")
		return nil
	}

	// record is current, but the blob may be missing (e.g. the cache was
	// populated by a node that has since gone away)
	if !e.cache.Has(string(digest)) {
		return e.cache.Store(string(digest), data)
	}
	return nil
}

func (e *engine) recordDeletions(own *eventlog.Log) error {
	paths, err := own.Paths()
	if err != nil {
		return err
	}

	for _, rel := range paths {
		cur, ok, err := own.Current(rel)
		if err != nil || !ok || cur.Tombstone() {
			continue
		}
		exists, err := afero.Exists(e.fs, e.localPath(rel))
		if err != nil || exists {
			continue
		}
		if _, err := own.AppendTombstone(rel); err != nil {
			e.log.WithError(err).WithField("path", rel).Warn("local: tombstone skipped")
			continue
		}
		e.log.WithField("path", rel).Info("local: deleted")
	}
	return nil
}

// candidate is a current record together with the node whose log it came from.
type candidate struct {
	eventlog.Record
	Node string
}

// beats reports whether c wins over o. Higher seq wins; on equal seq the
// record from the lexicographically smallest node id wins, which makes the
// outcome independent of the order logs are read in.
func (c candidate) beats(o candidate) bool {
	if c.Seq != o.Seq {
		return c.Seq > o.Seq
	}
	return c.Node < o.Node
}

// mergePass reads every node's log in the shared folder, computes the winner
// per path, and applies winners to the local folder and this node's own log.
// Each path is applied atomically: a fetch or write failure leaves it in its
// pre-merge state to be retried on the next pass.
func (e *engine) mergePass() error {
	winners, err := e.collectWinners()
	if err != nil {
		return err
	}

	own, err := e.openOwnLog()
	if err != nil {
		return fmt.Errorf("open own log: %w", err)
	}
	defer own.Close()

	paths := make([]string, 0, len(winners))
	for rel := range winners {
		paths = append(paths, rel)
	}
	sort.Strings(paths)

	for _, rel := range paths {
		if err := e.applyWinner(own, rel, winners[rel]); err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"path": rel,
				"node": winners[rel].Node,
			}).Warn("merge: winner not applied, retrying next pass")
		}
	}
	return nil
}

// collectWinners folds every node's current record per path into the single
// winning record for that path. Unreadable or half-replicated logs are
// logged and treated as absent.
func (e *engine) collectWinners() (map[string]candidate, error) {
	matches, err := afero.Glob(e.fs, filepath.Join(e.folders.FSDB(), "*"+eventlog.Ext))
	if err != nil {
		return nil, fmt.Errorf("list node logs: %w", err)
	}

	winners := make(map[string]candidate)
	for _, dbPath := range matches {
		node := strings.TrimSuffix(filepath.Base(dbPath), eventlog.Ext)
		log, err := eventlog.OpenReadOnly(dbPath)
		if err != nil {
			e.log.WithError(err).WithField("node", node).Warn("merge: unreadable log treated as absent")
			continue
		}

		paths, err := log.Paths()
		if err != nil {
			e.log.WithError(err).WithField("node", node).Warn("merge: unreadable log treated as absent")
			log.Close()
			continue
		}

		for _, rel := range paths {
			rec, ok, err := log.Current(rel)
			if err != nil || !ok {
				continue
			}
			c := candidate{Record: rec, Node: node}
			if best, seen := winners[rel]; !seen || c.beats(best) {
				winners[rel] = c
			}
		}
		log.Close()
	}
	return winners, nil
}

func (e *engine) applyWinner(own *eventlog.Log, rel string, w candidate) error {
	if w.Tombstone() {
		return e.applyTombstone(own, rel, w)
	}

	full := e.localPath(rel)
	local := Digest("")
	if data, err := afero.ReadFile(e.fs, full); err == nil {
		local = hashBytes(data)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("%w: %s: %v", ErrHashUnavailable, rel, err)
	}

	if string(local) != w.Digest {
		plaintext, err := e.cache.Fetch(w.Digest)
		if err != nil {
			return err
		}
		if err := e.writeLocal(full, plaintext, w.Mtime); err != nil {
			return err
		}
		e.log.WithFields(logrus.Fields{"path": rel, "node": w.Node}).Info("merge: propagated")
	}

	last, ok, err := own.LastSeq(rel)
	if err != nil {
		return err
	}
	if !ok || last != w.Seq {
		return own.Adopt(w.Record)
	}
	return nil
}

func (e *engine) applyTombstone(own *eventlog.Log, rel string, w candidate) error {
	full := e.localPath(rel)
	if exists, err := afero.Exists(e.fs, full); err == nil && exists {
		if err := e.trash(full); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrTrashFailure, rel, err)
		}
		e.log.WithFields(logrus.Fields{"path": rel, "node": w.Node}).Info("merge: moved to trash")
	}

	cur, ok, err := own.Current(rel)
	if err != nil {
		return err
	}
	if !ok || !cur.Tombstone() || cur.Seq != w.Seq {
		return own.Adopt(w.Record)
	}
	return nil
}

// writeLocal applies a winner's plaintext to the local path atomically:
// written to a temp file in the target directory and renamed into place, so
// a failure partway never leaves a partial file.
func (e *engine) writeLocal(full string, plaintext []byte, mtime time.Time) error {
	dir := filepath.Dir(full)
	if err := e.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(e.fs, dir, "."+filepath.Base(full)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(plaintext); err != nil {
		tmp.Close()
		e.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", full, err)
	}
	if err := tmp.Close(); err != nil {
		e.fs.Remove(tmpName)
		return fmt.Errorf("close %s: %w", full, err)
	}

	if err := e.fs.Rename(tmpName, full); err != nil {
		e.fs.Remove(tmpName)
		return fmt.Errorf("publish %s: %w", full, err)
	}

	// best effort: mirror the winner's recorded mtime
	if !mtime.IsZero() {
		if err := e.fs.Chtimes(full, mtime, mtime); err != nil {
			e.log.WithError(err).WithField("path", full).Debug("set mtime failed")
		}
	}
	return nil
}

// trash moves a file into the recoverable trash folder under the synced
// root. Never a permanent erase.
func (e *engine) trash(full string) error {
	trashDir := filepath.Join(e.localDir, trashDirName)
	if err := e.fs.MkdirAll(trashDir, 0755); err != nil {
		return err
	}
	dest := filepath.Join(trashDir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(full)))
	return e.fs.Rename(full, dest)
}

func short(d Digest) string {
	if len(d) > 12 {
		return string(d[:12])
	}
	return string(d)
}
