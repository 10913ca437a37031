// Package eventlog provides the per-node durable event log: an append-only
// ordered record of path state changes, stored as one SQLite file per node
// inside the shared transport.
package eventlog

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Ext is the filename extension of event log files in the shared fsdb folder.
const Ext = ".db"

// Record is one logged snapshot of a path's state. An empty Digest marks a
// tombstone (deletion). Records are immutable once appended.
type Record struct {
	Seq    uint64
	Path   string
	Size   int64
	Digest string
	Mtime  time.Time
}

// Tombstone reports whether the record denotes a deletion.
func (r Record) Tombstone() bool { return r.Digest == "" }

// Allocator issues the strictly increasing sequence values used by Append.
type Allocator interface {
	Next() (uint64, error)
}

// Log is one node's event log. Logs opened with Open accept appends; logs
// opened with OpenReadOnly (other nodes' replicated files) do not.
type Log struct {
	db    *sql.DB
	alloc Allocator
}

// Open creates or opens the log at path for appending. The file is configured
// for a replicated folder: no WAL sidecars, full synchronous writes so a
// record is durable before Append returns.
func Open(path string, alloc Allocator) (*Log, error) {
	db, err := open(path, false)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Log{db: db, alloc: alloc}, nil
}

// OpenReadOnly opens another node's replicated log file. No schema is
// applied; a malformed or half-replicated file surfaces as a query error
// and is treated as absent by the caller.
func OpenReadOnly(path string) (*Log, error) {
	db, err := open(path, true)
	if err != nil {
		return nil, err
	}
	// fail fast on files that are not sqlite databases
	if _, err := db.Exec("SELECT count(*) FROM events"); err != nil {
		db.Close()
		return nil, fmt.Errorf("read log %s: %w", path, err)
	}
	return &Log{db: db}, nil
}

func open(path string, readOnly bool) (*sql.DB, error) {
	dsn := "file:" + path + "?_busy_timeout=5000&_journal_mode=TRUNCATE&_synchronous=FULL"
	if readOnly {
		dsn += "&mode=ro"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}

	// single writer avoids SQLITE_BUSY from our own connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return db, nil
}

// Close closes the underlying database file. Logs are opened per dispatch
// pass and closed immediately after, so the replicator always sees a
// quiescent file.
func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Append records a created or updated path. The sequence value is allocated
// and durably persisted before the record is written.
func (l *Log) Append(path string, size int64, digest string, mtime time.Time) (Record, error) {
	if digest == "" {
		return Record{}, fmt.Errorf("append %s: empty digest, use AppendTombstone", path)
	}
	seq, err := l.alloc.Next()
	if err != nil {
		return Record{}, fmt.Errorf("allocate seq: %w", err)
	}

	rec := Record{Seq: seq, Path: path, Size: size, Digest: digest, Mtime: mtime.UTC()}
	_, err = l.db.Exec(
		"INSERT INTO events (seq, path, size, digest, mtime) VALUES (?, ?, ?, ?, ?)",
		rec.Seq, rec.Path, rec.Size, rec.Digest, rec.Mtime.UnixNano(),
	)
	if err != nil {
		return Record{}, fmt.Errorf("append %s: %w", path, err)
	}
	return rec, nil
}

// AppendTombstone records the deletion of a path.
func (l *Log) AppendTombstone(path string) (Record, error) {
	seq, err := l.alloc.Next()
	if err != nil {
		return Record{}, fmt.Errorf("allocate seq: %w", err)
	}

	rec := Record{Seq: seq, Path: path}
	_, err = l.db.Exec(
		"INSERT INTO events (seq, path, size, digest, mtime) VALUES (?, ?, NULL, NULL, NULL)",
		rec.Seq, rec.Path,
	)
	if err != nil {
		return Record{}, fmt.Errorf("append tombstone %s: %w", path, err)
	}
	return rec, nil
}

// Adopt writes a winning record from another node's log verbatim, keeping
// its original seq. Used when this node applies a remote winner so its own
// log reflects observed reality without deriving a new sequence value.
func (l *Log) Adopt(rec Record) error {
	var (
		size   any
		digest any
		mtime  any
	)
	if !rec.Tombstone() {
		size, digest, mtime = rec.Size, rec.Digest, rec.Mtime.UnixNano()
	}

	_, err := l.db.Exec(
		"INSERT INTO events (seq, path, size, digest, mtime) VALUES (?, ?, ?, ?, ?)",
		rec.Seq, rec.Path, size, digest, mtime,
	)
	if err != nil {
		return fmt.Errorf("adopt %s seq %d: %w", rec.Path, rec.Seq, err)
	}
	return nil
}

// Current returns the maximum-seq record for a path, or ok=false if the path
// was never recorded.
func (l *Log) Current(path string) (Record, bool, error) {
	row := l.db.QueryRow(
		"SELECT seq, path, size, digest, mtime FROM events WHERE path = ? ORDER BY seq DESC, id DESC LIMIT 1",
		path,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("current %s: %w", path, err)
	}
	return rec, true, nil
}

// LastSeq returns the highest seq recorded for a path.
func (l *Log) LastSeq(path string) (uint64, bool, error) {
	rec, ok, err := l.Current(path)
	return rec.Seq, ok, err
}

// Paths returns every path ever recorded in this log.
func (l *Log) Paths() ([]string, error) {
	rows, err := l.db.Query("SELECT DISTINCT path FROM events ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("list paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Records returns every record in the log in append (seq) order.
func (l *Log) Records() ([]Record, error) {
	rows, err := l.db.Query("SELECT seq, path, size, digest, mtime FROM events ORDER BY seq, id")
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec    Record
		size   sql.NullInt64
		digest sql.NullString
		mtime  sql.NullInt64
	)
	if err := s.Scan(&rec.Seq, &rec.Path, &size, &digest, &mtime); err != nil {
		return Record{}, err
	}
	if digest.Valid {
		rec.Digest = digest.String
		rec.Size = size.Int64
		rec.Mtime = time.Unix(0, mtime.Int64).UTC()
	}
	return rec, nil
}
