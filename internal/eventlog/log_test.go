package eventlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAlloc is a deterministic in-memory Allocator for tests.
type fakeAlloc struct {
	last uint64
}

func (a *fakeAlloc) Next() (uint64, error) {
	a.last++
	return a.last, nil
}

func openTestLog(t *testing.T) *Log {
	t.Helper()
	log, err := Open(filepath.Join(t.TempDir(), "node-a"+Ext), &fakeAlloc{})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func TestAppendReadBackInOrder(t *testing.T) {
	log := openTestLog(t)

	mtime := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var appended []Record
	for _, path := range []string{"a.txt", "b.txt", "a.txt", "c/d.txt"} {
		rec, err := log.Append(path, 5, "h-"+path, mtime)
		require.NoError(t, err)
		appended = append(appended, rec)
	}

	records, err := log.Records()
	require.NoError(t, err)
	assert.Equal(t, appended, records, "read back exactly what was appended, in seq order")

	for i := 1; i < len(records); i++ {
		assert.Greater(t, records[i].Seq, records[i-1].Seq)
	}
}

func TestCurrentIsMaxSeq(t *testing.T) {
	log := openTestLog(t)

	mtime := time.Now().UTC()
	_, err := log.Append("notes.txt", 5, "h1", mtime)
	require.NoError(t, err)
	_, err = log.Append("other.txt", 2, "h2", mtime)
	require.NoError(t, err)
	last, err := log.Append("notes.txt", 7, "h3", mtime)
	require.NoError(t, err)

	cur, ok, err := log.Current("notes.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, last, cur)

	_, ok, err = log.Current("never-recorded.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTombstoneFields(t *testing.T) {
	log := openTestLog(t)

	_, err := log.Append("notes.txt", 5, "h1", time.Now())
	require.NoError(t, err)
	tomb, err := log.AppendTombstone("notes.txt")
	require.NoError(t, err)
	assert.True(t, tomb.Tombstone())

	cur, ok, err := log.Current("notes.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cur.Tombstone())
	assert.Empty(t, cur.Digest)
	assert.Zero(t, cur.Size)
	assert.True(t, cur.Mtime.IsZero())
}

func TestAppendRejectsEmptyDigest(t *testing.T) {
	log := openTestLog(t)

	_, err := log.Append("notes.txt", 5, "", time.Now())
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	log := openTestLog(t)

	mtime := time.Now().UTC()
	for _, path := range []string{"b.txt", "a.txt", "a.txt"} {
		_, err := log.Append(path, 1, "h", mtime)
		require.NoError(t, err)
	}
	_, err := log.AppendTombstone("a.txt")
	require.NoError(t, err)

	paths, err := log.Paths()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, paths, "tombstoned paths remain recorded")
}

func TestAdoptKeepsForeignSeq(t *testing.T) {
	log := openTestLog(t)

	foreign := Record{
		Seq:    99,
		Path:   "notes.txt",
		Size:   5,
		Digest: "h-remote",
		Mtime:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, log.Adopt(foreign))

	cur, ok, err := log.Current("notes.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, foreign, cur)

	seq, ok, err := log.LastSeq("notes.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(99), seq)
}

func TestAdoptTombstone(t *testing.T) {
	log := openTestLog(t)

	require.NoError(t, log.Adopt(Record{Seq: 7, Path: "notes.txt"}))

	cur, ok, err := log.Current("notes.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cur.Tombstone())
	assert.Equal(t, uint64(7), cur.Seq)
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node-a"+Ext)

	log, err := Open(path, &fakeAlloc{})
	require.NoError(t, err)
	_, err = log.Append("notes.txt", 5, "h1", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, log.Close())

	reopened, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "h1", records[0].Digest)
}

func TestOpenReadOnlyRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk"+Ext)
	require.NoError(t, os.WriteFile(path, []byte("not a database"), 0644))

	_, err := OpenReadOnly(path)
	assert.Error(t, err)
}
