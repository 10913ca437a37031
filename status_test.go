package velum

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readStatusDoc(t *testing.T, s *statusWriter) statusDoc {
	t.Helper()
	data, err := afero.ReadFile(s.fs, s.path)
	require.NoError(t, err)
	var doc statusDoc
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestStatusWriterCountsTransitions(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := newStatusWriter(fs, "/status", kindLocal, testLogger())

	s.write(statusReady)
	doc := readStatusDoc(t, s)
	assert.Equal(t, uint64(1), doc.Count)
	assert.Equal(t, statusReady, doc.Status)
	assert.Positive(t, doc.Timestamp)

	s.write(statusScanning)
	s.write(statusWaiting)
	doc = readStatusDoc(t, s)
	assert.Equal(t, uint64(3), doc.Count)
	assert.Equal(t, statusWaiting, doc.Status)
}

func TestStatusWriterSeedsFromExistingDoc(t *testing.T) {
	fs := afero.NewMemMapFs()

	s := newStatusWriter(fs, "/status", kindCloud, testLogger())
	s.write(statusReady)
	s.write(statusScanning)

	// a new writer over the same document continues the counter
	reopened := newStatusWriter(fs, "/status", kindCloud, testLogger())
	reopened.write(statusWaiting)

	doc := readStatusDoc(t, reopened)
	assert.Equal(t, uint64(3), doc.Count)
}

func TestStatusWriterSurvivesCorruptDoc(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/status/local.json", []byte("{garbage"), 0644))

	s := newStatusWriter(fs, "/status", kindLocal, testLogger())
	s.write(statusReady)

	doc := readStatusDoc(t, s)
	assert.Equal(t, uint64(1), doc.Count)
}

func TestStatusDocsPerWatcherType(t *testing.T) {
	fs := afero.NewMemMapFs()

	local := newStatusWriter(fs, "/status", kindLocal, testLogger())
	cloud := newStatusWriter(fs, "/status", kindCloud, testLogger())
	local.write(statusReady)
	cloud.write(statusReady)

	assert.Equal(t, "/status/local.json", local.path)
	assert.Equal(t, "/status/cloud.json", cloud.path)
	for _, path := range []string{local.path, cloud.path} {
		exists, err := afero.Exists(fs, path)
		require.NoError(t, err)
		assert.True(t, exists)
	}
}
