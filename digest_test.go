package velum

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBytesKnownVector(t *testing.T) {
	// sha512("hello")
	want := Digest("9b71d224bd62f3785d96d46ad3ea3d73319bfbc2890caadae2dff72519673ca7" +
		"2323c3d99ba5c11d7c7acc6e14b8c5da0c4663475c2e5c3adef46f73bcdec043")
	assert.Equal(t, want, hashBytes([]byte("hello")))
}

func TestReadAndHash(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/f.txt", []byte("hello"), 0644))

	data, digest, err := readAndHash(fs, "/f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, hashBytes([]byte("hello")), digest)
}

func TestReadAndHashMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, _, err := readAndHash(fs, "/vanished.txt")
	assert.ErrorIs(t, err, ErrHashUnavailable)
}
