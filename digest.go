package velum

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/spf13/afero"
)

// Digest identifies file content: the hex-encoded SHA-512 of the plaintext
// bytes. It doubles as the change-detection key and the blob cache key.
type Digest string

func hashBytes(data []byte) Digest {
	sum := sha512.Sum512(data)
	return Digest(hex.EncodeToString(sum[:]))
}

// readAndHash returns a file's content and digest in one read. Any I/O
// failure (file vanished or locked mid-read) is a soft failure wrapped as
// ErrHashUnavailable; the caller skips the path and retries next pass.
func readAndHash(fsys afero.Fs, path string) ([]byte, Digest, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrHashUnavailable, path, err)
	}
	return data, hashBytes(data), nil
}
