package velum

import (
	"errors"

	"github.com/velum-sync/velum/internal/blobcache"
	"github.com/velum-sync/velum/internal/cryptobox"
)

var (
	// ErrNotFound reports an absent path or blob digest.
	ErrNotFound = blobcache.ErrNotFound

	// ErrCryptoFailure reports an encryption, decryption, or authentication
	// failure. It blocks applying that path's winner until the next pass.
	ErrCryptoFailure = cryptobox.ErrCrypto

	// ErrHashUnavailable reports a hashing I/O failure, e.g. a file that
	// vanished or was locked mid-read. Soft: the path is retried next pass.
	ErrHashUnavailable = errors.New("velum: hash unavailable")

	// ErrTrashFailure reports a failed recoverable delete. The local file is
	// left in place and the path is not marked synced.
	ErrTrashFailure = errors.New("velum: trash failed")
)
