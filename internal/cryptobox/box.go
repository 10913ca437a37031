// Package cryptobox seals and opens whole file bodies with an authenticated
// symmetric scheme keyed by a pre-shared secret. Plaintext is zstd-compressed
// before sealing, so cached blobs leak neither content nor exact size.
package cryptobox

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrCrypto is returned when sealing, opening, or authentication fails.
// A node without the shared key cannot produce anything but this error
// from cached blobs.
var ErrCrypto = errors.New("cryptobox: authentication failed")

// blob key derivation context, fixed for the lifetime of the format
var hkdfInfo = []byte("velum blob v1")

// Box encrypts and decrypts blob bodies with ChaCha20-Poly1305.
// The AEAD key is derived from the pre-shared secret with HKDF-SHA256.
type Box struct {
	aead    cipher.AEAD
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// New creates a Box from the shared secret. The secret must be KeySize bytes.
func New(secret []byte) (*Box, error) {
	if len(secret) != KeySize {
		return nil, fmt.Errorf("cryptobox: secret must be %d bytes, got %d", KeySize, len(secret))
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	return &Box{aead: aead, encoder: encoder, decoder: decoder}, nil
}

// Seal compresses and encrypts plaintext. The output is nonce || ciphertext
// and is safe to place on an untrusted shared transport.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	compressed := b.encoder.EncodeAll(plaintext, make([]byte, 0, len(plaintext)))

	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return b.aead.Seal(nonce, nonce, compressed, nil), nil
}

// Open authenticates, decrypts, and decompresses a sealed blob.
// Any tampering or key mismatch yields ErrCrypto.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < b.aead.NonceSize() {
		return nil, fmt.Errorf("%w: sealed blob too short", ErrCrypto)
	}

	nonce, ciphertext := sealed[:b.aead.NonceSize()], sealed[b.aead.NonceSize():]
	compressed, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrCrypto
	}

	plaintext, err := b.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", ErrCrypto, err)
	}

	return plaintext, nil
}

// Close releases the compression codecs.
func (b *Box) Close() error {
	if b.encoder != nil {
		b.encoder.Close()
	}
	if b.decoder != nil {
		b.decoder.Close()
	}
	return nil
}
