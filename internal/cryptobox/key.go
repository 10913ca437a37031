package cryptobox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// KeySize is the required length of the pre-shared secret in bytes.
const KeySize = 32

// GenerateKey returns a fresh random secret, base64-encoded for transport
// between nodes.
func GenerateKey() (string, error) {
	secret := make([]byte, KeySize)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secret), nil
}

// DecodeKey parses a base64 secret produced by GenerateKey.
func DecodeKey(encoded string) ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	if len(secret) != KeySize {
		return nil, fmt.Errorf("secret must be %d bytes, got %d", KeySize, len(secret))
	}
	return secret, nil
}
