package cryptobox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecret(b byte) []byte {
	secret := make([]byte, KeySize)
	for i := range secret {
		secret[i] = b
	}
	return secret
}

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := New(testSecret(1))
	require.NoError(t, err)
	defer box.Close()

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("hello")},
		{"binary", []byte{0x00, 0xff, 0x00, 0xff}},
		{"compressible", bytes.Repeat([]byte("abcdefgh"), 4096)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sealed, err := box.Seal(test.plaintext)
			require.NoError(t, err)

			opened, err := box.Open(sealed)
			require.NoError(t, err)
			assert.Equal(t, test.plaintext, opened)
		})
	}
}

func TestSealIsNotPlaintext(t *testing.T) {
	box, err := New(testSecret(1))
	require.NoError(t, err)
	defer box.Close()

	plaintext := bytes.Repeat([]byte("confidential"), 1024)
	sealed, err := box.Seal(plaintext)
	require.NoError(t, err)

	assert.NotContains(t, string(sealed), "confidential")
}

func TestSealNonceUnique(t *testing.T) {
	box, err := New(testSecret(1))
	require.NoError(t, err)
	defer box.Close()

	a, err := box.Seal([]byte("same bytes"))
	require.NoError(t, err)
	b, err := box.Seal([]byte("same bytes"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "two seals of the same plaintext must differ")
}

func TestOpenTamperedFails(t *testing.T) {
	box, err := New(testSecret(1))
	require.NoError(t, err)
	defer box.Close()

	sealed, err := box.Seal([]byte("hello"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0x01
	_, err = box.Open(sealed)
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestOpenWrongKeyFails(t *testing.T) {
	box, err := New(testSecret(1))
	require.NoError(t, err)
	defer box.Close()

	other, err := New(testSecret(2))
	require.NoError(t, err)
	defer other.Close()

	sealed, err := box.Seal([]byte("hello"))
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestOpenTruncatedFails(t *testing.T) {
	box, err := New(testSecret(1))
	require.NoError(t, err)
	defer box.Close()

	_, err = box.Open([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestNewRejectsBadSecret(t *testing.T) {
	_, err := New([]byte("too short"))
	assert.Error(t, err)
}

func TestKeyRoundTrip(t *testing.T) {
	encoded, err := GenerateKey()
	require.NoError(t, err)

	secret, err := DecodeKey(encoded)
	require.NoError(t, err)
	assert.Len(t, secret, KeySize)

	_, err = DecodeKey("not base64!!")
	assert.Error(t, err)

	_, err = DecodeKey("c2hvcnQ=") // valid base64, wrong length
	assert.Error(t, err)
}
