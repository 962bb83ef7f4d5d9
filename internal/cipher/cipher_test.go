package cipher

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestECBRoundTrip(t *testing.T) {
	c, err := New([]byte("0123456789ABCDEF"))
	require.NoError(t, err)

	plaintext := []byte(`{"dps":{"1":true}}`)

	ciphertext, err := c.EncryptECB(plaintext)
	require.NoError(t, err)
	assert.Equal(t, 0, len(ciphertext)%blockSize)

	decrypted, err := c.DecryptECB(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestECBRejectsUnalignedCiphertext(t *testing.T) {
	c, err := New([]byte("0123456789ABCDEF"))
	require.NoError(t, err)

	_, err = c.DecryptECB([]byte("not16bytes"))
	assert.Error(t, err)
}

func TestECBRejectsCorruptPadding(t *testing.T) {
	c, err := New([]byte("0123456789ABCDEF"))
	require.NoError(t, err)

	ciphertext, err := c.EncryptECB([]byte("hello world"))
	require.NoError(t, err)

	block := ciphertext[len(ciphertext)-blockSize:]
	block[blockSize-1] ^= 0xFF

	_, err = c.DecryptECB(ciphertext)
	assert.Error(t, err)
}

func TestGCMRoundTrip(t *testing.T) {
	c, err := New([]byte("0123456789ABCDEF"))
	require.NoError(t, err)

	iv := bytes.Repeat([]byte{0x11}, GCMNonceSize)
	aad := []byte("header-aad")
	plaintext := []byte(`{"dps":{"1":false}}`)

	sealed, err := c.EncryptGCM(plaintext, iv, aad)
	require.NoError(t, err)
	assert.Equal(t, GCMNonceSize+len(plaintext)+GCMTagSize, len(sealed))

	decrypted, err := c.DecryptGCM(sealed, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestGCMDetectsTamper(t *testing.T) {
	c, err := New([]byte("0123456789ABCDEF"))
	require.NoError(t, err)

	iv := bytes.Repeat([]byte{0x22}, GCMNonceSize)
	aad := []byte("header-aad")

	sealed, err := c.EncryptGCM([]byte("payload"), iv, aad)
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xFF

	_, err = c.DecryptGCM(sealed, aad)
	assert.Error(t, err)
}

func TestGCMDetectsWrongAAD(t *testing.T) {
	c, err := New([]byte("0123456789ABCDEF"))
	require.NoError(t, err)

	iv := bytes.Repeat([]byte{0x33}, GCMNonceSize)

	sealed, err := c.EncryptGCM([]byte("payload"), iv, []byte("aad-a"))
	require.NoError(t, err)

	_, err = c.DecryptGCM(sealed, []byte("aad-b"))
	assert.Error(t, err)
}
