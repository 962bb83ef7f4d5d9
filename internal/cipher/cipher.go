// Package cipher implements the two AES modes the Tuya LAN protocol uses
// to wrap frame payloads: ECB with PKCS7 padding (3.1-3.4, including the
// 3.4 session-key derivation) and GCM (3.5 session-key derivation and
// 3.5 framing). Go's crypto/cipher
// deliberately has no ECB mode, so the ECB path below drives
// cipher.Block.Encrypt/Decrypt one block at a time.
package cipher

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"tuyalink/pkg/tuyaerr"
)

const blockSize = aes.BlockSize // 16

// GCMNonceSize is the nonce length the protocol uses for AES-GCM: the
// first 12 bytes of whatever IV the caller supplies.
const GCMNonceSize = 12

// GCMTagSize is the authentication tag length appended by AES-GCM.
const GCMTagSize = 16

// Cipher wraps a single AES-128 key and exposes the ECB and GCM codecs
// the protocol needs. A Cipher is immutable and safe for concurrent use.
type Cipher struct {
	key []byte
}

// New builds a Cipher from a 16-byte AES-128 key.
func New(key []byte) (*Cipher, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("tuyalink: AES key must be 16 bytes, got %d", len(key))
	}
	return &Cipher{key: key}, nil
}

// EncryptECB pads plaintext with PKCS7 and encrypts it block by block in
// ECB mode.
func (c *Cipher) EncryptECB(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "ENCRYPTION_FAILED", err)
	}

	padded := pkcs7Pad(plaintext, blockSize)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += blockSize {
		block.Encrypt(out[i:i+blockSize], padded[i:i+blockSize])
	}
	return out, nil
}

// DecryptECB decrypts data block by block in ECB mode and strips PKCS7
// padding, validating every pad byte.
func (c *Cipher) DecryptECB(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "DECRYPTION_FAILED",
			fmt.Errorf("ciphertext length %d is not a multiple of %d", len(data), blockSize))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "DECRYPTION_FAILED", err)
	}

	out := make([]byte, len(data))
	for i := 0; i < len(data); i += blockSize {
		block.Decrypt(out[i:i+blockSize], data[i:i+blockSize])
	}

	return pkcs7Unpad(out)
}

// EncryptGCM encrypts plaintext under AES-GCM using nonce iv[:GCMNonceSize]
// and the given additional authenticated data, returning
// nonce || ciphertext || tag as a single slice, matching the framing the
// protocol expects both on the wire (0x6699 packets) and in the 3.5
// session-key derivation step.
func (c *Cipher) EncryptGCM(plaintext, iv, aad []byte) ([]byte, error) {
	if len(iv) < GCMNonceSize {
		return nil, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "ENCRYPTION_FAILED",
			fmt.Errorf("IV must be at least %d bytes, got %d", GCMNonceSize, len(iv)))
	}
	nonce := iv[:GCMNonceSize]

	gcm, err := c.newGCM()
	if err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, aad)
	out := make([]byte, 0, GCMNonceSize+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// DecryptGCM reverses EncryptGCM: data must be nonce || ciphertext || tag.
func (c *Cipher) DecryptGCM(data, aad []byte) ([]byte, error) {
	if len(data) < GCMNonceSize+GCMTagSize {
		return nil, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "DECRYPTION_FAILED",
			fmt.Errorf("GCM payload too short: %d bytes", len(data)))
	}

	gcm, err := c.newGCM()
	if err != nil {
		return nil, err
	}

	nonce := data[:GCMNonceSize]
	sealed := data[GCMNonceSize:]

	plaintext, err := gcm.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "DECRYPTION_FAILED", err)
	}
	return plaintext, nil
}

func (c *Cipher) newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "ENCRYPTION_FAILED", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, GCMNonceSize)
	if err != nil {
		return nil, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "ENCRYPTION_FAILED", err)
	}
	return gcm, nil
}

func pkcs7Pad(data []byte, size int) []byte {
	padLen := size - len(data)%size
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "DECRYPTION_FAILED",
			fmt.Errorf("empty plaintext"))
	}

	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "DECRYPTION_FAILED",
			fmt.Errorf("invalid PKCS7 padding length %d", padLen))
	}

	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "DECRYPTION_FAILED",
				fmt.Errorf("invalid PKCS7 padding byte"))
		}
	}

	return data[:len(data)-padLen], nil
}
