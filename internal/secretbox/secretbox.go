// Package secretbox encrypts credential fields before they reach the
// persisted document.
//
// A Cipher is built once at startup from the configured secret and is
// safe for concurrent use. Ciphertexts are base64 (std, padded) strings of
//
//	[version: 1 byte] [XChaCha20-Poly1305 nonce: 24 bytes] [ciphertext+tag]
//
// with the version byte authenticated as additional data.
package secretbox

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const blobVersion byte = 0x01

var hkdfInfo = []byte("autoscrip.credentials.v1")

var (
	ErrEmptySecret = errors.New("encryption secret is empty")
	ErrDecrypt     = errors.New("credential decryption failed")
)

type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+c.aead.Overhead())
	out = append(out, blobVersion)
	out = append(out, nonce...)
	out = c.aead.Seal(out, nonce, []byte(plaintext), []byte{blobVersion})

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Every failure, including malformed input,
// wraps ErrDecrypt.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	if len(blob) < 1+chacha20poly1305.NonceSizeX+c.aead.Overhead() {
		return "", fmt.Errorf("%w: blob is %d bytes", ErrDecrypt, len(blob))
	}
	if blob[0] != blobVersion {
		return "", fmt.Errorf("%w: unsupported version %d", ErrDecrypt, blob[0])
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := c.aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], blob[:1])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}
