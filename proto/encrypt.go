package proto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/voxelcraft/vcnet"
)

// A Cipher encrypts packet bodies with AES-256-GCM. The key is
// derived from a pre-shared secret; a random nonce is prepended to
// every sealed body.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives an AES-256 key from secret.
func NewCipher(secret string) (*Cipher, error) {
	key := sha256.Sum256([]byte(secret))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("can't init cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("can't init cipher: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plain and returns nonce || ciphertext.
func (c *Cipher) Encrypt(plain []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("can't read nonce: %w", err)
	}

	return c.aead.Seal(nonce, nonce, plain, nil), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(data) < ns {
		return nil, &vcnet.ProtocolError{Reason: "truncated encrypted body"}
	}

	plain, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, &vcnet.ProtocolError{Reason: "decrypt", Err: err}
	}

	return plain, nil
}
