package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const nonceSize = 12 // standard GCM nonce length

// credentialsInfo binds derived keys to their purpose.
var credentialsInfo = []byte("cloudlaunch region credentials v1")

// ErrMissingKey is returned when the vault holds no master key.
var ErrMissingKey = errors.New("credentials master key not set")

// Cipher encrypts region credentials with AES-256-GCM. The 12-byte nonce
// is prepended to each ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives an AES-256 key from secret with HKDF-SHA256.
func NewCipher(secret []byte) (*Cipher, error) {
	if len(secret) == 0 {
		return nil, ErrMissingKey
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, credentialsInfo), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Cipher{aead: gcm}, nil
}

// CipherFromVault builds a Cipher from the vault entry named key.
func CipherFromVault(v *Vault, key string) (*Cipher, error) {
	secret := v.Get(key)
	if secret == "" {
		return nil, fmt.Errorf("%s: %w", key, ErrMissingKey)
	}
	return NewCipher([]byte(secret))
}

// Encrypt seals plaintext.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("rand nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt (nonce || ciphertext).
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	plaintext, err := c.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("gcm.Open: %w", err)
	}
	return plaintext, nil
}
