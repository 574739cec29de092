package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	keySize   = 32
	ivSize    = 12
	tagSize   = 16
	partCount = 3
)

var (
	ErrInvalidKey       = errors.New("encryption key must be 64 hex characters")
	ErrEmptyInput       = errors.New("cannot encrypt or decrypt empty input")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Encryptor handles AES-256-GCM encryption of stored Google credentials.
// Ciphertext is encoded as hex(iv):hex(tag):hex(ciphertext).
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an encryptor from a 64-character hex key (ENCRYPTION_SECRET)
func NewEncryptor(hexKey string) (*Encryptor, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(key) != keySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// Encrypt encrypts plaintext with a fresh random IV
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyInput
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	// Seal appends the tag to the ciphertext; it is stored as its own segment.
	sealed := e.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt. Every failure wraps ErrDecryptionFailed.
func (e *Encryptor) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", fmt.Errorf("%w: %w", ErrDecryptionFailed, ErrEmptyInput)
	}

	parts := strings.Split(encoded, ":")
	if len(parts) != partCount {
		return "", fmt.Errorf("%w: malformed ciphertext", ErrDecryptionFailed)
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", fmt.Errorf("%w: invalid iv", ErrDecryptionFailed)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: invalid auth tag", ErrDecryptionFailed)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext", ErrDecryptionFailed)
	}

	plaintext, err := e.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}

// GenerateKey generates a random AES-256 key encoded as 64 hex characters
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
