package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Format: magic(8) + salt(16) + nonce(12) + encrypted_data + auth_tag(16)
const (
	gcmMagic      = "GCM3NCR0"
	saltLen       = 16
	nonceLen      = 12
	kdfIterations = 100000
)

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, kdfIterations, 32, sha256.New)
}

// IsEncrypted reports whether data carries the GCM envelope.
func IsEncrypted(data []byte) bool {
	return len(data) >= len(gcmMagic) && bytes.Equal(data[:len(gcmMagic)], []byte(gcmMagic))
}

// Encrypt wraps data in the GCM envelope keyed by password.
func Encrypt(data []byte, password string) ([]byte, error) {
	salt := make([]byte, saltLen)
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	gcm, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(gcmMagic)+saltLen+nonceLen+len(data)+gcm.Overhead())
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// Decrypt opens a GCM envelope produced by Encrypt.
func Decrypt(data []byte, password string) ([]byte, error) {
	if !IsEncrypted(data) {
		return nil, fmt.Errorf("missing %s header", gcmMagic)
	}
	if len(data) < len(gcmMagic)+saltLen+nonceLen+16 {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(data))
	}
	rest := data[len(gcmMagic):]
	salt, nonce, sealed := rest[:saltLen], rest[saltLen:saltLen+nonceLen], rest[saltLen+nonceLen:]
	gcm, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
