package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// DataKeySize is the size of a per-resource data key (AES-128).
	DataKeySize = 16
	// ServerKeySize is the size of the operator-held key (AES-256).
	ServerKeySize = 32
	// GCMNonceSize is the size of the random nonce prepended to every
	// ciphertext produced by EncryptAES.
	GCMNonceSize = 12
)

func validKeySize(n int) bool {
	return n == DataKeySize || n == ServerKeySize
}

func EncryptAES(plainText, rawKey []byte) ([]byte, error) {
	return EncryptAESWithAAD(plainText, rawKey, nil)
}

// EncryptAESWithAAD seals plainText under rawKey with AES-GCM and returns
// nonce || ciphertext. The nonce is freshly random on every call.
func EncryptAESWithAAD(plainText, rawKey, aad []byte) ([]byte, error) {
	if !validKeySize(len(rawKey)) {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d or %d", len(rawKey), DataKeySize, ServerKeySize)
	}

	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	cipherText := gcm.Seal(nonce, nonce, plainText, aad)

	return cipherText, nil
}

func DecryptAES(cipherText, rawKey []byte) ([]byte, error) {
	return DecryptAESWithAAD(cipherText, rawKey, nil)
}

func DecryptAESWithAAD(cipherText, rawKey, aad []byte) ([]byte, error) {
	if !validKeySize(len(rawKey)) {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d or %d", len(rawKey), DataKeySize, ServerKeySize)
	}

	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	if len(cipherText) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce size")
	}

	nonce, cipherText := cipherText[:gcm.NonceSize()], cipherText[gcm.NonceSize():]

	plainText, err := gcm.Open(nil, nonce, cipherText, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypting ciphertext: %w", err)
	}

	return plainText, nil
}

// NewDataKey generates a fresh 128-bit data key.
func NewDataKey() ([]byte, error) {
	rawKey := make([]byte, DataKeySize)
	if _, err := rand.Read(rawKey); err != nil {
		return nil, fmt.Errorf("generating data key: %w", err)
	}
	return rawKey, nil
}

// NewServerKey generates a fresh 256-bit operator key.
func NewServerKey() ([]byte, error) {
	rawKey := make([]byte, ServerKeySize)
	if _, err := rand.Read(rawKey); err != nil {
		return nil, fmt.Errorf("generating server key: %w", err)
	}
	return rawKey, nil
}
