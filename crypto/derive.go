package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/sora-grayscale/splitvault/internal/util"
)

const (
	// SaltSize is the length of the per-resource password salt. The salt is
	// generated once at password-set time and stored with the resource; it
	// is not secret.
	SaltSize = 16
	// kdfIterations makes offline brute force of the password expensive.
	// Lowering it weakens the security argument of the probe protocol.
	kdfIterations = 100_000
)

// NewSalt generates a fresh password salt.
func NewSalt() ([]byte, error) {
	salt, err := util.RandomBytes(SaltSize)
	if err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches a password into a key of the same shape as a data
// key. The password is NFKD-normalized first so equivalent inputs from
// different keyboards derive the same key. Deterministic for a fixed
// (password, salt) pair.
func DeriveKey(password string, salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt is %d bytes, want %d", ErrInvalidKeyFormat, len(salt), SaltSize)
	}
	normalized := util.Normalize(password)
	return pbkdf2.Key([]byte(normalized), salt, kdfIterations, DataKeySize, sha256.New), nil
}
