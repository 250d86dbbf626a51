// Package storage defines persistence for the server-visible half of the
// scheme: ciphertext envelopes and opaque verification artifacts. Nothing
// stored here can decrypt anything on its own.
package storage

import (
	"errors"
	"time"

	"github.com/sora-grayscale/splitvault/crypto"
	"github.com/sora-grayscale/splitvault/password"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ResourceRecord is the server's view of a protected resource: sealed
// fields plus, when a password is set, the protection artifacts. The
// server never holds a data key, a password-derived key, or a plaintext
// password.
type ResourceRecord struct {
	ID string `json:"id"`
	// Fields maps field names to their sealed values.
	Fields map[string]*crypto.Payload `json:"fields"`
	// Protection is present only for password-protected resources.
	Protection *password.Protection `json:"protection,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// PasswordProtected reports whether a password has been set.
func (r *ResourceRecord) PasswordProtected() bool {
	return r.Protection != nil
}

// TwoFactorRecord is the per-account second-factor state. The secret and
// backup codes are sealed under the operator key, never a user secret, so
// the server can verify 2FA without any E2EE key material.
type TwoFactorRecord struct {
	AccountID string `json:"account_id"`
	// Secret is the TOTP secret sealed under the operator key.
	Secret *crypto.Payload `json:"secret"`
	// BackupCodes is the remaining single-use code list, sealed as one
	// envelope and rewritten whenever a code is consumed.
	BackupCodes *crypto.Payload `json:"backup_codes,omitempty"`
	// Enabled flips only after a successful verification round-trip.
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository is the storage abstraction the API and the two-factor keeper
// are built against.
type Repository interface {
	PutResource(record *ResourceRecord) error
	GetResource(id string) (*ResourceRecord, error)
	DeleteResource(id string) error

	PutTwoFactor(record *TwoFactorRecord) error
	GetTwoFactor(accountID string) (*TwoFactorRecord, error)
	DeleteTwoFactor(accountID string) error
}
