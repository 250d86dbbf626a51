package password

import (
	"fmt"

	"github.com/sora-grayscale/splitvault/crypto"
)

// Protection holds the server-visible artifacts created when a password is
// set on a resource. None of them reveal key material: the salt is public
// by design, the probe only confirms a candidate key, and the hint is
// readable by anyone holding the share link but not the password.
type Protection struct {
	// Salt is the per-resource KDF salt.
	Salt []byte `json:"salt"`
	// Probe is a known plaintext (the resource's own name) sealed under
	// the combined key. Decrypting it is the only way to test a password.
	Probe *crypto.Payload `json:"probe"`
	// Hint is optional and sealed under the transport key alone, so it can
	// be shown before password entry without weakening password secrecy.
	Hint *crypto.Payload `json:"hint,omitempty"`
}

// Protect sets up password protection for a resource. It derives the
// password key against a fresh salt, combines it with the transport key,
// and seals the probe under the result. The returned combined key is what
// the caller must re-encrypt the resource's fields with.
func Protect(pw, probePlaintext, hint string, transportKey []byte) (*Protection, []byte, error) {
	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, nil, err
	}
	passwordKey, err := crypto.DeriveKey(pw, salt)
	if err != nil {
		return nil, nil, fmt.Errorf("deriving password key: %w", err)
	}
	combined, err := crypto.Combine(transportKey, passwordKey)
	if err != nil {
		return nil, nil, err
	}

	probe, err := crypto.EncryptString(probePlaintext, combined)
	if err != nil {
		return nil, nil, fmt.Errorf("sealing probe: %w", err)
	}

	p := &Protection{
		Salt:  salt,
		Probe: probe,
	}
	if hint != "" {
		sealed, err := crypto.EncryptString(hint, transportKey)
		if err != nil {
			return nil, nil, fmt.Errorf("sealing hint: %w", err)
		}
		p.Hint = sealed
	}
	return p, combined, nil
}

// DecryptHint recovers the password hint using the transport key alone.
// Available before password entry by construction.
func DecryptHint(p *Protection, transportKey []byte) (string, error) {
	if p.Hint == nil {
		return "", nil
	}
	return crypto.DecryptString(p.Hint, transportKey)
}
