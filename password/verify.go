package password

import (
	"errors"
	"fmt"

	"github.com/sora-grayscale/splitvault/crypto"
	"github.com/sora-grayscale/splitvault/keyring"
	"github.com/sora-grayscale/splitvault/ratelimit"
)

// ErrWrongPassword covers every verification failure: wrong password,
// tampered probe, malformed plaintext. Collapsing them is deliberate; a
// finer-grained answer would hand an oracle to whoever is guessing.
var ErrWrongPassword = errors.New("invalid password")

// Verifier runs the password verification protocol. No secret leaves the
// client: it derives a candidate key locally and tests it against the
// server-stored probe ciphertext.
type Verifier struct {
	limiter  *ratelimit.Limiter
	sessions *SessionStore
	keyCache keyring.SessionStore
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithKeyCache makes successful verifications also cache the derived key
// half in the session-scoped key store, so the resolver can recombine on
// later loads without another prompt.
func WithKeyCache(cache keyring.SessionStore) VerifierOption {
	return func(v *Verifier) {
		v.keyCache = cache
	}
}

// NewVerifier creates a Verifier over the given rate limiter and password
// session store.
func NewVerifier(limiter *ratelimit.Limiter, sessions *SessionStore, opts ...VerifierOption) *Verifier {
	v := &Verifier{limiter: limiter, sessions: sessions}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify tests a candidate password against the resource's probe.
// On success it returns the combined key and a password session handle,
// and clears the rate-limit bucket. On failure it records the attempt and
// returns ErrWrongPassword, whatever actually went wrong inside the
// decrypt. A locked-out subject gets *ratelimit.LimitedError without any
// cryptographic work happening.
func (v *Verifier) Verify(resourceID, candidate string, salt []byte, probe *crypto.Payload, transportKey []byte) ([]byte, Handle, error) {
	if status := v.limiter.Check(ratelimit.OpPasswordVerify, resourceID); !status.Allowed {
		return nil, "", &ratelimit.LimitedError{RetryAfter: status.RetryAfter}
	}

	passwordKey, err := crypto.DeriveKey(candidate, salt)
	if err != nil {
		return nil, "", fmt.Errorf("deriving candidate key: %w", err)
	}
	combined, err := crypto.Combine(transportKey, passwordKey)
	if err != nil {
		return nil, "", err
	}

	if _, err := crypto.Decrypt(probe, combined); err != nil {
		v.limiter.RecordFailure(ratelimit.OpPasswordVerify, resourceID)
		return nil, "", ErrWrongPassword
	}

	v.limiter.RecordSuccess(ratelimit.OpPasswordVerify, resourceID)

	handle, err := v.sessions.Store(resourceID, candidate)
	if err != nil {
		return nil, "", fmt.Errorf("caching verified password: %w", err)
	}
	if v.keyCache != nil {
		v.keyCache.Put(resourceID, passwordKey)
	}
	return combined, handle, nil
}
