package crypto

import "errors"

var (
	// ErrInvalidKeyFormat indicates key material of the wrong length or
	// encoding. The operation can be retried after re-acquiring the key.
	ErrInvalidKeyFormat = errors.New("invalid key format")
	// ErrAuthenticationFailure indicates the GCM tag check failed. This is
	// the only signal for both "wrong key" and "tampered ciphertext";
	// callers must not attempt to distinguish the two.
	ErrAuthenticationFailure = errors.New("ciphertext authentication failed")
	// ErrDecodingFailure indicates the decrypted plaintext did not parse as
	// the expected type. Callers must surface it exactly like
	// ErrAuthenticationFailure to unauthenticated parties.
	ErrDecodingFailure = errors.New("decrypted content is malformed")
	// ErrMissingKeyMaterial indicates no key could be obtained for the
	// resource. Only the original share link can recover from this.
	ErrMissingKeyMaterial = errors.New("no key material available")
)
