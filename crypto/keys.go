// Package crypto implements the envelope cipher and key handling for
// end-to-end encrypted resources: random data keys carried in share links,
// password-derived keys, and the XOR combination of the two.
package crypto

import (
	"fmt"

	"github.com/sora-grayscale/splitvault/internal/util"
)

// DataKeySize is the length in bytes of a data key (128 bits).
const DataKeySize = util.DataKeySize

// NewDataKey generates a fresh random data key for a new resource.
func NewDataKey() ([]byte, error) {
	return util.NewDataKey()
}

// EncodeKey renders a key in the unpadded base64url form used in URL
// fragments and the client-side key cache.
func EncodeKey(key []byte) string {
	return util.Base64Encode(key)
}

// DecodeKey parses a base64url-encoded key. Any decoded value that is not
// exactly DataKeySize bytes is rejected, never truncated or padded.
func DecodeKey(encoded string) ([]byte, error) {
	key, err := util.Base64Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	if len(key) != DataKeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyFormat, len(key), DataKeySize)
	}
	return key, nil
}

// Combine XORs a transport key with a password-derived key into the
// combined key that actually encrypts resource fields. Neither input alone
// determines the output; an attacker holding only the share link or only a
// password guess cannot reconstruct it.
func Combine(transportKey, passwordKey []byte) ([]byte, error) {
	if len(transportKey) != DataKeySize || len(passwordKey) != DataKeySize {
		return nil, fmt.Errorf("%w: got %d and %d bytes, want %d", ErrInvalidKeyFormat, len(transportKey), len(passwordKey), DataKeySize)
	}
	combined, err := util.Xor(transportKey, passwordKey)
	if err != nil {
		return nil, fmt.Errorf("combining keys: %w", err)
	}
	return combined, nil
}

// ExtractTransport recovers the transport key from a combined key and the
// password-derived key. XOR is self-inverse, so this is Combine again; the
// separate name keeps call sites honest about direction.
func ExtractTransport(combinedKey, passwordKey []byte) ([]byte, error) {
	return Combine(combinedKey, passwordKey)
}
