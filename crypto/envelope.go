package crypto

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sora-grayscale/splitvault/internal/util"
)

// Payload is a sealed field value as stored server-side: opaque ciphertext
// plus the initialization vector, and optionally the identifier of the
// password salt in effect when it was sealed.
type Payload struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	SaltID     string `json:"salt_id,omitempty"`
}

// Encrypt seals plaintext under a 128-bit key with AES-GCM. The IV is
// freshly random on every call and never derived from the content.
func Encrypt(plaintext, key []byte) (*Payload, error) {
	if len(key) != DataKeySize {
		return nil, fmt.Errorf("%w: key is %d bytes, want %d", ErrInvalidKeyFormat, len(key), DataKeySize)
	}

	sealed, err := util.EncryptAES(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("sealing payload: %w", err)
	}

	// util.EncryptAES returns nonce || ciphertext.
	return &Payload{
		IV:         sealed[:util.GCMNonceSize],
		Ciphertext: sealed[util.GCMNonceSize:],
	}, nil
}

// Decrypt opens a Payload. A failed tag check surfaces as
// ErrAuthenticationFailure regardless of whether the key was wrong or the
// ciphertext was tampered with.
func Decrypt(payload *Payload, key []byte) ([]byte, error) {
	if len(key) != DataKeySize {
		return nil, fmt.Errorf("%w: key is %d bytes, want %d", ErrInvalidKeyFormat, len(key), DataKeySize)
	}
	// A nil payload (e.g. a stored record whose field was null) gets the
	// same uniform signal as any other unopenable envelope.
	if payload == nil {
		return nil, ErrAuthenticationFailure
	}
	if len(payload.IV) != util.GCMNonceSize {
		return nil, fmt.Errorf("%w: IV is %d bytes, want %d", ErrAuthenticationFailure, len(payload.IV), util.GCMNonceSize)
	}

	sealed := make([]byte, len(payload.IV)+len(payload.Ciphertext))
	copy(sealed, payload.IV)
	copy(sealed[len(payload.IV):], payload.Ciphertext)

	plaintext, err := util.DecryptAES(sealed, key)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}
	return plaintext, nil
}

// EncryptString seals a string value.
func EncryptString(value string, key []byte) (*Payload, error) {
	return Encrypt([]byte(value), key)
}

// DecryptString opens a Payload holding a string value.
func DecryptString(payload *Payload, key []byte) (string, error) {
	plaintext, err := Decrypt(payload, key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptNumber seals a numeric value (an amount in minor units). The
// number is serialized to its decimal string form, so the ciphertext never
// depends on locale or binary representation.
func EncryptNumber(value int64, key []byte) (*Payload, error) {
	return Encrypt([]byte(strconv.FormatInt(value, 10)), key)
}

// DecryptNumber opens a Payload holding a numeric value. Non-numeric
// content fails with ErrDecodingFailure.
func DecryptNumber(payload *Payload, key []byte) (int64, error) {
	plaintext, err := Decrypt(payload, key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(string(plaintext), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: not a decimal number", ErrDecodingFailure)
	}
	return value, nil
}

// EncryptObject seals a structured value. The value is serialized to
// canonical JSON (stable key order) before sealing, so re-encrypting a
// logically equal object differs only in the IV.
func EncryptObject(value any, key []byte) (*Payload, error) {
	canonical, err := canonicalJSON(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodingFailure, err)
	}
	return Encrypt(canonical, key)
}

// DecryptObject opens a Payload into out. Malformed structure fails with
// ErrDecodingFailure, which callers must treat identically to a wrong key.
func DecryptObject(payload *Payload, key []byte, out any) error {
	plaintext, err := Decrypt(payload, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecodingFailure, err)
	}
	return nil
}

// canonicalJSON marshals v, then re-marshals through a generic tree so
// that object keys come out sorted regardless of struct field order.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}
