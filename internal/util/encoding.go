package util

import (
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKD normalization so that visually identical
// passwords derive identical keys regardless of input method.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}

// Base64Encode encodes key material in the unpadded URL-safe alphabet
// used for URL fragments and cache entries.
func Base64Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func Base64Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
